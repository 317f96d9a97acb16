package absint

import (
	"log/slog"

	"github.com/vantage-dev/jvmrta/pkg/classpath"
	"github.com/vantage-dev/jvmrta/pkg/ir"
	"github.com/vantage-dev/jvmrta/pkg/rta"
	"github.com/vantage-dev/jvmrta/pkg/ssaform"
)

// MethodLookup resolves a reachable method to its SSA-converted IR,
// e.g. cmd/jvmrta's methodLookupFor once RTA and ssaform.Convert have
// both run over it.
type MethodLookup func(rta.MethodKey) (*ir.Method, bool)

// Solver drives the class-flow fixpoint: a constraint/worklist engine
// over per-method, per-block AbLocals environments, a pluggable Context
// for call-site sensitivity, and a single flow-insensitive heap shared
// across every method (AbFSet per field, plus a flat map for statics).
type Solver struct {
	h       *classpath.Hierarchy
	rta     *rta.Result
	lookup  MethodLookup
	context Context
	logger  *slog.Logger

	summaries   map[ctxMethodKey]AbMethod
	methodCache map[ctxMethodKey]*ir.Method
	cfgs        map[ctxMethodKey][]ssaform.Block
	blockExit   map[ctxMethodKey][]AbLocals
	worklist    []blockItem
	inWorklist  map[blockItem]bool

	fields       map[string]AbFSet
	staticFields map[string]AbVSet
	warnedCoerce map[string]bool
}

type blockItem struct {
	key   ctxMethodKey
	block int
}

// NewSolver builds a Solver. ctx may be nil, which selects the default
// context-insensitive EmptyContext. logger may be nil, which discards
// the coercion-warning hook (Open Question (iii)).
func NewSolver(h *classpath.Hierarchy, r *rta.Result, lookup MethodLookup, ctx Context, logger *slog.Logger) *Solver {
	if ctx == nil {
		ctx = EmptyContext{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Solver{
		h:            h,
		rta:          r,
		lookup:       lookup,
		context:      ctx,
		logger:       logger,
		summaries:    map[ctxMethodKey]AbMethod{},
		methodCache:  map[ctxMethodKey]*ir.Method{},
		cfgs:         map[ctxMethodKey][]ssaform.Block{},
		blockExit:    map[ctxMethodKey][]AbLocals{},
		inWorklist:   map[blockItem]bool{},
		fields:       map[string]AbFSet{},
		staticFields: map[string]AbVSet{},
		warnedCoerce: map[string]bool{},
	}
}

// Result is what a client queries after Run reaches its fixpoint.
type Result struct {
	s *Solver
}

// MethodSummary returns the fixpoint summary computed for key under the
// solver's context, or Bot if key was never reached.
func (r *Result) MethodSummary(key rta.MethodKey) AbMethod {
	return r.s.summaries[r.s.ckey(key)]
}

// Field returns the fixpoint heap abstraction for one instance field.
func (r *Result) Field(class, name string) AbFSet {
	return r.s.fields[fieldKey(class, name)]
}

// StaticField returns the fixpoint abstraction for one static field.
func (r *Result) StaticField(class, name string) AbVSet {
	return r.s.staticFields[fieldKey(class, name)]
}

// BlockExit returns the fixpoint exit environment of one of key's basic
// blocks, numbered the same way ssaform.BuildCFG numbers them.
func (r *Result) BlockExit(key rta.MethodKey, block int) AbLocals {
	exits := r.s.blockExit[r.s.ckey(key)]
	if block < 0 || block >= len(exits) {
		return BotLocals()
	}
	return exits[block]
}

func (s *Solver) ckey(key rta.MethodKey) ctxMethodKey {
	return ctxMethodKey{ctx: s.context.Key(), method: key.String()}
}

func fieldKey(class, name string) string { return class + "#" + name }

// Run seeds entry with entryArgs and iterates the worklist to a
// fixpoint: blocks are popped, re-executed against their (possibly
// joined) entry environment, and their successors (or, for a call
// target whose summary changed, every known caller) re-enqueued
// whenever the exit environment changes, until nothing is left dirty.
func (s *Solver) Run(entry rta.MethodKey, entryArgs AbLocals) *Result {
	s.seedMethod(entry, AbMethod{Args: entryArgs, Return: BotVSet(), ExcReturn: BotVSet()})

	for len(s.worklist) > 0 {
		item := s.worklist[0]
		s.worklist = s.worklist[1:]
		delete(s.inWorklist, item)
		s.processBlock(item)
	}
	return &Result{s: s}
}

// seedMethod registers key with at least the given summary (joined into
// whatever is already known), caching its IR and CFG on first sight,
// and enqueues whatever needs re-examining as a result.
func (s *Solver) seedMethod(key rta.MethodKey, ms AbMethod) {
	ck := s.ckey(key)
	cur, existed := s.summaries[ck]
	joined, changed := JoinMethod(cur, ms)
	s.summaries[ck] = joined

	if !existed {
		m, ok := s.lookup(key)
		if !ok {
			return
		}
		s.methodCache[ck] = m
		cfg := ssaform.BuildCFG(m)
		s.cfgs[ck] = cfg
		exits := make([]AbLocals, len(cfg))
		for i := range exits {
			exits[i] = BotLocals()
		}
		s.blockExit[ck] = exits
		s.enqueueBlock(ck, 0)
		return
	}
	if changed {
		s.enqueueBlock(ck, 0)
		s.requeueCallers(key)
	}
}

func (s *Solver) enqueueBlock(ck ctxMethodKey, block int) {
	item := blockItem{key: ck, block: block}
	if s.inWorklist[item] {
		return
	}
	s.inWorklist[item] = true
	s.worklist = append(s.worklist, item)
}

// requeueCallers re-enqueues every known caller of key, so a changed
// summary (new Return value, widened Args) is reflected at every call
// site that already consulted it.
func (s *Solver) requeueCallers(key rta.MethodKey) {
	for _, e := range s.rta.Edges {
		if e.To != key {
			continue
		}
		ck := s.ckey(e.From)
		if cfg, ok := s.cfgs[ck]; ok {
			for bi := range cfg {
				s.enqueueBlock(ck, bi)
			}
		}
	}
}

// markAllDirty re-enqueues every block of every method seen so far — a
// heap-wide field write is flow-insensitive, so it can in principle
// affect any load of that field anywhere in the program.
func (s *Solver) markAllDirty() {
	for ck, cfg := range s.cfgs {
		for bi := range cfg {
			s.enqueueBlock(ck, bi)
		}
	}
}

func (s *Solver) processBlock(item blockItem) {
	ck := item.key
	cfg, ok := s.cfgs[ck]
	if !ok || item.block < 0 || item.block >= len(cfg) {
		return
	}
	m := s.methodCache[ck]
	b := cfg[item.block]

	entry := s.blockEntry(ck, m, cfg, item.block)
	exit := s.execBlock(ck, m, b, entry)

	if exit.Equal(s.blockExit[ck][item.block]) {
		return
	}
	s.blockExit[ck][item.block] = exit
	for _, succ := range b.Succs {
		s.enqueueBlock(ck, succ)
	}
}

// blockEntry computes a block's entry environment as the join of every
// predecessor's exit, then overrides each phi-defined variable with the
// per-predecessor value its phi selects — see pkg/ssaform's Convert,
// which builds m.PhiNodes[block.Start][i].Use in the same block.Preds
// order reproduced here by re-running BuildCFG's deterministic
// buildBlocks/linkEdges over the same, unmutated jump structure.
func (s *Solver) blockEntry(ck ctxMethodKey, m *ir.Method, cfg []ssaform.Block, block int) AbLocals {
	b := cfg[block]
	if len(b.Preds) == 0 {
		return s.projectArgs(ck, m)
	}
	entry := BotLocals()
	exits := s.blockExit[ck]
	for _, p := range b.Preds {
		entry, _ = JoinLocals(entry, exits[p])
	}
	for _, phi := range m.PhiNodes[b.Start] {
		val := BotVSet()
		for k, p := range b.Preds {
			if k >= len(phi.Use) {
				break
			}
			val, _ = JoinVSet(val, exits[p].Get(phi.Use[k].Index))
		}
		entry = entry.SetVar(phi.Def.Index, val)
	}
	return entry
}

// projectArgs maps a method summary's Args onto its own parameter
// variables. Args is already indexed by the callee's own variable
// indices (exec.go's call handling builds it that way directly from
// each call site's actual arguments), so this is the identity; it is
// kept as a named step because init_locals's position-mapping belongs
// here conceptually, and a context that instead carries position-
// indexed args would remap through m.Params at exactly this point.
func (s *Solver) projectArgs(ck ctxMethodKey, m *ir.Method) AbLocals {
	return s.summaries[ck].Args
}
