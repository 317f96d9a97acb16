// Package rta implements Rapid Type Analysis over JVM bytecode: a
// monotone, single-threaded worklist driver that starts from a set of
// entry points and discovers the reachable (class, concrete method)
// pairs and the call-graph edges between them, refining virtual and
// interface dispatch against the set of classes actually instantiated
// so far rather than assuming every subtype is reachable.
package rta

import (
	"fmt"
	"log/slog"

	"github.com/vantage-dev/jvmrta/pkg/classfile"
	"github.com/vantage-dev/jvmrta/pkg/classpath"
	"github.com/vantage-dev/jvmrta/pkg/descriptor"
	"github.com/vantage-dev/jvmrta/pkg/ir"
	"github.com/vantage-dev/jvmrta/pkg/transform"
)

// MethodKey identifies one concrete method by its declaring class and
// signature, the unit RTA's worklist operates over.
type MethodKey struct {
	Class string
	Name  string
	Desc  string
}

func (k MethodKey) String() string { return k.Class + "#" + k.Name + k.Desc }

// Edge is one resolved call-graph edge, from a caller to a callee.
type Edge struct {
	From MethodKey
	To   MethodKey
}

// NativeStub describes what a native method is assumed to do, supplied
// by internal/nativestubs rather than discovered from bytecode.
type NativeStub struct {
	AllocatedClasses []string
	Callees          []MethodKey
}

// Options configures one RTA run.
type Options struct {
	// ParseNatives, if false (the default), treats every native method
	// as a dead end and ignores Stubs; if true, a native method's stub
	// supplies its allocated classes and callees.
	ParseNatives bool
	Stubs        map[MethodKey]NativeStub
	ChLink       bool
	Logger       *slog.Logger
}

// Result is RTA's output: the reachable method set and the edges
// between them, plus the dispatch caches needed to answer
// StaticLookupMethod queries after the fact.
type Result struct {
	Reachable []MethodKey
	Edges     []Edge

	driver *driver
}

// StaticLookupMethod returns every concrete method RTA resolved a
// virtual/interface dispatch against (class, name, desc) to — class may
// name either a class (object-type dispatch) or an interface (interface
// dispatch), since both share the dispatch cache's name/desc keyspace.
func (r *Result) StaticLookupMethod(class, name, desc string) []MethodKey {
	return r.driver.virtualCache[dispatchKey{Recv: class, Name: name, Desc: desc}]
}

// DispatchSite names one resolved virtual/interface dispatch signature
// plus the targets RTA resolved it to, for internal/program to snapshot
// into a serializable form (the live driver's virtualCache cannot
// itself survive a gob round trip since dispatchKey is unexported).
type DispatchSite struct {
	Class, Name, Desc string
	Targets           []MethodKey
}

// DispatchSites enumerates every dispatch signature StaticLookupMethod
// can answer, in no particular order.
func (r *Result) DispatchSites() []DispatchSite {
	out := make([]DispatchSite, 0, len(r.driver.virtualCache))
	for k, targets := range r.driver.virtualCache {
		out = append(out, DispatchSite{Class: k.Recv, Name: k.Name, Desc: k.Desc, Targets: targets})
	}
	return out
}

// Rehydrate rebuilds a Result that answers StaticLookupMethod from a
// persisted snapshot, for internal/program's deserialization path. The
// rebuilt Result cannot resume a Run (hasBeenParsed, the worklist, and
// the IR cache are all left empty), only answer the three read-only
// queries a caller has after loading a saved analysis: Reachable,
// Edges (fields set directly by the caller) and StaticLookupMethod.
func Rehydrate(dispatches []DispatchSite) *Result {
	vc := make(map[dispatchKey][]MethodKey, len(dispatches))
	for _, d := range dispatches {
		vc[dispatchKey{Recv: d.Class, Name: d.Name, Desc: d.Desc}] = d.Targets
	}
	return &Result{driver: &driver{virtualCache: vc}}
}

type workItem struct {
	key MethodKey
}

type driver struct {
	cp     *classpath.ClassPath
	in     *descriptor.Interner
	opts   Options
	logger *slog.Logger

	h *classpath.Hierarchy

	hasBeenParsed map[MethodKey]bool
	clinitsDone   map[string]bool
	worklist      []workItem

	edges   []Edge
	edgesOf map[MethodKey][]MethodKey // caller -> resolved callees, for edge deduplication
	irCache map[MethodKey]*ir.Method

	staticSpecialCache map[MethodKey]MethodKey   // invokespecial site -> resolved target
	virtualCache       map[dispatchKey][]MethodKey // dispatch signature -> resolved targets so far
	callersOf          map[dispatchKey][]MethodKey // dispatch signature -> every caller seen so far
}

// Run executes RTA to a fixpoint starting from entryPoints.
func Run(cp *classpath.ClassPath, in *descriptor.Interner, entryPoints []MethodKey, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &driver{
		cp:                 cp,
		in:                 in,
		opts:               opts,
		logger:             logger,
		h:                  cp.Hierarchy(),
		hasBeenParsed:      make(map[MethodKey]bool),
		clinitsDone:        make(map[string]bool),
		edgesOf:            make(map[MethodKey][]MethodKey),
		irCache:            make(map[MethodKey]*ir.Method),
		staticSpecialCache: make(map[MethodKey]MethodKey),
		virtualCache:       make(map[dispatchKey][]MethodKey),
		callersOf:          make(map[dispatchKey][]MethodKey),
	}
	for _, e := range entryPoints {
		d.enqueue(e)
	}

	for len(d.worklist) > 0 {
		item := d.worklist[0]
		d.worklist = d.worklist[1:]
		if err := d.process(item.key); err != nil {
			logger.Warn("rta: skipping method", "method", item.key.String(), "err", err)
		}
	}

	reachable := make([]MethodKey, 0, len(d.hasBeenParsed))
	for k, done := range d.hasBeenParsed {
		if done {
			reachable = append(reachable, k)
		}
	}
	return &Result{Reachable: reachable, Edges: d.edges, driver: d}, nil
}

// enqueue adds key to the worklist exactly once across the whole run
// (the has_been_parsed guard), which is what makes the fixpoint
// monotone: a key's method body is symbolically walked at most once,
// though dispatch resolution may add new edges to it from later
// instantiations without re-walking its body.
func (d *driver) enqueue(key MethodKey) {
	if d.hasBeenParsed[key] {
		return
	}
	d.hasBeenParsed[key] = true
	d.worklist = append(d.worklist, workItem{key: key})
}

func (d *driver) addEdge(from, to MethodKey) {
	for _, e := range d.edgesOf[from] {
		if e == to {
			return
		}
	}
	d.edgesOf[from] = append(d.edgesOf[from], to)
	d.edges = append(d.edges, Edge{From: from, To: to})
	d.enqueue(to)
}

// process loads key's declaring class, resolves its method body (native
// stub or bytecode), and walks it for dispatch sites.
func (d *driver) process(key MethodKey) error {
	node, err := d.cp.EnsureNode(key.Class)
	if err != nil {
		return fmt.Errorf("load %s: %w", key.Class, err)
	}
	mi := node.MethodByNameDesc(key.Name, key.Desc)
	if mi == nil {
		return fmt.Errorf("%s has no method %s%s", key.Class, key.Name, key.Desc)
	}

	if mi.IsNative() {
		return d.processNative(key)
	}
	if mi.Code == nil {
		return nil // abstract/interface method with no body
	}

	m, err := d.methodIR(key, mi)
	if err != nil {
		return fmt.Errorf("transform %s: %w", key, err)
	}
	return d.walk(key, m)
}

func (d *driver) methodIR(key MethodKey, mi *classfile.MethodInfo) (*ir.Method, error) {
	if cached, ok := d.irCache[key]; ok {
		return cached, nil
	}
	cf, err := d.cp.Load(key.Class)
	if err != nil {
		return nil, err
	}
	m, err := transform.Transform(key.Class, mi, cf.ConstantPool, d.in, transform.Options{ChLink: d.opts.ChLink})
	if err != nil {
		return nil, err
	}
	d.irCache[key] = m
	return m, nil
}

func (d *driver) processNative(key MethodKey) error {
	if !d.opts.ParseNatives {
		return nil
	}
	stub, ok := d.opts.Stubs[key]
	if !ok {
		d.logger.Warn("rta: native method has no stub, treating as a dead end", "method", key.String())
		return nil
	}
	for _, cls := range stub.AllocatedClasses {
		d.onInstantiated(cls)
	}
	for _, callee := range stub.Callees {
		d.addEdge(key, callee)
	}
	return nil
}
