package absint

// AbFSet abstracts one field's heap contents: a map from allocation
// site to the AbVSet of values ever stored into that field on an object
// allocated there. A missing key reads as Bot — the heap is initially
// empty, not initially Top.
type AbFSet struct {
	m map[Site]AbVSet
}

func BotFSet() AbFSet { return AbFSet{} }

// JoinFSet joins pointwise; a key present in only one side passes
// through verbatim, since joining with Bot is identity.
func JoinFSet(a, b AbFSet) (AbFSet, bool) {
	if len(a.m) == 0 {
		return b, len(b.m) > 0
	}
	if len(b.m) == 0 {
		return a, false
	}
	out := make(map[Site]AbVSet, len(a.m))
	for s, v := range a.m {
		out[s] = v
	}
	changed := false
	for s, v := range b.m {
		cur, ok := out[s]
		if !ok {
			out[s] = v
			changed = true
			continue
		}
		joined, ch := JoinVSet(cur, v)
		out[s] = joined
		changed = changed || ch
	}
	return AbFSet{m: out}, changed
}

// Var2FSet stores valAbs into the field at every site in objAbs — a
// field store through a possibly-aliased object abstraction writes
// through every site it may denote, never strongly-updating a single
// one, since abstract execution does not know which site is the "real"
// one at runtime.
func Var2FSet(fset AbFSet, objAbs, valAbs AbVSet) (AbFSet, bool) {
	sites := objAbs.Sites()
	if len(sites) == 0 {
		return fset, false
	}
	out := make(map[Site]AbVSet, len(fset.m)+len(sites))
	for s, v := range fset.m {
		out[s] = v
	}
	changed := false
	for _, s := range sites {
		cur := out[s]
		joined, ch := JoinVSet(cur, valAbs)
		out[s] = joined
		changed = changed || ch
	}
	return AbFSet{m: out}, changed
}

// FSet2Var reads the union of the field abstraction across every site in
// objAbs — a load through an aliased object reads the join of every
// site it may denote.
func FSet2Var(fset AbFSet, objAbs AbVSet) AbVSet {
	result := BotVSet()
	for _, s := range objAbs.Sites() {
		v, ok := fset.m[s]
		if !ok {
			continue
		}
		result, _ = JoinVSet(result, v)
	}
	return result
}

// AbLocals is a per-pc environment: var index -> AbVSet, with Bot
// absorbing — an unreachable program point has a Bot environment, and
// any attempt to update it stays Bot.
type AbLocals struct {
	bot  bool
	vars map[int]AbVSet
}

func BotLocals() AbLocals { return AbLocals{bot: true} }

func EmptyLocals() AbLocals { return AbLocals{vars: map[int]AbVSet{}} }

func (l AbLocals) IsBot() bool { return l.bot }

// Equal reports whether two environments agree on every variable either
// side assigns, per the lattice law that equal agrees with a two-sided
// join check.
func (l AbLocals) Equal(o AbLocals) bool {
	if l.bot != o.bot {
		return false
	}
	if l.bot {
		return true
	}
	if len(l.vars) != len(o.vars) {
		return false
	}
	for k, v := range l.vars {
		ov, ok := o.vars[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (l AbLocals) Get(idx int) AbVSet {
	if l.bot {
		return BotVSet()
	}
	v, ok := l.vars[idx]
	if !ok {
		return BotVSet()
	}
	return v
}

// SetVar returns the environment with idx updated, propagating Bot
// unchanged per the absorption rule.
func (l AbLocals) SetVar(idx int, v AbVSet) AbLocals {
	if l.bot {
		return l
	}
	out := make(map[int]AbVSet, len(l.vars)+1)
	for k, vv := range l.vars {
		out[k] = vv
	}
	out[idx] = v
	return AbLocals{vars: out}
}

// JoinLocals joins two environments pointwise; Bot is the identity, and
// a variable present in only one side joins against Bot (itself).
func JoinLocals(a, b AbLocals) (AbLocals, bool) {
	if a.bot {
		return b, !b.bot
	}
	if b.bot {
		return a, false
	}
	out := make(map[int]AbVSet, len(a.vars))
	for k, v := range a.vars {
		out[k] = v
	}
	changed := false
	for k, v := range b.vars {
		cur, ok := out[k]
		if !ok {
			out[k] = v
			changed = true
			continue
		}
		joined, ch := JoinVSet(cur, v)
		out[k] = joined
		changed = changed || ch
	}
	return AbLocals{vars: out}, changed
}

// AbMethod is a method summary: Bot means "not yet reached" by the
// solver, Reachable carries the abstraction of its parameters, its
// normal return value, and the value it throws out (if any).
type AbMethod struct {
	bot       bool
	Args      AbLocals
	Return    AbVSet
	ExcReturn AbVSet
}

func BotMethod() AbMethod { return AbMethod{bot: true} }

func (m AbMethod) IsBot() bool { return m.bot }

// JoinMethod joins two summaries component-wise.
func JoinMethod(a, b AbMethod) (AbMethod, bool) {
	if a.bot {
		return b, !b.bot
	}
	if b.bot {
		return a, false
	}
	args, c1 := JoinLocals(a.Args, b.Args)
	ret, c2 := JoinVSet(a.Return, b.Return)
	exc, c3 := JoinVSet(a.ExcReturn, b.ExcReturn)
	return AbMethod{Args: args, Return: ret, ExcReturn: exc}, c1 || c2 || c3
}
