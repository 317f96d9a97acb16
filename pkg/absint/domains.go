// Package absint provides the abstract-value lattices and the
// constraint/worklist solver that drive a class-flow (points-to) fixed
// point over an already-SSA-converted program: which allocation sites
// may flow into each variable and each field.
package absint

import "github.com/vantage-dev/jvmrta/pkg/classpath"

// Site is an allocation site: a program point paired with the object
// type allocated there. Concretize drops the PC, keeping only the type,
// for subtype-filtering queries that don't care which `new` produced a
// value, only what class it is.
type Site struct {
	PC    int
	Class string
}

// vsetKind discriminates AbVSet's four-point lattice.
type vsetKind int

const (
	vBot vsetKind = iota
	vPrimitive
	vSet
	vTop
)

// AbVSet is the `Bot | Primitive | Set(sites) | Top` lattice: Bot is
// least, Top is greatest, Primitive is incomparable with any Set(_) (a
// join across the two is type-unsound by construction and coerced to
// Top rather than rejected, surfaced via a warning hook by the caller).
type AbVSet struct {
	kind  vsetKind
	sites map[Site]bool
}

func BotVSet() AbVSet       { return AbVSet{kind: vBot} }
func PrimitiveVSet() AbVSet { return AbVSet{kind: vPrimitive} }
func TopVSet() AbVSet       { return AbVSet{kind: vTop} }

// Singleton builds a one-element Set(_) abstract value.
func Singleton(s Site) AbVSet {
	return AbVSet{kind: vSet, sites: map[Site]bool{s: true}}
}

func (v AbVSet) IsBot() bool       { return v.kind == vBot }
func (v AbVSet) IsPrimitive() bool { return v.kind == vPrimitive }
func (v AbVSet) IsTop() bool       { return v.kind == vTop }

// Sites returns the allocation sites in a Set(_) value, nil otherwise.
func (v AbVSet) Sites() []Site {
	if v.kind != vSet {
		return nil
	}
	out := make([]Site, 0, len(v.sites))
	for s := range v.sites {
		out = append(out, s)
	}
	return out
}

// Equal reports lattice equality, per the spec's lattice law that equal
// must agree with the two-sided join check.
func (v AbVSet) Equal(o AbVSet) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind != vSet {
		return true
	}
	if len(v.sites) != len(o.sites) {
		return false
	}
	for s := range v.sites {
		if !o.sites[s] {
			return false
		}
	}
	return true
}

// JoinVSet computes the least upper bound of a and b, reporting whether
// the result differs from a (the pair-returning redesign the solver
// consumes to decide re-enqueueing instead of threading a by-reference
// "modifies" flag through every call).
func JoinVSet(a, b AbVSet) (AbVSet, bool) {
	switch {
	case a.IsBot():
		return b, !a.Equal(b)
	case b.IsBot():
		return a, false
	case a.IsTop() || b.IsTop():
		return TopVSet(), !a.IsTop()
	case a.IsPrimitive() && b.IsPrimitive():
		return a, false
	case a.IsPrimitive() || b.IsPrimitive():
		// mixing a primitive and a reference value is type-unsound;
		// coerce to Top and let the caller warn, rather than assert.
		return TopVSet(), true
	default:
		merged := make(map[Site]bool, len(a.sites)+len(b.sites))
		for s := range a.sites {
			merged[s] = true
		}
		changed := false
		for s := range b.sites {
			if !merged[s] {
				changed = true
			}
			merged[s] = true
		}
		return AbVSet{kind: vSet, sites: merged}, changed
	}
}

// InterVSet computes the greatest lower bound, used by filter queries.
func InterVSet(a, b AbVSet) AbVSet {
	switch {
	case a.IsBot() || b.IsBot():
		return BotVSet()
	case a.IsTop():
		return b
	case b.IsTop():
		return a
	case a.IsPrimitive() || b.IsPrimitive():
		if a.IsPrimitive() && b.IsPrimitive() {
			return a
		}
		return BotVSet()
	default:
		out := map[Site]bool{}
		for s := range a.sites {
			if b.sites[s] {
				out[s] = true
			}
		}
		return AbVSet{kind: vSet, sites: out}
	}
}

// Concretize drops pc context, keeping only the object type of each
// site — subtype-filter queries reason about classes, not call sites.
func (v AbVSet) Concretize() []string {
	if v.kind != vSet {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for s := range v.sites {
		if !seen[s.Class] {
			seen[s.Class] = true
			out = append(out, s.Class)
		}
	}
	return out
}

// FilterWithCompatible keeps only the sites whose class is a subtype of
// objType (or objType itself), per the class hierarchy.
func (v AbVSet) FilterWithCompatible(h *classpath.Hierarchy, objType string) AbVSet {
	return v.filter(h, objType, true)
}

// FilterWithIncompatible keeps only the sites that are NOT a subtype of
// objType — used to refine the domain along the false branch of an
// instanceof check.
func (v AbVSet) FilterWithIncompatible(h *classpath.Hierarchy, objType string) AbVSet {
	return v.filter(h, objType, false)
}

func (v AbVSet) filter(h *classpath.Hierarchy, objType string, keepCompatible bool) AbVSet {
	if v.kind != vSet {
		return v
	}
	targetIdx := h.Index(objType)
	out := map[Site]bool{}
	for s := range v.sites {
		idx := h.Index(s.Class)
		compatible := targetIdx >= 0 && idx >= 0 && (h.IsSubclassOf(idx, targetIdx) || h.Implements(idx, targetIdx))
		if compatible == keepCompatible {
			out[s] = true
		}
	}
	return AbVSet{kind: vSet, sites: out}
}
