// Package program assembles components A-F into the single façade a
// driver (the CLI, a test, a future long-lived service) actually talks
// to: one class hierarchy, one RTA result, one interner, with
// StaticLookupMethod and CallgraphEdges as its query surface and a
// lossless serialization round trip as its persistence story.
package program

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/vantage-dev/jvmrta/pkg/classpath"
	"github.com/vantage-dev/jvmrta/pkg/descriptor"
	"github.com/vantage-dev/jvmrta/pkg/rta"
)

// Program is the analysis core's output: everything a caller needs to
// answer "what calls what" and "what may this variable hold" without
// re-running RTA.
type Program struct {
	Hierarchy *classpath.Hierarchy
	Interner  *descriptor.Interner
	RTA       *rta.Result
}

// New wraps the three pieces RTA and the class hierarchy loader
// already produced into one façade.
func New(h *classpath.Hierarchy, in *descriptor.Interner, r *rta.Result) *Program {
	return &Program{Hierarchy: h, Interner: in, RTA: r}
}

// StaticLookupMethod answers a (class-or-interface, name, desc)
// dispatch query against RTA's resolved targets.
func (p *Program) StaticLookupMethod(class, name, desc string) []rta.MethodKey {
	return p.RTA.StaticLookupMethod(class, name, desc)
}

// CallgraphEdges returns every caller->callee edge RTA discovered.
func (p *Program) CallgraphEdges() []rta.Edge {
	return p.RTA.Edges
}

// Reachable returns every (class, concrete method) pair RTA reached.
func (p *Program) Reachable() []rta.MethodKey {
	return p.RTA.Reachable
}

// snapshot is the gob wire format: a flattened hierarchy arena (no
// classfile.MethodInfo/FieldInfo bodies — those are re-derived on
// demand from the classpath if a caller needs full bytecode again;
// what StaticLookupMethod and the hierarchy queries need is the shape
// and the RTA mutable state, not the method bodies), the reachable set,
// the callgraph edges, and the dispatch cache.
type snapshot struct {
	Nodes      []nodeSnapshot
	Reachable  []rta.MethodKey
	Edges      []rta.Edge
	Dispatches []rta.DispatchSite
}

type nodeSnapshot struct {
	Name        string
	IsInterface bool
	AccessFlags uint16

	SuperIdx      int
	InterfaceIdxs []int

	IsInstantiated         bool
	InstantiatedSubclasses map[string]int

	MemorizedVirtualCalls   []classpath.MemoCall
	MemorizedInterfaceCalls []classpath.MemoCall
}

// Serialize writes a lossless snapshot of p to w via encoding/gob.
func (p *Program) Serialize(w io.Writer) error {
	s := snapshot{
		Reachable:  p.RTA.Reachable,
		Edges:      p.RTA.Edges,
		Dispatches: p.RTA.DispatchSites(),
	}
	for i := 0; i < p.Hierarchy.Len(); i++ {
		n := p.Hierarchy.NodeAt(i)
		s.Nodes = append(s.Nodes, nodeSnapshot{
			Name:                    n.Name,
			IsInterface:             n.IsInterface,
			AccessFlags:             n.AccessFlags,
			SuperIdx:                n.SuperIdx,
			InterfaceIdxs:           n.InterfaceIdxs,
			IsInstantiated:          n.IsInstantiated,
			InstantiatedSubclasses:  n.InstantiatedSubclasses,
			MemorizedVirtualCalls:   n.MemorizedVirtualCalls,
			MemorizedInterfaceCalls: n.MemorizedInterfaceCalls,
		})
	}
	if err := gob.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("program: encoding snapshot: %w", err)
	}
	return nil
}

// SerializeBytes is the []byte convenience form of Serialize.
func (p *Program) SerializeBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize reconstructs a Program from a snapshot written by
// Serialize. The class hierarchy's arena order is reproduced exactly
// (AddNode in snapshot order, then Link once every node exists), which
// is what makes IsSubclassOf/Implements/AncestorChain queries agree
// with the original Program bit-for-bit. The interner returned is
// freshly empty: allocation-site and descriptor interning keys are
// recomputed lazily from the MethodKey/class-name strings the rest of
// the snapshot already carries, not persisted themselves.
func Deserialize(r io.Reader) (*Program, error) {
	var s snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("program: decoding snapshot: %w", err)
	}

	h := classpath.NewHierarchy()
	for _, ns := range s.Nodes {
		h.AddNode(&classpath.Node{
			Name:                    ns.Name,
			IsInterface:             ns.IsInterface,
			AccessFlags:             ns.AccessFlags,
			SuperIdx:                ns.SuperIdx,
			InterfaceIdxs:           ns.InterfaceIdxs,
			IsInstantiated:          ns.IsInstantiated,
			InstantiatedSubclasses:  ns.InstantiatedSubclasses,
			MemorizedVirtualCalls:   ns.MemorizedVirtualCalls,
			MemorizedInterfaceCalls: ns.MemorizedInterfaceCalls,
		})
	}
	for i := 0; i < h.Len(); i++ {
		h.Link(i)
	}

	res := rta.Rehydrate(s.Dispatches)
	res.Reachable = s.Reachable
	res.Edges = s.Edges

	return New(h, descriptor.NewInterner(), res), nil
}
