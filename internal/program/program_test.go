package program

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-dev/jvmrta/pkg/classpath"
	"github.com/vantage-dev/jvmrta/pkg/descriptor"
	"github.com/vantage-dev/jvmrta/pkg/rta"
)

// buildSampleProgram hand-assembles a tiny four-node hierarchy (Object
// <- Base <- Derived, Derived also implementing Marker) with reachable
// methods, a callgraph edge, and one dispatch site, exercising every
// field Serialize/Deserialize carries across the wire.
func buildSampleProgram() *Program {
	h := classpath.NewHierarchy()
	objIdx := h.AddNode(&classpath.Node{Name: "java/lang/Object", SuperIdx: -1})
	markerIdx := h.AddNode(&classpath.Node{Name: "Marker", IsInterface: true, SuperIdx: -1})
	baseIdx := h.AddNode(&classpath.Node{Name: "Base", SuperIdx: objIdx})
	derivedIdx := h.AddNode(&classpath.Node{
		Name: "Derived", SuperIdx: baseIdx, InterfaceIdxs: []int{markerIdx},
		IsInstantiated:        true,
		MemorizedVirtualCalls: []classpath.MemoCall{{MethodName: "run", MethodDesc: "()V"}},
	})
	h.NodeAt(derivedIdx).InstantiatedSubclasses = map[string]int{"Derived": derivedIdx}
	for i := 0; i < h.Len(); i++ {
		h.Link(i)
	}

	entry := rta.MethodKey{Class: "Base", Name: "run", Desc: "()V"}
	target := rta.MethodKey{Class: "Derived", Name: "run", Desc: "()V"}
	r := rta.Rehydrate([]rta.DispatchSite{
		{Class: "Base", Name: "run", Desc: "()V", Targets: []rta.MethodKey{target}},
	})
	r.Reachable = []rta.MethodKey{entry, target}
	r.Edges = []rta.Edge{{From: entry, To: target}}

	return New(h, descriptor.NewInterner(), r)
}

func TestSerializeDeserializeRoundTripsReachableAndEdges(t *testing.T) {
	p := buildSampleProgram()

	var buf bytes.Buffer
	require.NoError(t, p.Serialize(&buf))

	got, err := Deserialize(&buf)
	require.NoError(t, err)

	require.ElementsMatch(t, p.Reachable(), got.Reachable())
	require.ElementsMatch(t, p.CallgraphEdges(), got.CallgraphEdges())
}

func TestSerializeDeserializeRoundTripsStaticLookupMethod(t *testing.T) {
	p := buildSampleProgram()

	data, err := p.SerializeBytes()
	require.NoError(t, err)

	got, err := Deserialize(bytes.NewReader(data))
	require.NoError(t, err)

	want := p.StaticLookupMethod("Base", "run", "()V")
	require.Equal(t, want, got.StaticLookupMethod("Base", "run", "()V"))
	require.Len(t, got.StaticLookupMethod("Base", "run", "()V"), 1)
}

func TestSerializeDeserializeRoundTripsHierarchyShape(t *testing.T) {
	p := buildSampleProgram()

	data, err := p.SerializeBytes()
	require.NoError(t, err)

	got, err := Deserialize(bytes.NewReader(data))
	require.NoError(t, err)

	require.Equal(t, p.Hierarchy.Len(), got.Hierarchy.Len())

	wantDerived := p.Hierarchy.Index("Derived")
	wantBase := p.Hierarchy.Index("Base")
	wantMarker := p.Hierarchy.Index("Marker")
	gotDerived := got.Hierarchy.Index("Derived")
	gotBase := got.Hierarchy.Index("Base")
	gotMarker := got.Hierarchy.Index("Marker")
	require.NotEqual(t, -1, gotDerived)

	require.True(t, p.Hierarchy.IsSubclassOf(wantDerived, wantBase))
	require.True(t, got.Hierarchy.IsSubclassOf(gotDerived, gotBase))
	require.True(t, p.Hierarchy.Implements(wantDerived, wantMarker))
	require.True(t, got.Hierarchy.Implements(gotDerived, gotMarker))

	wantNode := p.Hierarchy.NodeAt(wantDerived)
	gotNode := got.Hierarchy.NodeAt(gotDerived)
	require.Equal(t, wantNode.IsInstantiated, gotNode.IsInstantiated)
	require.Equal(t, wantNode.MemorizedVirtualCalls, gotNode.MemorizedVirtualCalls)
}
