package rta

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-dev/jvmrta/pkg/classfile"
	"github.com/vantage-dev/jvmrta/pkg/classpath"
	"github.com/vantage-dev/jvmrta/pkg/descriptor"
	"github.com/vantage-dev/jvmrta/pkg/ir"
)

// newTestDriver wires up a driver against a hand-built Hierarchy without
// a backing ClassPath, for exercising the dispatch/reprocessing algorithms
// directly — mirrors classpath's own hierarchy_test.go fixture style.
func newTestDriver(h *classpath.Hierarchy) *driver {
	return &driver{
		h:                  h,
		logger:             slog.New(slog.DiscardHandler),
		hasBeenParsed:      make(map[MethodKey]bool),
		clinitsDone:        make(map[string]bool),
		edgesOf:            make(map[MethodKey][]MethodKey),
		irCache:            make(map[MethodKey]*ir.Method),
		staticSpecialCache: make(map[MethodKey]MethodKey),
		virtualCache:       make(map[dispatchKey][]MethodKey),
		callersOf:          make(map[dispatchKey][]MethodKey),
	}
}

// buildShapeHierarchy builds: interface Shape{area()D}; Circle implements
// Shape; Square implements Shape. Both declare a concrete area()D.
func buildShapeHierarchy(t *testing.T) (*classpath.Hierarchy, map[string]int) {
	t.Helper()
	h := classpath.NewHierarchy()
	idx := map[string]int{}

	object := &classpath.Node{Name: "java/lang/Object", SuperIdx: -1}
	idx["Object"] = h.AddNode(object)

	shape := &classpath.Node{Name: "Shape", IsInterface: true, SuperIdx: -1}
	idx["Shape"] = h.AddNode(shape)

	circle := &classpath.Node{
		Name: "Circle", SuperIdx: idx["Object"], InterfaceIdxs: []int{idx["Shape"]},
		Methods: []classfile.MethodInfo{{Name: "area", Descriptor: "()D"}},
	}
	idx["Circle"] = h.AddNode(circle)

	square := &classpath.Node{
		Name: "Square", SuperIdx: idx["Object"], InterfaceIdxs: []int{idx["Shape"]},
		Methods: []classfile.MethodInfo{{Name: "area", Descriptor: "()D"}},
	}
	idx["Square"] = h.AddNode(square)

	h.Link(idx["Object"])
	h.Link(idx["Shape"])
	h.Link(idx["Circle"])
	h.Link(idx["Square"])

	return h, idx
}

func TestHandleVirtualSiteOnlyResolvesInstantiatedImplementors(t *testing.T) {
	h, idx := buildShapeHierarchy(t)
	d := newTestDriver(h)

	d.onInstantiatedNode(idx["Circle"])

	caller := MethodKey{Class: "Main", Name: "run", Desc: "()V"}
	instr := &ir.Instr{
		Kind:          ir.IInvokeVirtual,
		InvokeName:    "area",
		InvokeDesc:    mustSig(t, "()D"),
		Dispatch:      ir.DispatchInterface,
		DispatchIface: "Shape",
	}
	d.handleVirtualSite(caller, instr)

	targets := d.virtualCache[dispatchKey{Recv: "Shape", Name: "area", Desc: "()D"}]
	require.ElementsMatch(t, []MethodKey{{Class: "Circle", Name: "area", Desc: "()D"}}, targets)
	require.Contains(t, d.edgesOf[caller], MethodKey{Class: "Circle", Name: "area", Desc: "()D"})
	require.NotContains(t, d.edgesOf[caller], MethodKey{Class: "Square", Name: "area", Desc: "()D"})
}

func TestOnInstantiatedReprocessesMemoizedInterfaceCalls(t *testing.T) {
	h, idx := buildShapeHierarchy(t)
	d := newTestDriver(h)

	d.onInstantiatedNode(idx["Circle"])

	caller := MethodKey{Class: "Main", Name: "run", Desc: "()V"}
	instr := &ir.Instr{
		Kind:          ir.IInvokeVirtual,
		InvokeName:    "area",
		InvokeDesc:    mustSig(t, "()D"),
		Dispatch:      ir.DispatchInterface,
		DispatchIface: "Shape",
	}
	d.handleVirtualSite(caller, instr)

	// Square wasn't instantiated yet, so the call site hasn't resolved to
	// it. Instantiating it now must reprocess Shape's memoized call and
	// add the new edge retroactively, without re-walking caller's body.
	d.onInstantiatedNode(idx["Square"])

	targets := d.virtualCache[dispatchKey{Recv: "Shape", Name: "area", Desc: "()D"}]
	require.ElementsMatch(t, []MethodKey{
		{Class: "Circle", Name: "area", Desc: "()D"},
		{Class: "Square", Name: "area", Desc: "()D"},
	}, targets)
	require.Contains(t, d.edgesOf[caller], MethodKey{Class: "Square", Name: "area", Desc: "()D"})
}

func TestResolveVirtualWalksUpToNearestOverride(t *testing.T) {
	h := classpath.NewHierarchy()
	object := &classpath.Node{Name: "java/lang/Object", SuperIdx: -1}
	objIdx := h.AddNode(object)

	base := &classpath.Node{
		Name: "Base", SuperIdx: objIdx,
		Methods: []classfile.MethodInfo{{Name: "greet", Descriptor: "()V"}},
	}
	baseIdx := h.AddNode(base)
	h.Link(baseIdx)

	derived := &classpath.Node{Name: "Derived", SuperIdx: baseIdx}
	derivedIdx := h.AddNode(derived)
	h.Link(derivedIdx)

	d := newTestDriver(h)
	target := d.resolveVirtual("Derived", "greet", "()V")
	require.Equal(t, MethodKey{Class: "Base", Name: "greet", Desc: "()V"}, target)
}

func mustSig(t *testing.T, descr string) *descriptor.MethodSig {
	t.Helper()
	sig, err := descriptor.NewInterner().Method(descr)
	require.NoError(t, err)
	return sig
}
