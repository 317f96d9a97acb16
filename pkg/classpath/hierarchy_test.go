package classpath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildDiamond(t *testing.T) *Hierarchy {
	t.Helper()
	h := NewHierarchy()

	object := &Node{Name: "java/lang/Object", SuperIdx: -1}
	objIdx := h.AddNode(object)

	runnable := &Node{Name: "Runnable", IsInterface: true, SuperIdx: -1}
	runIdx := h.AddNode(runnable)

	a := &Node{Name: "A", SuperIdx: objIdx, InterfaceIdxs: []int{runIdx}}
	aIdx := h.AddNode(a)
	h.Link(aIdx)

	b := &Node{Name: "B", SuperIdx: aIdx}
	bIdx := h.AddNode(b)
	h.Link(bIdx)

	h.Link(objIdx)
	h.Link(runIdx)

	return h
}

func TestIsSubclassOf(t *testing.T) {
	h := buildDiamond(t)
	a, b, obj := h.Index("A"), h.Index("B"), h.Index("java/lang/Object")

	require.True(t, h.IsSubclassOf(b, a))
	require.True(t, h.IsSubclassOf(b, obj))
	require.True(t, h.IsSubclassOf(a, a))
	require.False(t, h.IsSubclassOf(a, b))
}

func TestImplements(t *testing.T) {
	h := buildDiamond(t)
	a, b, runnable := h.Index("A"), h.Index("B"), h.Index("Runnable")

	require.True(t, h.Implements(a, runnable))
	require.True(t, h.Implements(b, runnable), "B inherits A's interface")
}

func TestAncestorChain(t *testing.T) {
	h := buildDiamond(t)
	b, a, obj := h.Index("B"), h.Index("A"), h.Index("java/lang/Object")

	chain := h.AncestorChain(b)
	require.Equal(t, []int{b, a, obj}, chain)
}

func TestChildrenLinked(t *testing.T) {
	h := buildDiamond(t)
	a := h.NodeAt(h.Index("A"))
	b := h.Index("B")

	require.Contains(t, a.ChildrenClasses, b)

	runnable := h.NodeAt(h.Index("Runnable"))
	require.Contains(t, runnable.ChildrenInterfaces, h.Index("A"))
}
