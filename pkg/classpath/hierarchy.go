package classpath

import "github.com/vantage-dev/jvmrta/pkg/classfile"

// Node is a class hierarchy node (JVMS class or interface). The hierarchy
// is modelled as an arena owned by Hierarchy: nodes reference each other
// by index rather than pointer, so the otherwise-cyclic parent/child
// graph has no actual reference cycles.
type Node struct {
	Name        string
	IsInterface bool
	AccessFlags uint16

	SuperIdx      int   // -1 for java/lang/Object or an interface
	InterfaceIdxs []int

	ChildrenClasses    []int
	ChildrenInterfaces []int

	Methods []classfile.MethodInfo
	Fields  []classfile.FieldInfo

	// RTA mutable state, touched only by pkg/rta.
	IsInstantiated         bool
	InstantiatedSubclasses map[string]int // class_name -> arena index, includes self

	MemorizedVirtualCalls   []MemoCall
	MemorizedInterfaceCalls []MemoCall
}

// MemoCall records a dispatch site memoised against this node so RTA can
// reprocess it when a new subclass becomes instantiated.
type MemoCall struct {
	MethodName string
	MethodDesc string
}

// MethodByNameDesc finds a declared method by name+descriptor, not
// walking the hierarchy.
func (n *Node) MethodByNameDesc(name, desc string) *classfile.MethodInfo {
	for i := range n.Methods {
		if n.Methods[i].Name == name && n.Methods[i].Descriptor == desc {
			return &n.Methods[i]
		}
	}
	return nil
}

// Hierarchy owns the arena of Nodes and the name index into it.
type Hierarchy struct {
	nodes   []*Node
	byName  map[string]int
}

func NewHierarchy() *Hierarchy {
	return &Hierarchy{byName: make(map[string]int)}
}

// Node returns the node for a class name, or nil if not indexed.
func (h *Hierarchy) Node(name string) *Node {
	idx, ok := h.byName[name]
	if !ok {
		return nil
	}
	return h.nodes[idx]
}

// Index returns the arena index for a class name, or -1.
func (h *Hierarchy) Index(name string) int {
	idx, ok := h.byName[name]
	if !ok {
		return -1
	}
	return idx
}

// NodeAt returns the node at an arena index.
func (h *Hierarchy) NodeAt(idx int) *Node {
	if idx < 0 || idx >= len(h.nodes) {
		return nil
	}
	return h.nodes[idx]
}

// Len returns the number of indexed nodes.
func (h *Hierarchy) Len() int { return len(h.nodes) }

// AddNode allocates a new arena slot for a not-yet-linked node and
// returns its index. Exported so a deserializer (internal/program) or a
// test fixture can rebuild a Hierarchy without going through a live
// ClassPath; ClassPath.EnsureNode is the only caller that also needs the
// load lock held while doing so.
func (h *Hierarchy) AddNode(n *Node) int {
	idx := len(h.nodes)
	h.nodes = append(h.nodes, n)
	h.byName[n.Name] = idx
	return idx
}

// Link wires n's super/interface edges once the corresponding nodes
// exist, and registers n as a child on each side.
func (h *Hierarchy) Link(idx int) {
	n := h.nodes[idx]
	if n.SuperIdx >= 0 {
		super := h.nodes[n.SuperIdx]
		super.ChildrenClasses = append(super.ChildrenClasses, idx)
	}
	for _, ifaceIdx := range n.InterfaceIdxs {
		iface := h.nodes[ifaceIdx]
		iface.ChildrenInterfaces = append(iface.ChildrenInterfaces, idx)
	}
}

// IsSubclassOf reports whether the class at idx is a subclass of, or
// equal to, ancestorIdx by walking idx's super chain.
func (h *Hierarchy) IsSubclassOf(idx, ancestorIdx int) bool {
	for idx >= 0 {
		if idx == ancestorIdx {
			return true
		}
		idx = h.nodes[idx].SuperIdx
	}
	return false
}

// Implements reports whether the class at idx transitively implements
// the interface at ifaceIdx, walking super chain and each level's
// directly-declared interfaces (and their own superinterfaces).
func (h *Hierarchy) Implements(idx, ifaceIdx int) bool {
	for cur := idx; cur >= 0; cur = h.nodes[cur].SuperIdx {
		for _, ii := range h.nodes[cur].InterfaceIdxs {
			if h.interfaceExtends(ii, ifaceIdx) {
				return true
			}
		}
	}
	return false
}

func (h *Hierarchy) interfaceExtends(idx, target int) bool {
	if idx == target {
		return true
	}
	for _, ii := range h.nodes[idx].InterfaceIdxs {
		if h.interfaceExtends(ii, target) {
			return true
		}
	}
	return false
}

// AncestorChain returns idx and every superclass index up to and
// including java/lang/Object's node, in subclass-to-superclass order.
func (h *Hierarchy) AncestorChain(idx int) []int {
	var chain []int
	for idx >= 0 {
		chain = append(chain, idx)
		idx = h.nodes[idx].SuperIdx
	}
	return chain
}
