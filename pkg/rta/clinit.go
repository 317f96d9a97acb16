package rta

// onInstantiated marks class as instantiated (triggered by a `new`, or by
// a native stub's AllocatedClasses) and reprocesses every virtual and
// interface call memoized against class or any of its ancestors and
// transitively-implemented interfaces: one of them may now resolve to a
// method it couldn't before.
//
// Reprocessing interfaces as well as superclasses is a deliberate choice:
// a call site dispatching through an interface type only ever memoizes
// against the interface node, so without walking class's transitively
// implemented interfaces too, instantiating a fresh implementation of an
// already-dispatched interface would never unlock its targets.
func (d *driver) onInstantiated(class string) {
	node, err := d.cp.EnsureNode(class)
	if err != nil {
		d.logger.Warn("rta: cannot instantiate unresolvable class", "class", class, "err", err)
		return
	}
	d.onInstantiatedNode(d.h.Index(node.Name))
}

// onInstantiatedNode is the cp-free core of onInstantiated, kept separate
// so the reprocessing algorithm can be exercised directly against a
// hand-built Hierarchy in tests.
func (d *driver) onInstantiatedNode(idx int) {
	node := d.h.NodeAt(idx)
	if node == nil || node.IsInstantiated {
		return
	}
	node.IsInstantiated = true
	class := node.Name

	ancestors := d.h.AncestorChain(idx)
	ifaces := d.transitiveInterfaces(idx)

	for _, anc := range ancestors {
		ancNode := d.h.NodeAt(anc)
		if ancNode.InstantiatedSubclasses == nil {
			ancNode.InstantiatedSubclasses = map[string]int{}
		}
		ancNode.InstantiatedSubclasses[class] = idx
		for _, mc := range ancNode.MemorizedVirtualCalls {
			d.resolveAndBind(dispatchKey{Recv: ancNode.Name, Name: mc.MethodName, Desc: mc.MethodDesc}, class, mc.MethodName, mc.MethodDesc)
		}
	}
	for _, ifaceIdx := range ifaces {
		ifaceNode := d.h.NodeAt(ifaceIdx)
		if ifaceNode.InstantiatedSubclasses == nil {
			ifaceNode.InstantiatedSubclasses = map[string]int{}
		}
		ifaceNode.InstantiatedSubclasses[class] = idx
		for _, mc := range ifaceNode.MemorizedInterfaceCalls {
			d.resolveAndBind(dispatchKey{Recv: ifaceNode.Name, Name: mc.MethodName, Desc: mc.MethodDesc}, class, mc.MethodName, mc.MethodDesc)
		}
	}
}

// transitiveInterfaces returns every interface idx's class and its
// ancestors implement, directly or through superinterfaces.
func (d *driver) transitiveInterfaces(idx int) []int {
	seen := map[int]bool{}
	var out []int
	var visit func(i int)
	visit = func(i int) {
		if seen[i] {
			return
		}
		seen[i] = true
		out = append(out, i)
		for _, super := range d.h.NodeAt(i).InterfaceIdxs {
			visit(super)
		}
	}
	for _, anc := range d.h.AncestorChain(idx) {
		for _, ifaceIdx := range d.h.NodeAt(anc).InterfaceIdxs {
			visit(ifaceIdx)
		}
	}
	return out
}

// scheduleClinit enqueues class's <clinit>, if it declares one and
// hasn't already been scheduled. For an interface this is the entire
// effect (JVMS 5.5: interfaces initialize lazily and independently of
// their superinterfaces). For a class it also walks the superclass
// chain, since initializing a class always initializes its superclasses
// first — the Open Question this resolves is decided in favour of
// scheduling the whole chain up front rather than modelling strict
// initialization order, which RTA's reachability question does not need.
func (d *driver) scheduleClinit(class string) {
	node, err := d.cp.EnsureNode(class)
	if err != nil {
		d.logger.Warn("rta: cannot initialize unresolvable class", "class", class, "err", err)
		return
	}
	if node.IsInterface {
		d.enqueueClinit(node.Name)
		return
	}
	idx := d.h.Index(class)
	for _, anc := range d.h.AncestorChain(idx) {
		d.enqueueClinit(d.h.NodeAt(anc).Name)
	}
}

func (d *driver) enqueueClinit(class string) {
	if d.clinitsDone[class] {
		return
	}
	d.clinitsDone[class] = true
	node := d.h.Node(class)
	if node == nil {
		return
	}
	if mi := node.MethodByNameDesc("<clinit>", "()V"); mi != nil {
		d.enqueue(MethodKey{Class: class, Name: "<clinit>", Desc: "()V"})
	}
}
