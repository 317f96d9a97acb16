package rta

import (
	"github.com/vantage-dev/jvmrta/pkg/classpath"
	"github.com/vantage-dev/jvmrta/pkg/ir"
)

// dispatchKey identifies one virtual/interface dispatch signature: a
// static receiver type (a class for object-type dispatch, an interface
// name for interface dispatch) plus a method name+descriptor. Every call
// site sharing a dispatchKey shares the same resolved-target cache,
// which is the essence of RTA's cheap dispatch refinement: the targets
// grow as new classes are discovered instantiated, never shrink.
type dispatchKey struct {
	Recv string
	Name string
	Desc string
}

// handleVirtualSite resolves instr (an IInvokeVirtual, either
// DispatchObjectType or DispatchInterface) against every class known to
// be instantiated so far, memoises the call on the relevant hierarchy
// node so future instantiations can reprocess it, and records caller so
// a later-discovered target still gets an edge from it.
func (d *driver) handleVirtualSite(caller MethodKey, instr *ir.Instr) {
	var recv string
	var isIface bool
	switch instr.Dispatch {
	case ir.DispatchObjectType:
		if instr.DispatchType == nil || instr.DispatchType.ClassName == "" {
			return
		}
		recv = instr.DispatchType.ClassName
	case ir.DispatchInterface:
		recv = instr.DispatchIface
		isIface = true
	}
	name, desc := instr.InvokeName, instr.InvokeDesc.String()
	key := dispatchKey{Recv: recv, Name: name, Desc: desc}

	d.recordCaller(key, caller)
	d.memoizeCall(recv, isIface, name, desc)

	for _, c := range d.instantiatedImplementors(recv, isIface) {
		d.resolveAndBind(key, c, name, desc)
	}
}

// recordCaller remembers that caller made a dispatch at key, so that a
// target discovered later (via a newly-instantiated subclass) still
// gets an edge from every past caller, not just future ones.
func (d *driver) recordCaller(key dispatchKey, caller MethodKey) {
	for _, c := range d.callersOf[key] {
		if c == caller {
			return
		}
	}
	d.callersOf[key] = append(d.callersOf[key], caller)
}

// memoizeCall records the dispatch signature on recv's hierarchy node,
// the teacher's MemoCall idiom: the node remembers every (name, desc) a
// caller has ever dispatched against it, so onInstantiated can reprocess
// it against a brand new subclass without re-walking any caller's body.
func (d *driver) memoizeCall(recv string, isIface bool, name, desc string) {
	node := d.h.Node(recv)
	if node == nil {
		return
	}
	list := &node.MemorizedVirtualCalls
	if isIface {
		list = &node.MemorizedInterfaceCalls
	}
	for _, c := range *list {
		if c.MethodName == name && c.MethodDesc == desc {
			return
		}
	}
	*list = append(*list, classpath.MemoCall{MethodName: name, MethodDesc: desc})
}

// resolveAndBind resolves (implClass, name, desc) via ordinary virtual
// method lookup and, if that target is newly known for key, binds it
// into the dispatch cache and adds an edge from every known caller.
func (d *driver) resolveAndBind(key dispatchKey, implClass, name, desc string) {
	target := d.resolveVirtual(implClass, name, desc)
	if target == (MethodKey{}) {
		return
	}
	for _, t := range d.virtualCache[key] {
		if t == target {
			return
		}
	}
	d.virtualCache[key] = append(d.virtualCache[key], target)
	for _, caller := range d.callersOf[key] {
		d.addEdge(caller, target)
	}
	// a dispatch target with no caller yet recorded (e.g. reached only
	// through a native stub) still needs its body walked.
	d.enqueue(target)
}

// resolveVirtual walks the ancestor chain of implClass starting at
// implClass itself, returning the first class that declares a concrete
// (non-abstract) name+desc method — ordinary JVM virtual method
// resolution, JVMS 5.4.3.3.
func (d *driver) resolveVirtual(implClass, name, desc string) MethodKey {
	idx := d.h.Index(implClass)
	if idx < 0 {
		return MethodKey{}
	}
	for _, anc := range d.h.AncestorChain(idx) {
		node := d.h.NodeAt(anc)
		mi := node.MethodByNameDesc(name, desc)
		if mi != nil && !mi.IsAbstract() {
			return MethodKey{Class: node.Name, Name: name, Desc: desc}
		}
	}
	return MethodKey{}
}

// resolveSpecial resolves an invokespecial (non-<init>) call: a private
// method call or a super.method() call. Both resolve to the literal
// declaring class recorded on the instruction by pkg/transform, never to
// a dynamic subtype (JVMS 5.4.3.3's special-invoke rule).
func (d *driver) resolveSpecial(class, name, desc string) MethodKey {
	key := MethodKey{Class: class, Name: name, Desc: desc}
	if cached, ok := d.staticSpecialCache[key]; ok {
		return cached
	}
	idx := d.h.Index(class)
	if idx < 0 {
		return MethodKey{}
	}
	for _, anc := range d.h.AncestorChain(idx) {
		node := d.h.NodeAt(anc)
		if mi := node.MethodByNameDesc(name, desc); mi != nil {
			resolved := MethodKey{Class: node.Name, Name: name, Desc: desc}
			d.staticSpecialCache[key] = resolved
			return resolved
		}
	}
	return MethodKey{}
}

// instantiatedImplementors returns every hierarchy node currently marked
// instantiated that is recv itself (class dispatch: a subclass of recv)
// or that implements the interface named recv (interface dispatch).
func (d *driver) instantiatedImplementors(recv string, isIface bool) []string {
	recvIdx := d.h.Index(recv)
	if recvIdx < 0 {
		return nil
	}
	var out []string
	for i := 0; i < d.h.Len(); i++ {
		n := d.h.NodeAt(i)
		if n == nil || !n.IsInstantiated || n.IsInterface {
			continue
		}
		if isIface {
			if d.h.Implements(i, recvIdx) {
				out = append(out, n.Name)
			}
		} else if d.h.IsSubclassOf(i, recvIdx) {
			out = append(out, n.Name)
		}
	}
	return out
}
