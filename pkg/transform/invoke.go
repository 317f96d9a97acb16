package transform

import (
	"github.com/vantage-dev/jvmrta/pkg/classfile"
	"github.com/vantage-dev/jvmrta/pkg/descriptor"
	"github.com/vantage-dev/jvmrta/pkg/ir"
)

// doInvokeStatic pops the static method's arguments and emits InvokeStatic,
// pushing a result temp unless the method returns void.
func (t *tstate) doInvokeStatic(pc int, idx uint16, stackp *[]slot) error {
	class, name, desc, err := classfile.RefTarget(t.pool, idx)
	if err != nil {
		return fail(BadStack, pc, err.Error())
	}
	sig, err := t.in.Method(desc)
	if err != nil {
		return fail(BadStack, pc, err.Error())
	}
	args, err := t.popArgs(pc, stackp, len(sig.Params))
	if err != nil {
		return err
	}
	t.emit(pc, ir.Instr{Kind: ir.IMayInit, MayInitClass: class})
	if t.opts.ChLink {
		t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "invokestatic"})
	}
	t.emitInvoke(pc, stackp, ir.IInvokeStatic, class, name, sig, ir.BasicExpr{}, ir.DispatchKind(0), "", args)
	return nil
}

// doInvokeVirtual pops the receiver and arguments and emits a
// virtual-dispatch invoke, statically resolved against the receiver's
// declared type (RTA refines this to the concrete-subtype edge set).
func (t *tstate) doInvokeVirtual(pc int, idx uint16, stackp *[]slot) error {
	class, name, desc, err := classfile.RefTarget(t.pool, idx)
	if err != nil {
		return fail(BadStack, pc, err.Error())
	}
	sig, err := t.in.Method(desc)
	if err != nil {
		return fail(BadStack, pc, err.Error())
	}
	args, err := t.popArgs(pc, stackp, len(sig.Params))
	if err != nil {
		return err
	}
	recvS, err := t.popOne(stackp)
	if err != nil {
		return err
	}
	recvB, err := t.toBasic(pc, recvS)
	if err != nil {
		return err
	}
	t.emitCheck(pc, ir.Check{Kind: ir.CheckNullPointer, Arg: recvB})
	if t.opts.ChLink {
		t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "invokevirtual"})
	}
	instr := ir.Instr{
		Kind: ir.IInvokeVirtual, InvokeClass: class, InvokeName: name, InvokeDesc: sig,
		InvokeArgs: args, InvokeReceiver: recvB,
		Dispatch: ir.DispatchObjectType, DispatchType: recvB.Type,
	}
	t.pushInvokeResult(pc, stackp, &instr, sig)
	return nil
}

// doInvokeInterface is doInvokeVirtual's interface-dispatch counterpart:
// identical operand shape, resolved by interface method table instead.
func (t *tstate) doInvokeInterface(pc int, idx uint16, stackp *[]slot) error {
	class, name, desc, err := classfile.RefTarget(t.pool, idx)
	if err != nil {
		return fail(BadStack, pc, err.Error())
	}
	sig, err := t.in.Method(desc)
	if err != nil {
		return fail(BadStack, pc, err.Error())
	}
	args, err := t.popArgs(pc, stackp, len(sig.Params))
	if err != nil {
		return err
	}
	recvS, err := t.popOne(stackp)
	if err != nil {
		return err
	}
	recvB, err := t.toBasic(pc, recvS)
	if err != nil {
		return err
	}
	t.emitCheck(pc, ir.Check{Kind: ir.CheckNullPointer, Arg: recvB})
	if t.opts.ChLink {
		t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "invokeinterface"})
	}
	instr := ir.Instr{
		Kind: ir.IInvokeVirtual, InvokeClass: class, InvokeName: name, InvokeDesc: sig,
		InvokeArgs: args, InvokeReceiver: recvB,
		Dispatch: ir.DispatchInterface, DispatchIface: class,
	}
	t.pushInvokeResult(pc, stackp, &instr, sig)
	return nil
}

// doInvokeSpecial handles invokespecial, which covers three JVM cases:
// private/superclass calls (ordinary non-virtual invoke), and a
// constructor call on a just-`new`'d object. The latter is detected when
// the receiver slot is still an Uninit marker and the called method is
// <init>: per the object-creation folding rule, this replaces every
// stack/local occurrence of that same Uninit marker with a single INew,
// rather than emitting a normal non-virtual invoke on a dangling Uninit.
func (t *tstate) doInvokeSpecial(pc int, idx uint16, stackp *[]slot, locals []slot) error {
	class, name, desc, err := classfile.RefTarget(t.pool, idx)
	if err != nil {
		return fail(BadStack, pc, err.Error())
	}
	sig, err := t.in.Method(desc)
	if err != nil {
		return fail(BadStack, pc, err.Error())
	}
	n := len(sig.Params)
	stack := *stackp
	if len(stack) < n+1 {
		return fail(BadStack, pc, "invokespecial: not enough operands")
	}
	recv := stack[len(stack)-n-1]

	if name == "<init>" && recv.uninit {
		argSlots := append([]slot(nil), stack[len(stack)-n:]...)
		stack = stack[:len(stack)-n-1]
		args := make([]ir.BasicExpr, n)
		for i, a := range argSlots {
			b, err := t.toBasic(pc, a)
			if err != nil {
				return err
			}
			args[i] = b
		}
		if t.opts.ChLink {
			t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "invokespecial"})
		}
		nv := t.varIn.FreshTemp()
		t.emit(pc, ir.Instr{
			Kind: ir.INew, NewVar: nv, NewClass: recv.uninitClass,
			NewArgTypes: sig.Params, NewArgs: args,
		})
		newVal := basicSlot(ir.VarExpr(t.in.ObjectType(recv.uninitClass), nv))
		replaceUninit(stack, recv.uninitPC, newVal)
		replaceUninit(locals, recv.uninitPC, newVal)
		*stackp = stack
		t.replaceUninitInLocals(recv.uninitPC, newVal)
		return nil
	}

	args, err := t.popArgs(pc, stackp, n)
	if err != nil {
		return err
	}
	recvS, err := t.popOne(stackp)
	if err != nil {
		return err
	}
	if recvS.uninit {
		return fail(UninitIsNotExpr, pc, "uninitialized reference used as invokespecial receiver of a non-<init> call")
	}
	recvB, err := t.toBasic(pc, recvS)
	if err != nil {
		return err
	}
	t.emitCheck(pc, ir.Check{Kind: ir.CheckNullPointer, Arg: recvB})
	if t.opts.ChLink {
		t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "invokespecial"})
	}
	instr := ir.Instr{
		Kind: ir.IInvokeNonVirtual, InvokeClass: class, InvokeName: name, InvokeDesc: sig,
		InvokeArgs: args, InvokeReceiver: recvB,
	}
	t.pushInvokeResult(pc, stackp, &instr, sig)
	return nil
}

func (t *tstate) popArgs(pc int, stackp *[]slot, n int) ([]ir.BasicExpr, error) {
	stack := *stackp
	if len(stack) < n {
		return nil, fail(BadStack, pc, "not enough operands for call arguments")
	}
	raw := stack[len(stack)-n:]
	*stackp = stack[:len(stack)-n]
	args := make([]ir.BasicExpr, n)
	for i, s := range raw {
		b, err := t.toBasic(pc, s)
		if err != nil {
			return nil, err
		}
		args[i] = b
	}
	return args, nil
}

func (t *tstate) popOne(stackp *[]slot) (slot, error) {
	stack := *stackp
	if len(stack) == 0 {
		return slot{}, fail(BadStack, 0, "operand stack underflow")
	}
	v := stack[len(stack)-1]
	*stackp = stack[:len(stack)-1]
	return v, nil
}

func (t *tstate) pushInvokeResult(pc int, stackp *[]slot, instr *ir.Instr, sig *descriptor.MethodSig) {
	if sig.Return.Kind == descriptor.KindVoid {
		instr.InvokeResult = nil
		t.emit(pc, *instr)
		return
	}
	tmp := t.varIn.FreshTemp()
	instr.InvokeResult = &tmp
	t.emit(pc, *instr)
	*stackp = push(*stackp, basicSlot(ir.VarExpr(sig.Return, tmp)))
}

func (t *tstate) emitInvoke(pc int, stackp *[]slot, kind ir.InstrKind, class, name string, sig *descriptor.MethodSig, recv ir.BasicExpr, dispatch ir.DispatchKind, iface string, args []ir.BasicExpr) {
	instr := ir.Instr{
		Kind: kind, InvokeClass: class, InvokeName: name, InvokeDesc: sig,
		InvokeArgs: args, InvokeReceiver: recv, Dispatch: dispatch, DispatchIface: iface,
	}
	t.pushInvokeResult(pc, stackp, &instr, sig)
}

// replaceUninit rewrites every stack slot matching the folded Uninit
// marker (same originating `new` pc) to the live value newVal now
// carries, since `dup` may have produced several aliasing references to
// the same not-yet-initialized object before its <init> ran.
func replaceUninit(stack []slot, uninitPC int, newVal slot) {
	for i := range stack {
		if stack[i].uninit && stack[i].uninitPC == uninitPC {
			stack[i] = newVal
		}
	}
}

func (t *tstate) replaceUninitInLocals(uninitPC int, newVal slot) {
	for _, st := range t.worklist {
		for i := range st.locals {
			if st.locals[i].uninit && st.locals[i].uninitPC == uninitPC {
				st.locals[i] = newVal
			}
		}
	}
}
