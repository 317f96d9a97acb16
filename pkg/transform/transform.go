// Package transform implements the bytecode-to-IR transformer: abstract
// symbolic execution of the JVM operand stack that reconstructs
// expression trees, folds `new ... <init>` into a single instruction,
// emits explicit safety checks in JVM order, and normalises everything
// to three-address form.
package transform

import (
	"fmt"

	"github.com/vantage-dev/jvmrta/pkg/classfile"
	"github.com/vantage-dev/jvmrta/pkg/descriptor"
	"github.com/vantage-dev/jvmrta/pkg/ir"
)

// Options configures the transformer.
type Options struct {
	// BCV additionally compares the static type of each operand-stack
	// slot on every revisit of a pc, failing BadStack on mismatch;
	// locals are not compared.
	BCV bool
	// ChLink emits CheckLink before any opcode whose resolution may
	// trigger class loading.
	ChLink bool
}

// Transform produces a MethodIR for one concrete method's Code attribute.
// className is the declaring class, used as the static type of `this`
// for an instance method.
func Transform(className string, m *classfile.MethodInfo, pool []classfile.ConstantPoolEntry, in *descriptor.Interner, opts Options) (*ir.Method, error) {
	if m.Code == nil {
		return nil, fmt.Errorf("transform %s: method has no Code attribute", m.Name)
	}
	sig, err := in.Method(m.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("transform %s%s: %w", m.Name, m.Descriptor, err)
	}

	t := &tstate{
		className: className,
		m:         m,
		code:      m.Code,
		pool:      pool,
		in:        in,
		opts:      opts,
		varIn:     ir.NewVarInterner(),
		pcBc2Ir:   make(map[int]int),
		visited:   make(map[int]shape),
		jumpTarget: make(map[int]bool),
	}

	locals := make([]slot, m.Code.MaxLocals)
	slotIdx := 0
	if !m.IsStatic() {
		v := t.varIn.Local(slotIdx, "this")
		locals[slotIdx] = basicSlot(ir.VarExpr(in.ObjectType(className), v))
		slotIdx++
	}
	for pi, p := range sig.Params {
		v := t.varIn.Local(slotIdx, "")
		locals[slotIdx] = basicSlot(ir.VarExpr(p, v))
		if p.Category2() {
			slotIdx++
		}
		slotIdx++
		_ = pi
	}

	for _, h := range m.Code.ExceptionHandlers {
		t.jumpTarget[int(h.HandlerPC)] = true
	}

	// A catch block is reachable only via the exception edge: the try
	// body's normal control flow never runs into it. Seed the worklist
	// with each distinct handler pc directly, with a one-deep operand
	// stack holding the caught exception bound to a fresh catch var, or
	// its handler body (and everything it can reach) would never be
	// symbolically executed at all. Several table entries can name the
	// same HandlerPC (multi-catch, or several try ranges sharing one
	// handler); they must all resolve to the one var actually defined
	// there, so mint it once per pc and let finish reuse it.
	t.handlerCatchVar = make(map[int]ir.Variable)
	for _, h := range m.Code.ExceptionHandlers {
		hp := int(h.HandlerPC)
		if _, ok := t.handlerCatchVar[hp]; ok {
			continue
		}
		cv := t.varIn.FreshCatch()
		t.handlerCatchVar[hp] = cv
		excType := in.ObjectType("java/lang/Throwable")
		if h.CatchType != 0 {
			if name, err := classfile.GetClassName(pool, h.CatchType); err == nil {
				excType = in.ObjectType(name)
			}
		}
		t.schedule(hp, locals, []slot{basicSlot(ir.VarExpr(excType, cv))})
	}

	t.worklist = append(t.worklist, state{pc: 0, locals: locals, stack: nil})

	for len(t.worklist) > 0 {
		st := t.worklist[0]
		t.worklist = t.worklist[1:]
		if err := t.run(st); err != nil {
			return nil, err
		}
	}

	return t.finish(sig)
}

// state is one entry of the transformer's pc worklist: the abstract
// machine state (locals + operand stack) to resume execution from at pc.
type state struct {
	pc     int
	locals []slot
	stack  []slot
}

type tstate struct {
	className string
	m         *classfile.MethodInfo
	code      *classfile.CodeAttribute
	pool      []classfile.ConstantPoolEntry
	in        *descriptor.Interner
	opts      Options
	varIn     *ir.VarInterner

	instrs  []ir.Instr
	pcBc2Ir map[int]int
	pcIr2Bc []int
	jumpTarget map[int]bool

	visited  map[int]shape
	worklist []state

	// handlerCatchVar maps a handler's bytecode pc to the catch var
	// seeded onto the operand stack when its block was scheduled, so
	// finish can attach the same var to every ir.Handler pointing at it.
	handlerCatchVar map[int]ir.Variable

	lineNumbers []ir.LineEntry
}

func (t *tstate) emit(pc int, instr ir.Instr) int {
	irpc := len(t.instrs)
	t.instrs = append(t.instrs, instr)
	t.pcIr2Bc = append(t.pcIr2Bc, pc)
	if _, ok := t.pcBc2Ir[pc]; !ok {
		t.pcBc2Ir[pc] = irpc
	}
	return irpc
}

func (t *tstate) schedule(pc int, locals []slot, stack []slot) {
	t.worklist = append(t.worklist, state{pc: pc, locals: cloneSlots(locals), stack: cloneSlots(stack)})
}

func cloneSlots(s []slot) []slot {
	out := make([]slot, len(s))
	copy(out, s)
	return out
}

// resolveIRPc maps a bytecode pc to the IR pc of the instruction it
// corresponds to. Most opcodes emit exactly one IR instruction at their
// own pc, so the common case is a direct pcBc2Ir hit; but a pure
// stack-effect opcode (iconst, dup, aload, ...) emits nothing, so a
// branch landing on one (e.g. the classic "push a constant on each arm,
// merge, store once" pattern) has no entry of its own. In that case the
// IR pc of the block it starts is the next instruction, forward from
// bcpc, that does emit one; nothing can branch into the middle of that
// run without itself being a jump target already resolved the same way.
func (t *tstate) resolveIRPc(bcpc int) (int, bool) {
	for bcpc < len(t.code.Code) {
		if irpc, ok := t.pcBc2Ir[bcpc]; ok {
			return irpc, true
		}
		width, err := t.instrWidth(bcpc)
		if err != nil || width <= 0 {
			return 0, false
		}
		bcpc += width
	}
	return 0, false
}

func (t *tstate) finish(sig *descriptor.MethodSig) (*ir.Method, error) {
	method := &ir.Method{
		Vars:    t.varIn.Vars(),
		Code:    t.instrs,
		PCBc2Ir: t.pcBc2Ir,
		PCIr2Bc: t.pcIr2Bc,
	}
	for _, ln := range t.code.LineNumbers {
		if irpc, ok := t.pcBc2Ir[int(ln.StartPC)]; ok {
			method.LineNumberTable = append(method.LineNumberTable, ir.LineEntry{IRPc: irpc, Line: int(ln.Line)})
		}
	}

	method.JumpTarget = make([]bool, len(t.instrs))
	for bcpc := range t.jumpTarget {
		if irpc, ok := t.resolveIRPc(bcpc); ok {
			method.JumpTarget[irpc] = true
		}
	}

	// IGoto/IIfd.Target was recorded in bytecode-pc space by run.go (the
	// same space branchTarget2/branchTarget4 compute in); ir.Instr.Target
	// is contractually an IR pc, so remap both kinds now that every
	// instruction the method can emit has been emitted.
	for i := range method.Code {
		switch method.Code[i].Kind {
		case ir.IGoto, ir.IIfd:
			if irpc, ok := t.resolveIRPc(method.Code[i].Target); ok {
				method.Code[i].Target = irpc
			}
		}
	}

	for _, h := range t.code.ExceptionHandlers {
		start, ok1 := t.resolveIRPc(int(h.StartPC))
		end, ok2 := t.pcBc2Ir[int(h.EndPC)]
		handlerPC, ok3 := t.resolveIRPc(int(h.HandlerPC))
		if !ok1 || !ok3 {
			continue
		}
		if !ok2 {
			end = len(t.instrs)
		}
		catchType := ""
		if h.CatchType != 0 {
			name, err := classfile.GetClassName(t.pool, h.CatchType)
			if err == nil {
				catchType = name
			}
		}
		catchVar := t.handlerCatchVar[int(h.HandlerPC)]
		method.ExcTbl = append(method.ExcTbl, ir.Handler{
			EStart: start, EEnd: end, EHandler: handlerPC,
			ECatchType: catchType, ECatchVar: catchVar,
		})
	}

	return method, nil
}

// opcodeAt returns the source opcode byte at pc. Operand bytes are read
// by run's per-opcode cases; run has no case for tableswitch,
// lookupswitch or wide, so it rejects them as unsupported opcodes.
func (t *tstate) opcodeAt(pc int) classfile.Opcode { return t.code.Code[pc] }
