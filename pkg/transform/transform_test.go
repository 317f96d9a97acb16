package transform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-dev/jvmrta/pkg/classfile"
	"github.com/vantage-dev/jvmrta/pkg/descriptor"
	"github.com/vantage-dev/jvmrta/pkg/ir"
)

// poolBuilder assembles a constant pool incrementally, JVMS-style
// (index 0 is the reserved sentinel every real ClassFile also leaves
// unused).
type poolBuilder struct {
	pool []classfile.ConstantPoolEntry
}

func newPoolBuilder() *poolBuilder {
	return &poolBuilder{pool: []classfile.ConstantPoolEntry{nil}}
}

func (b *poolBuilder) add(e classfile.ConstantPoolEntry) uint16 {
	b.pool = append(b.pool, e)
	return uint16(len(b.pool) - 1)
}

func (b *poolBuilder) utf8(s string) uint16 {
	return b.add(&classfile.ConstantUtf8{Value: s})
}

func (b *poolBuilder) class(name string) uint16 {
	return b.add(&classfile.ConstantClass{NameIndex: b.utf8(name)})
}

func (b *poolBuilder) methodref(class, name, desc string) uint16 {
	classIdx := b.class(class)
	natIdx := b.add(&classfile.ConstantNameAndType{NameIndex: b.utf8(name), DescriptorIndex: b.utf8(desc)})
	return b.add(&classfile.ConstantMethodref{ClassIndex: classIdx, NameAndTypeIndex: natIdx})
}

// TestTransformFoldsNewDupInvokespecialIntoOneINew reproduces the
// constructor-folding scenario: `new A; dup; invokespecial A.<init>()V;
// astore_1; return` must become one INew whose result feeds the local
// store directly, never a dangling invoke on the uninitialized marker.
func TestTransformFoldsNewDupInvokespecialIntoOneINew(t *testing.T) {
	pb := newPoolBuilder()
	newIdx := pb.class("A")
	initIdx := pb.methodref("A", "<init>", "()V")

	code := []byte{
		classfile.OpNew, byte(newIdx >> 8), byte(newIdx),
		classfile.OpDup,
		classfile.OpInvokespecial, byte(initIdx >> 8), byte(initIdx),
		classfile.OpAstore1,
		classfile.OpReturn,
	}

	mi := &classfile.MethodInfo{
		Name: "run", Descriptor: "()V",
		Code: &classfile.CodeAttribute{MaxStack: 2, MaxLocals: 2, Code: code},
	}

	in := descriptor.NewInterner()
	m, err := Transform("Main", mi, pb.pool, in, Options{})
	require.NoError(t, err)

	var news []ir.Instr
	var invokes []ir.Instr
	for _, instr := range m.Code {
		switch instr.Kind {
		case ir.INew:
			news = append(news, instr)
		case ir.IInvokeNonVirtual, ir.IInvokeStatic, ir.IInvokeVirtual:
			invokes = append(invokes, instr)
		}
	}
	require.Len(t, news, 1, "new+dup+invokespecial<init> must fold into exactly one INew")
	require.Empty(t, invokes, "the folded <init> call must not also appear as a separate invoke instruction")
	require.Equal(t, "A", news[0].NewClass)

	var lastAffect *ir.Instr
	for i := range m.Code {
		if m.Code[i].Kind == ir.IAffectVar {
			lastAffect = &m.Code[i]
		}
	}
	require.NotNil(t, lastAffect, "astore_1 must still emit a local assignment")
	require.False(t, lastAffect.AExpr.Basic.IsConst)
	require.Equal(t, news[0].NewVar.Index, lastAffect.AExpr.Basic.Var.Index,
		"the stored value must be the INew result, not a dangling reference to the uninitialized marker")
}

// TestTransformAastoreChecksNullBoundsThenStoreInOrder reproduces the
// aastore check-ordering scenario: null check, then bounds check, then
// (aastore only) the array-store compatibility check, each as its own
// explicit Check preceding the IAffectArray.
func TestTransformAastoreChecksNullBoundsThenStoreInOrder(t *testing.T) {
	code := []byte{
		classfile.OpAconstNull,
		classfile.OpIconst0,
		classfile.OpAconstNull,
		classfile.OpAastore,
		classfile.OpReturn,
	}
	mi := &classfile.MethodInfo{
		Name: "run", Descriptor: "()V",
		Code: &classfile.CodeAttribute{MaxStack: 3, MaxLocals: 1, Code: code},
	}
	in := descriptor.NewInterner()
	m, err := Transform("Main", mi, nil, in, Options{})
	require.NoError(t, err)

	var kinds []ir.CheckKind
	var sawStore bool
	for _, instr := range m.Code {
		if instr.Kind == ir.ICheck {
			require.False(t, sawStore, "no check may follow the array store itself")
			kinds = append(kinds, instr.Check.Kind)
		}
		if instr.Kind == ir.IAffectArray {
			sawStore = true
		}
	}
	require.Equal(t, []ir.CheckKind{ir.CheckNullPointer, ir.CheckArrayBound, ir.CheckArrayStore}, kinds)
}

// TestTransformIdivChecksArithmeticBeforeDividing reproduces the idiv
// check-ordering scenario: the divide-by-zero guard precedes the
// division expression, never after it.
func TestTransformIdivChecksArithmeticBeforeDividing(t *testing.T) {
	code := []byte{
		classfile.OpIconst1,
		classfile.OpIconst0,
		classfile.OpIdiv,
		classfile.OpPop,
		classfile.OpReturn,
	}
	mi := &classfile.MethodInfo{
		Name: "run", Descriptor: "()V", AccessFlags: classfile.AccStatic,
		Code: &classfile.CodeAttribute{MaxStack: 2, MaxLocals: 0, Code: code},
	}
	in := descriptor.NewInterner()
	m, err := Transform("Main", mi, nil, in, Options{})
	require.NoError(t, err)

	checkIdx, divIdx := -1, -1
	for i, instr := range m.Code {
		if instr.Kind == ir.ICheck && instr.Check.Kind == ir.CheckArithmetic {
			checkIdx = i
		}
		if instr.Kind == ir.IAffectVar && instr.AExpr.Kind == ir.ExprBinop && instr.AExpr.BinOp == ir.OpDiv {
			divIdx = i
		}
	}
	require.NotEqual(t, -1, checkIdx)
	require.NotEqual(t, -1, divIdx)
	require.Less(t, checkIdx, divIdx, "the arithmetic check must precede the division it guards")
}

// TestTransformBranchTargetsAreIRPcsNotBytecodePcs reproduces `if (x == 0)
// y = 1; else y = 2; return;`. The else arm's first opcode (iconst_2) is a
// pure stack push that never emits an IR instruction of its own, so the
// ifeq's Target must resolve forward to the istore_1 that does; the
// goto's Target must resolve to the final return. Both must end up as
// valid indices into the emitted IR, not the original bytecode pcs.
func TestTransformBranchTargetsAreIRPcsNotBytecodePcs(t *testing.T) {
	code := []byte{
		classfile.OpIconst0, // pc0
		classfile.OpIfeq, 0, 8, // pc1: -> pc9
		classfile.OpIconst1,  // pc4
		classfile.OpIstore1,  // pc5
		classfile.OpGoto, 0, 5, // pc6: -> pc11
		classfile.OpIconst2, // pc9
		classfile.OpIstore1, // pc10
		classfile.OpReturn,  // pc11
	}
	mi := &classfile.MethodInfo{
		Name: "run", Descriptor: "()V",
		Code: &classfile.CodeAttribute{MaxStack: 1, MaxLocals: 2, Code: code},
	}
	in := descriptor.NewInterner()
	m, err := Transform("Main", mi, nil, in, Options{})
	require.NoError(t, err)

	var ifd, goto_ *ir.Instr
	var returnIdx, elseStoreIdx = -1, -1
	for i := range m.Code {
		switch m.Code[i].Kind {
		case ir.IIfd:
			ifd = &m.Code[i]
		case ir.IGoto:
			goto_ = &m.Code[i]
		case ir.IReturn:
			returnIdx = i
		case ir.IAffectVar:
			if m.Code[i].AExpr.Basic.IsConst && m.Code[i].AExpr.Basic.Const.Int == 2 {
				elseStoreIdx = i
			}
		}
	}
	require.NotNil(t, ifd)
	require.NotNil(t, goto_)
	require.NotEqual(t, -1, returnIdx)
	require.NotEqual(t, -1, elseStoreIdx)

	require.Less(t, ifd.Target, len(m.Code), "Target must be an IR pc, not a leftover bytecode pc (9)")
	require.Less(t, goto_.Target, len(m.Code), "Target must be an IR pc, not a leftover bytecode pc (11)")
	require.Equal(t, elseStoreIdx, ifd.Target, "ifeq's else target has no IR instruction of its own (iconst_2 pushes nothing material); it must resolve forward to the store that follows it")
	require.Equal(t, returnIdx, goto_.Target)
	require.True(t, m.JumpTarget[ifd.Target])
	require.True(t, m.JumpTarget[goto_.Target])
}

// TestTransformExceptionHandlerBodyIsEmittedAndBound reproduces a
// minimal try/catch: the try body (aconst_null; pop) is followed by a
// goto that skips straight to the method's tail return, so the handler
// body (astore_1; return) is reachable only through the exception
// table's HandlerPC, never through normal fall-through or branch
// control flow. Both the handler's own instructions and its binding
// onto ir.Method.ExcTbl must exist for this to do anything at all.
func TestTransformExceptionHandlerBodyIsEmittedAndBound(t *testing.T) {
	code := []byte{
		classfile.OpAconstNull, // pc0: try body
		classfile.OpPop,        // pc1
		classfile.OpGoto, 0, 5, // pc2: -> pc7
		classfile.OpAstore1, // pc5: handler
		classfile.OpReturn,  // pc6
		classfile.OpReturn,  // pc7
	}
	mi := &classfile.MethodInfo{
		Name: "run", Descriptor: "()V",
		Code: &classfile.CodeAttribute{
			MaxStack: 1, MaxLocals: 2, Code: code,
			ExceptionHandlers: []classfile.ExceptionHandler{
				{StartPC: 0, EndPC: 2, HandlerPC: 5, CatchType: 0},
			},
		},
	}
	in := descriptor.NewInterner()
	m, err := Transform("Main", mi, nil, in, Options{})
	require.NoError(t, err)

	require.Len(t, m.ExcTbl, 1)
	h := m.ExcTbl[0]
	require.Less(t, h.EHandler, len(m.Code), "EHandler must be a valid IR pc into the emitted code")
	require.Equal(t, ir.IAffectVar, m.Code[h.EHandler].Kind, "the handler's own astore_1 must have been emitted, not skipped")
	require.Equal(t, h.ECatchVar.Index, m.Code[h.EHandler].AExpr.Basic.Var.Index,
		"astore_1 must store the caught exception value seeded at the handler entry, not some unrelated var")
	require.Equal(t, "", h.ECatchType)

	var sawReturnAfterHandler bool
	for i := h.EHandler; i < len(m.Code); i++ {
		if m.Code[i].Kind == ir.IReturn {
			sawReturnAfterHandler = true
			break
		}
	}
	require.True(t, sawReturnAfterHandler, "the handler's body (astore_1; return) must have been symbolically executed to completion")
}
