package transform

import (
	"encoding/binary"
	"fmt"

	"github.com/vantage-dev/jvmrta/pkg/classfile"
	"github.com/vantage-dev/jvmrta/pkg/descriptor"
	"github.com/vantage-dev/jvmrta/pkg/ir"
)

// run executes the symbolic interpreter forward from st.pc until the
// block ends (a return, throw, or unconditional transfer), scheduling
// any successor pcs onto the worklist rather than recursing into them.
func (t *tstate) run(st state) error {
	pc := st.pc
	locals := st.locals
	stack := st.stack

	for {
		if prev, seen := t.visited[pc]; seen {
			cur := shapeOf(stack)
			if !cur.compatible(prev, t.opts.BCV) {
				return fail(BadStack, pc, "incompatible stack shape on revisit")
			}
			// Already transformed from this pc onward; stop this branch of
			// the worklist walk without re-emitting instructions.
			return nil
		}
		t.visited[pc] = shapeOf(stack)

		op := t.opcodeAt(pc)
		width, err := t.instrWidth(pc)
		if err != nil {
			return err
		}
		next := pc + width

		switch op {
		case classfile.OpNop:
			t.emit(pc, ir.Instr{Kind: ir.INop})

		case classfile.OpAconstNull:
			stack = push(stack, exprSlot(ir.BasicOf(ir.ConstExpr(ir.Constant{Kind: ir.ConstNull}, nil)), nil))

		case classfile.OpBipush:
			v := int32(int8(t.code.Code[pc+1]))
			stack = push(stack, intConst(t.in, v))
		case classfile.OpSipush:
			v := int32(int16(binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])))
			stack = push(stack, intConst(t.in, v))

		case classfile.OpLdc, classfile.OpLdcW, classfile.OpLdc2W:
			var idx uint16
			if op == classfile.OpLdc {
				idx = uint16(t.code.Code[pc+1])
			} else {
				idx = binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			}
			s, err := t.loadConstant(idx)
			if err != nil {
				return err
			}
			stack = push(stack, s)

		case classfile.OpIconstM1, classfile.OpIconst0, classfile.OpIconst1, classfile.OpIconst2,
			classfile.OpIconst3, classfile.OpIconst4, classfile.OpIconst5:
			stack = push(stack, intConst(t.in, int32(op)-int32(classfile.OpIconst0)))
		case classfile.OpLconst0:
			stack = push(stack, constSlot(ir.Constant{Kind: ir.ConstLong, Long: 0}, t.in.PrimitiveType(descriptor.Long)))
		case classfile.OpFconst0:
			stack = push(stack, constSlot(ir.Constant{Kind: ir.ConstFloat, Float: 0}, t.in.PrimitiveType(descriptor.Float)))
		case classfile.OpDconst0:
			stack = push(stack, constSlot(ir.Constant{Kind: ir.ConstDouble, Double: 0}, t.in.PrimitiveType(descriptor.Double)))

		case classfile.OpIload, classfile.OpLload, classfile.OpFload, classfile.OpDload, classfile.OpAload:
			slotIdx := int(t.code.Code[pc+1])
			stack = push(stack, readLocal(locals, slotIdx))
		case classfile.OpIload0, classfile.OpIload1, classfile.OpIload2, classfile.OpIload3,
			classfile.OpLload0, classfile.OpLload1, classfile.OpLload2, classfile.OpLload3,
			classfile.OpFload0, classfile.OpFload1, classfile.OpFload2, classfile.OpFload3,
			classfile.OpDload0, classfile.OpDload1, classfile.OpDload2, classfile.OpDload3,
			classfile.OpAload0, classfile.OpAload1, classfile.OpAload2, classfile.OpAload3:
			stack = push(stack, readLocal(locals, shorthandSlot(op)))

		case classfile.OpIstore, classfile.OpLstore, classfile.OpFstore, classfile.OpDstore, classfile.OpAstore:
			slotIdx := int(t.code.Code[pc+1])
			var v slot
			stack, v = pop(stack)
			if v.uninit {
				return fail(TypeConstraintOnUninit, pc, "cannot store an uninitialized reference to a local")
			}
			nv := t.varIn.Local(slotIdx, "")
			t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: nv, AExpr: v.expr})
			locals[slotIdx] = basicSlot(ir.VarExpr(v.typ, nv))
		case classfile.OpIstore0, classfile.OpIstore1, classfile.OpIstore2, classfile.OpIstore3,
			classfile.OpLstore0, classfile.OpLstore1, classfile.OpLstore2, classfile.OpLstore3,
			classfile.OpFstore0, classfile.OpFstore1, classfile.OpFstore2, classfile.OpFstore3,
			classfile.OpDstore0, classfile.OpDstore1, classfile.OpDstore2, classfile.OpDstore3,
			classfile.OpAstore0, classfile.OpAstore1, classfile.OpAstore2, classfile.OpAstore3:
			slotIdx := shorthandSlot(op)
			var v slot
			stack, v = pop(stack)
			if v.uninit {
				return fail(TypeConstraintOnUninit, pc, "cannot store an uninitialized reference to a local")
			}
			nv := t.varIn.Local(slotIdx, "")
			t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: nv, AExpr: v.expr})
			locals[slotIdx] = basicSlot(ir.VarExpr(v.typ, nv))

		case classfile.OpIaload, classfile.OpLaload, classfile.OpFaload, classfile.OpDaload,
			classfile.OpAaload, classfile.OpBaload, classfile.OpCaload, classfile.OpSaload:
			elemType := arrayLoadElemType(t.in, op)
			var idxS, arrS slot
			stack, idxS = pop(stack)
			stack, arrS = pop(stack)
			arrB, err := t.toBasic(pc, arrS)
			if err != nil {
				return err
			}
			idxB, err := t.toBasic(pc, idxS)
			if err != nil {
				return err
			}
			t.emitCheck(pc, ir.Check{Kind: ir.CheckNullPointer, Arg: arrB})
			t.emitCheck(pc, ir.Check{Kind: ir.CheckArrayBound, ArrArg: arrB, IdxArg: idxB})
			tmp := t.varIn.FreshTemp()
			expr := ir.Expr{Kind: ir.ExprField, FieldObj: arrB, FieldClass: "[]", FieldName: "elem", FieldType: elemType}
			t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: tmp, AExpr: expr})
			stack = push(stack, basicSlot(ir.VarExpr(elemType, tmp)))

		case classfile.OpIastore, classfile.OpLastore, classfile.OpFastore, classfile.OpDastore,
			classfile.OpAastore, classfile.OpBastore, classfile.OpCastore, classfile.OpSastore:
			var valS, idxS, arrS slot
			stack, valS = pop(stack)
			stack, idxS = pop(stack)
			stack, arrS = pop(stack)
			arrB, err := t.toBasic(pc, arrS)
			if err != nil {
				return err
			}
			idxB, err := t.toBasic(pc, idxS)
			if err != nil {
				return err
			}
			valB, err := t.toBasic(pc, valS)
			if err != nil {
				return err
			}
			t.emitCheck(pc, ir.Check{Kind: ir.CheckNullPointer, Arg: arrB})
			t.emitCheck(pc, ir.Check{Kind: ir.CheckArrayBound, ArrArg: arrB, IdxArg: idxB})
			if op == classfile.OpAastore {
				t.emitCheck(pc, ir.Check{Kind: ir.CheckArrayStore, ArrArg: arrB, ValArg: valB})
			}
			t.emit(pc, ir.Instr{Kind: ir.IAffectArray, ArrArr: arrB, ArrIdx: idxB, ArrVal: valB})

		case classfile.OpPop:
			stack, _ = pop(stack)
		case classfile.OpPop2:
			stack, _ = pop(stack)
			stack, _ = pop(stack)
		case classfile.OpDup:
			var v slot
			stack, v = pop(stack)
			dv, err := t.dupSlot(pc, v)
			if err != nil {
				return err
			}
			stack = push(stack, v)
			stack = push(stack, dv)
		case classfile.OpDupX1:
			var a, b slot
			stack, a = pop(stack)
			stack, b = pop(stack)
			da, err := t.dupSlot(pc, a)
			if err != nil {
				return err
			}
			stack = push(stack, da)
			stack = push(stack, b)
			stack = push(stack, a)
		case classfile.OpSwap:
			var a, b slot
			stack, a = pop(stack)
			stack, b = pop(stack)
			stack = push(stack, a)
			stack = push(stack, b)
		case classfile.OpDupX2:
			var a, b, c slot
			stack, a = pop(stack)
			stack, b = pop(stack)
			stack, c = pop(stack)
			da, err := t.dupSlot(pc, a)
			if err != nil {
				return err
			}
			stack = push(stack, da)
			stack = push(stack, c)
			stack = push(stack, b)
			stack = push(stack, a)
		case classfile.OpDup2:
			var a, b slot
			stack, a = pop(stack)
			stack, b = pop(stack)
			da, err := t.dupSlot(pc, a)
			if err != nil {
				return err
			}
			db, err := t.dupSlot(pc, b)
			if err != nil {
				return err
			}
			stack = push(stack, db)
			stack = push(stack, da)
			stack = push(stack, b)
			stack = push(stack, a)

		case classfile.OpIadd, classfile.OpLadd, classfile.OpFadd, classfile.OpDadd,
			classfile.OpIsub, classfile.OpImul,
			classfile.OpIand, classfile.OpIor, classfile.OpIxor,
			classfile.OpIshl, classfile.OpIshr, classfile.OpIushr:
			var r, l slot
			stack, r = pop(stack)
			stack, l = pop(stack)
			lb, err := t.toBasic(pc, l)
			if err != nil {
				return err
			}
			rb, err := t.toBasic(pc, r)
			if err != nil {
				return err
			}
			tmp := t.varIn.FreshTemp()
			e := ir.Expr{Kind: ir.ExprBinop, BinOp: binopFor(op), BinL: lb, BinR: rb}
			t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: tmp, AExpr: e})
			stack = push(stack, basicSlot(ir.VarExpr(lb.Type, tmp)))

		case classfile.OpIdiv, classfile.OpIrem:
			var r, l slot
			stack, r = pop(stack)
			stack, l = pop(stack)
			lb, err := t.toBasic(pc, l)
			if err != nil {
				return err
			}
			rb, err := t.toBasic(pc, r)
			if err != nil {
				return err
			}
			t.emitCheck(pc, ir.Check{Kind: ir.CheckArithmetic, Arg: rb})
			tmp := t.varIn.FreshTemp()
			binop := ir.OpDiv
			if op == classfile.OpIrem {
				binop = ir.OpRem
			}
			e := ir.Expr{Kind: ir.ExprBinop, BinOp: binop, BinL: lb, BinR: rb}
			t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: tmp, AExpr: e})
			stack = push(stack, basicSlot(ir.VarExpr(lb.Type, tmp)))

		case classfile.OpIneg:
			var v slot
			stack, v = pop(stack)
			vb, err := t.toBasic(pc, v)
			if err != nil {
				return err
			}
			tmp := t.varIn.FreshTemp()
			t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: tmp, AExpr: ir.Expr{Kind: ir.ExprUnop, UnOp: ir.OpNeg, UnArg: vb}})
			stack = push(stack, basicSlot(ir.VarExpr(vb.Type, tmp)))

		case classfile.OpIinc:
			slotIdx := int(t.code.Code[pc+1])
			delta := int32(int8(t.code.Code[pc+2]))
			cur := readLocal(locals, slotIdx)
			curB, err := t.toBasic(pc, cur)
			if err != nil {
				return err
			}
			tmp := t.varIn.FreshTemp()
			rhs := ir.Expr{Kind: ir.ExprBinop, BinOp: ir.OpAdd, BinL: curB, BinR: ir.ConstExpr(ir.Constant{Kind: ir.ConstInt, Int: delta}, curB.Type)}
			t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: tmp, AExpr: rhs})
			nv := t.varIn.Local(slotIdx, "")
			t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: nv, AExpr: ir.BasicOf(ir.VarExpr(curB.Type, tmp))})
			locals[slotIdx] = basicSlot(ir.VarExpr(curB.Type, nv))

		case classfile.OpLcmp, classfile.OpFcmpl, classfile.OpFcmpg, classfile.OpDcmpl, classfile.OpDcmpg:
			var r, l slot
			stack, r = pop(stack)
			stack, l = pop(stack)
			lb, err := t.toBasic(pc, l)
			if err != nil {
				return err
			}
			rb, err := t.toBasic(pc, r)
			if err != nil {
				return err
			}
			tmp := t.varIn.FreshTemp()
			t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: tmp, AExpr: ir.Expr{Kind: ir.ExprBinop, BinOp: cmpBinopFor(op), BinL: lb, BinR: rb}})
			stack = push(stack, basicSlot(ir.VarExpr(t.in.PrimitiveType(descriptor.Int), tmp)))

		case classfile.OpIfeq, classfile.OpIfne, classfile.OpIflt, classfile.OpIfge, classfile.OpIfgt, classfile.OpIfle:
			var v slot
			stack, v = pop(stack)
			vb, err := t.toBasic(pc, v)
			if err != nil {
				return err
			}
			zero := ir.ConstExpr(ir.Constant{Kind: ir.ConstInt, Int: 0}, vb.Type)
			irpc := t.emit(pc, ir.Instr{Kind: ir.IIfd, Cmp: cmpOpFor(op), Arg1: vb, Arg2: zero})
			return t.finishBranch(pc, irpc, next, stack, locals)

		case classfile.OpIfIcmpeq, classfile.OpIfIcmpne, classfile.OpIfIcmplt, classfile.OpIfIcmpge, classfile.OpIfIcmpgt, classfile.OpIfIcmple,
			classfile.OpIfAcmpeq, classfile.OpIfAcmpne:
			var r, l slot
			stack, r = pop(stack)
			stack, l = pop(stack)
			lb, err := t.toBasic(pc, l)
			if err != nil {
				return err
			}
			rb, err := t.toBasic(pc, r)
			if err != nil {
				return err
			}
			irpc := t.emit(pc, ir.Instr{Kind: ir.IIfd, Cmp: cmpOpFor(op), Arg1: lb, Arg2: rb})
			return t.finishBranch(pc, irpc, next, stack, locals)

		case classfile.OpIfnull, classfile.OpIfnonnull:
			var v slot
			stack, v = pop(stack)
			vb, err := t.toBasic(pc, v)
			if err != nil {
				return err
			}
			cmp := ir.CmpEq
			if op == classfile.OpIfnonnull {
				cmp = ir.CmpNe
			}
			nullConst := ir.ConstExpr(ir.Constant{Kind: ir.ConstNull}, vb.Type)
			irpc := t.emit(pc, ir.Instr{Kind: ir.IIfd, Cmp: cmp, Arg1: vb, Arg2: nullConst})
			return t.finishBranch(pc, irpc, next, stack, locals)

		case classfile.OpGoto:
			target := branchTarget2(t.code.Code, pc)
			if target <= pc && len(stack) > 0 {
				return fail(NonemptyStackBackwardJump, pc, "backward goto with non-empty stack")
			}
			t.jumpTarget[target] = true
			flushed, err := t.flushAtControlTransfer(pc, target, stack)
			if err != nil {
				return err
			}
			t.emit(pc, ir.Instr{Kind: ir.IGoto, Target: target})
			t.schedule(target, locals, flushed)
			return nil

		case classfile.OpGotoW:
			target := branchTarget4(t.code.Code, pc)
			if target <= pc && len(stack) > 0 {
				return fail(NonemptyStackBackwardJump, pc, "backward goto_w with non-empty stack")
			}
			t.jumpTarget[target] = true
			flushed, err := t.flushAtControlTransfer(pc, target, stack)
			if err != nil {
				return err
			}
			t.emit(pc, ir.Instr{Kind: ir.IGoto, Target: target})
			t.schedule(target, locals, flushed)
			return nil

		case classfile.OpJsr, classfile.OpJsrW, classfile.OpRet:
			return fail(Subroutine, pc, "")

		case classfile.OpIreturn, classfile.OpLreturn, classfile.OpFreturn, classfile.OpDreturn, classfile.OpAreturn:
			var v slot
			stack, v = pop(stack)
			vb, err := t.toBasic(pc, v)
			if err != nil {
				return err
			}
			t.emit(pc, ir.Instr{Kind: ir.IReturn, HasReturnValue: true, ReturnValue: vb})
			return nil
		case classfile.OpReturn:
			t.emit(pc, ir.Instr{Kind: ir.IReturn, HasReturnValue: false})
			return nil

		case classfile.OpAthrow:
			var v slot
			stack, v = pop(stack)
			vb, err := t.toBasic(pc, v)
			if err != nil {
				return err
			}
			t.emitCheck(pc, ir.Check{Kind: ir.CheckNullPointer, Arg: vb})
			t.emit(pc, ir.Instr{Kind: ir.IThrow, ThrowArg: vb})
			return nil

		case classfile.OpGetfield:
			idx := binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			class, name, desc, err := classfile.RefTarget(t.pool, idx)
			if err != nil {
				return fail(BadStack, pc, err.Error())
			}
			ft, err := t.in.Field(desc)
			if err != nil {
				return fail(BadStack, pc, err.Error())
			}
			var objS slot
			stack, objS = pop(stack)
			objB, err := t.toBasic(pc, objS)
			if err != nil {
				return err
			}
			t.emitCheck(pc, ir.Check{Kind: ir.CheckNullPointer, Arg: objB})
			if t.opts.ChLink {
				t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "getfield"})
			}
			tmp := t.varIn.FreshTemp()
			t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: tmp, AExpr: ir.Expr{Kind: ir.ExprField, FieldObj: objB, FieldClass: class, FieldName: name, FieldType: ft}})
			stack = push(stack, basicSlot(ir.VarExpr(ft, tmp)))

		case classfile.OpPutfield:
			idx := binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			class, name, _, err := classfile.RefTarget(t.pool, idx)
			if err != nil {
				return fail(BadStack, pc, err.Error())
			}
			var valS, objS slot
			stack, valS = pop(stack)
			stack, objS = pop(stack)
			objB, err := t.toBasic(pc, objS)
			if err != nil {
				return err
			}
			valB, err := t.toBasic(pc, valS)
			if err != nil {
				return err
			}
			t.emitCheck(pc, ir.Check{Kind: ir.CheckNullPointer, Arg: objB})
			if t.opts.ChLink {
				t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "putfield"})
			}
			t.emit(pc, ir.Instr{Kind: ir.IAffectField, FObj: objB, FClass: class, FName: name, FVal: valB})

		case classfile.OpGetstatic:
			idx := binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			class, name, desc, err := classfile.RefTarget(t.pool, idx)
			if err != nil {
				return fail(BadStack, pc, err.Error())
			}
			ft, err := t.in.Field(desc)
			if err != nil {
				return fail(BadStack, pc, err.Error())
			}
			t.emit(pc, ir.Instr{Kind: ir.IMayInit, MayInitClass: class})
			if t.opts.ChLink {
				t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "getstatic"})
			}
			tmp := t.varIn.FreshTemp()
			t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: tmp, AExpr: ir.Expr{Kind: ir.ExprStaticField, FieldClass: class, FieldName: name, FieldType: ft}})
			stack = push(stack, basicSlot(ir.VarExpr(ft, tmp)))

		case classfile.OpPutstatic:
			idx := binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			class, name, _, err := classfile.RefTarget(t.pool, idx)
			if err != nil {
				return fail(BadStack, pc, err.Error())
			}
			var valS slot
			stack, valS = pop(stack)
			valB, err := t.toBasic(pc, valS)
			if err != nil {
				return err
			}
			t.emit(pc, ir.Instr{Kind: ir.IMayInit, MayInitClass: class})
			if t.opts.ChLink {
				t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "putstatic"})
			}
			t.emit(pc, ir.Instr{Kind: ir.IAffectStaticField, SFClass: class, SFName: name, SFExpr: ir.BasicOf(valB)})

		case classfile.OpNew:
			idx := binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			class, err := classfile.GetClassName(t.pool, idx)
			if err != nil {
				return fail(BadStack, pc, err.Error())
			}
			if t.opts.ChLink {
				t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "new"})
			}
			stack = push(stack, uninitSlot(pc, class))

		case classfile.OpNewarray:
			atype := t.code.Code[pc+1]
			elem := primitiveArrayType(t.in, atype)
			var sizeS slot
			stack, sizeS = pop(stack)
			sizeB, err := t.toBasic(pc, sizeS)
			if err != nil {
				return err
			}
			t.emitCheck(pc, ir.Check{Kind: ir.CheckNegativeArraySize, SizeArg: sizeB})
			tmp := t.varIn.FreshTemp()
			t.emit(pc, ir.Instr{Kind: ir.INewArray, NAVar: tmp, NAElem: elem, NADims: []ir.BasicExpr{sizeB}})
			stack = push(stack, basicSlot(ir.VarExpr(t.in.ArrayOf(elem), tmp)))

		case classfile.OpAnewarray:
			idx := binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			class, err := classfile.GetClassName(t.pool, idx)
			if err != nil {
				return fail(BadStack, pc, err.Error())
			}
			elem := t.in.ObjectType(class)
			var sizeS slot
			stack, sizeS = pop(stack)
			sizeB, err := t.toBasic(pc, sizeS)
			if err != nil {
				return err
			}
			t.emitCheck(pc, ir.Check{Kind: ir.CheckNegativeArraySize, SizeArg: sizeB})
			if t.opts.ChLink {
				t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "anewarray"})
			}
			tmp := t.varIn.FreshTemp()
			t.emit(pc, ir.Instr{Kind: ir.INewArray, NAVar: tmp, NAElem: elem, NADims: []ir.BasicExpr{sizeB}})
			stack = push(stack, basicSlot(ir.VarExpr(t.in.ArrayOf(elem), tmp)))

		case classfile.OpMultianewarray:
			idx := binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			class, err := classfile.GetClassName(t.pool, idx)
			if err != nil {
				return fail(BadStack, pc, err.Error())
			}
			dims := int(t.code.Code[pc+3])
			if dims == 0 {
				return fail(BadMultiarrayDimension, pc, "multianewarray with dimension 0")
			}
			dimExprs := make([]ir.BasicExpr, dims)
			for i := dims - 1; i >= 0; i-- {
				var d slot
				stack, d = pop(stack)
				dimExprs[i], err = t.toBasic(pc, d)
				if err != nil {
					return err
				}
			}
			elem := t.in.ObjectType(class)
			if t.opts.ChLink {
				t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "multianewarray"})
			}
			tmp := t.varIn.FreshTemp()
			t.emit(pc, ir.Instr{Kind: ir.INewArray, NAVar: tmp, NAElem: elem, NADims: dimExprs})
			stack = push(stack, basicSlot(ir.VarExpr(elem, tmp)))

		case classfile.OpArraylength:
			var arrS slot
			stack, arrS = pop(stack)
			arrB, err := t.toBasic(pc, arrS)
			if err != nil {
				return err
			}
			t.emitCheck(pc, ir.Check{Kind: ir.CheckNullPointer, Arg: arrB})
			tmp := t.varIn.FreshTemp()
			t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: tmp, AExpr: ir.Expr{Kind: ir.ExprUnop, UnOp: ir.OpArrayLength, UnArg: arrB}})
			stack = push(stack, basicSlot(ir.VarExpr(t.in.PrimitiveType(descriptor.Int), tmp)))

		case classfile.OpCheckcast:
			idx := binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			class, err := classfile.GetClassName(t.pool, idx)
			if err != nil {
				return fail(BadStack, pc, err.Error())
			}
			target := t.in.ObjectType(class)
			var top slot
			stack, top = pop(stack)
			topB, err := t.toBasic(pc, top)
			if err != nil {
				return err
			}
			if t.opts.ChLink {
				t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "checkcast"})
			}
			t.emitCheck(pc, ir.Check{Kind: ir.CheckCast, Arg: topB, CastType: target})
			stack = push(stack, basicSlot(topB))

		case classfile.OpInstanceof:
			idx := binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			if _, err := classfile.GetClassName(t.pool, idx); err != nil {
				return fail(BadStack, pc, err.Error())
			}
			var v slot
			stack, v = pop(stack)
			vb, err := t.toBasic(pc, v)
			if err != nil {
				return err
			}
			if t.opts.ChLink {
				t.emitCheck(pc, ir.Check{Kind: ir.CheckLink, LinkOpcode: "instanceof"})
			}
			tmp := t.varIn.FreshTemp()
			t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: tmp, AExpr: ir.Expr{Kind: ir.ExprUnop, UnOp: ir.OpInstanceOf, UnArg: vb}})
			stack = push(stack, basicSlot(ir.VarExpr(t.in.PrimitiveType(descriptor.Int), tmp)))

		case classfile.OpMonitorenter:
			var v slot
			stack, v = pop(stack)
			vb, err := t.toBasic(pc, v)
			if err != nil {
				return err
			}
			t.emitCheck(pc, ir.Check{Kind: ir.CheckNullPointer, Arg: vb})
			t.emit(pc, ir.Instr{Kind: ir.IMonitorEnter, MonitorArg: vb})
		case classfile.OpMonitorexit:
			var v slot
			stack, v = pop(stack)
			vb, err := t.toBasic(pc, v)
			if err != nil {
				return err
			}
			t.emit(pc, ir.Instr{Kind: ir.IMonitorExit, MonitorArg: vb})

		case classfile.OpInvokestatic:
			idx := binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			if err := t.doInvokeStatic(pc, idx, &stack); err != nil {
				return err
			}
		case classfile.OpInvokevirtual:
			idx := binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			if err := t.doInvokeVirtual(pc, idx, &stack); err != nil {
				return err
			}
		case classfile.OpInvokespecial:
			idx := binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			if err := t.doInvokeSpecial(pc, idx, &stack, locals); err != nil {
				return err
			}
		case classfile.OpInvokeinterface:
			idx := binary.BigEndian.Uint16(t.code.Code[pc+1 : pc+3])
			if err := t.doInvokeInterface(pc, idx, &stack); err != nil {
				return err
			}

		default:
			return fail(BadStack, pc, fmt.Sprintf("unsupported opcode 0x%02x", op))
		}

		pc = next
		if pc >= len(t.code.Code) {
			return nil
		}
	}
}

// finishBranch flushes the stack along both outgoing edges of a
// two-target instruction (the Ifd just emitted at irpc, for the opcode
// at pc) and schedules both, since each edge joins at a different pc and
// so may need its own set of Branch variables. The Ifd's Target is
// recorded here in bytecode-pc space, same as jumpTarget; finish()
// remaps both to IR pcs once every instruction has been emitted.
func (t *tstate) finishBranch(pc, irpc, fallthroughPC int, stack, locals []slot) error {
	target := branchTarget2(t.code.Code, pc)
	t.jumpTarget[target] = true
	t.instrs[irpc].Target = target

	takenStack, err := t.flushAtControlTransfer(pc, target, stack)
	if err != nil {
		return err
	}
	notTakenStack, err := t.flushAtControlTransfer(pc, fallthroughPC, stack)
	if err != nil {
		return err
	}
	t.schedule(target, locals, takenStack)
	t.schedule(fallthroughPC, locals, notTakenStack)
	return nil
}

func push(stack []slot, v slot) []slot { return append(stack, v) }

func pop(stack []slot) ([]slot, slot) {
	n := len(stack)
	return stack[:n-1], stack[n-1]
}

func readLocal(locals []slot, idx int) slot { return locals[idx] }

// shorthandSlot decodes the implicit local-variable index carried by the
// *load_N / *store_N opcode families (iload_0..3, lload_0..3, ..., astore_0..3),
// which differ from the generic *load/*store forms in having no operand byte.
func shorthandSlot(op classfile.Opcode) int {
	switch {
	case op >= classfile.OpIload0 && op <= classfile.OpIload3:
		return int(op - classfile.OpIload0)
	case op >= classfile.OpLload0 && op <= classfile.OpLload3:
		return int(op - classfile.OpLload0)
	case op >= classfile.OpFload0 && op <= classfile.OpFload3:
		return int(op - classfile.OpFload0)
	case op >= classfile.OpDload0 && op <= classfile.OpDload3:
		return int(op - classfile.OpDload0)
	case op >= classfile.OpAload0 && op <= classfile.OpAload3:
		return int(op - classfile.OpAload0)
	case op >= classfile.OpIstore0 && op <= classfile.OpIstore3:
		return int(op - classfile.OpIstore0)
	case op >= classfile.OpLstore0 && op <= classfile.OpLstore3:
		return int(op - classfile.OpLstore0)
	case op >= classfile.OpFstore0 && op <= classfile.OpFstore3:
		return int(op - classfile.OpFstore0)
	case op >= classfile.OpDstore0 && op <= classfile.OpDstore3:
		return int(op - classfile.OpDstore0)
	default:
		return int(op - classfile.OpAstore0)
	}
}

func intConst(in *descriptor.Interner, v int32) slot {
	return constSlot(ir.Constant{Kind: ir.ConstInt, Int: v}, in.PrimitiveType(descriptor.Int))
}

func constSlot(c ir.Constant, t *descriptor.Type) slot {
	return exprSlot(ir.BasicOf(ir.ConstExpr(c, t)), t)
}

// toBasic materialises v to a BasicExpr, flushing it to a fresh temp via
// an emitted AffectVar if it isn't one already. Call sites that need
// more than one operand as a BasicExpr must call toBasic in the same
// left-to-right order the JVM pops/evaluates them so the emitted
// AffectVars appear in that order.
func (t *tstate) toBasic(pc int, v slot) (ir.BasicExpr, error) {
	if v.uninit {
		return ir.BasicExpr{}, fail(UninitIsNotExpr, pc, "uninitialized reference used outside its own <init> call")
	}
	if v.expr.Kind == ir.ExprBasic {
		return v.expr.Basic, nil
	}
	tmp := t.varIn.FreshTemp()
	t.emit(pc, ir.Instr{Kind: ir.IAffectVar, AVar: tmp, AExpr: v.expr})
	return ir.VarExpr(v.typ, tmp), nil
}

func (t *tstate) emitCheck(pc int, c ir.Check) {
	t.emit(pc, ir.Instr{Kind: ir.ICheck, Check: c})
}

func (t *tstate) loadConstant(idx uint16) (slot, error) {
	v, err := classfile.LoadableConstant(t.pool, idx)
	if err != nil {
		return slot{}, fail(BadStack, 0, err.Error())
	}
	switch val := v.(type) {
	case int32:
		return constSlot(ir.Constant{Kind: ir.ConstInt, Int: val}, t.in.PrimitiveType(descriptor.Int)), nil
	case float32:
		return constSlot(ir.Constant{Kind: ir.ConstFloat, Float: val}, t.in.PrimitiveType(descriptor.Float)), nil
	case int64:
		return constSlot(ir.Constant{Kind: ir.ConstLong, Long: val}, t.in.PrimitiveType(descriptor.Long)), nil
	case float64:
		return constSlot(ir.Constant{Kind: ir.ConstDouble, Double: val}, t.in.PrimitiveType(descriptor.Double)), nil
	case string:
		return constSlot(ir.Constant{Kind: ir.ConstString, String: val}, t.in.ObjectType("java/lang/String")), nil
	case classfile.ClassLiteral:
		ct := t.in.ObjectType(val.Name)
		return constSlot(ir.Constant{Kind: ir.ConstClass, Class: ct}, t.in.ObjectType("java/lang/Class")), nil
	default:
		return slot{}, fail(BadStack, 0, "unsupported loadable constant")
	}
}

// dupSlot duplicates a stack slot for the dup family of opcodes. An
// uninitialized reference may legally be dup'd (javac always dups one
// right after new, to leave a copy for invokespecial's receiver and
// another for whatever consumes the fully-constructed value); what's
// illegal is using an uninitialized reference anywhere other than as the
// receiver of its own <init> call, which the sites that actually consume
// a slot (astore, a non-<init> invokespecial receiver, ...) check for
// directly.
func (t *tstate) dupSlot(pc int, v slot) (slot, error) {
	return v, nil
}

// flushAtControlTransfer materialises every non-basic stack slot into a
// Branch(k, joinPC) variable before a branch/goto so both sides of the
// control transfer agree on which Variable carries the value onward.
func (t *tstate) flushAtControlTransfer(fromPC, joinPC int, stack []slot) ([]slot, error) {
	out := make([]slot, len(stack))
	for i, v := range stack {
		if v.uninit {
			return nil, fail(TypeConstraintOnUninit, fromPC, "uninitialized reference cannot cross a control-flow join")
		}
		if v.expr.Kind == ir.ExprBasic {
			out[i] = v
			continue
		}
		var nv ir.Variable
		if v.typ != nil && v.typ.Category2() {
			nv = t.varIn.Branch2(i, joinPC)
		} else {
			nv = t.varIn.Branch(i, joinPC)
		}
		t.emit(fromPC, ir.Instr{Kind: ir.IAffectVar, AVar: nv, AExpr: v.expr})
		out[i] = basicSlot(ir.VarExpr(v.typ, nv))
	}
	return out, nil
}

func binopFor(op classfile.Opcode) ir.BinOp {
	switch op {
	case classfile.OpIadd, classfile.OpLadd, classfile.OpFadd, classfile.OpDadd:
		return ir.OpAdd
	case classfile.OpIsub:
		return ir.OpSub
	case classfile.OpImul:
		return ir.OpMul
	case classfile.OpIand:
		return ir.OpAnd
	case classfile.OpIor:
		return ir.OpOr
	case classfile.OpIxor:
		return ir.OpXor
	case classfile.OpIshl:
		return ir.OpShl
	case classfile.OpIshr:
		return ir.OpShr
	case classfile.OpIushr:
		return ir.OpUshr
	default:
		return ir.OpAdd
	}
}

func cmpBinopFor(op classfile.Opcode) ir.BinOp {
	switch op {
	case classfile.OpLcmp:
		return ir.OpCmp
	case classfile.OpFcmpl, classfile.OpDcmpl:
		return ir.OpCmpl
	default:
		return ir.OpCmpg
	}
}

func cmpOpFor(op classfile.Opcode) ir.CmpOp {
	switch op {
	case classfile.OpIfeq, classfile.OpIfIcmpeq, classfile.OpIfAcmpeq:
		return ir.CmpEq
	case classfile.OpIfne, classfile.OpIfIcmpne, classfile.OpIfAcmpne:
		return ir.CmpNe
	case classfile.OpIflt, classfile.OpIfIcmplt:
		return ir.CmpLt
	case classfile.OpIfge, classfile.OpIfIcmpge:
		return ir.CmpGe
	case classfile.OpIfgt, classfile.OpIfIcmpgt:
		return ir.CmpGt
	default:
		return ir.CmpLe
	}
}

func branchTarget2(code []byte, pc int) int {
	off := int16(binary.BigEndian.Uint16(code[pc+1 : pc+3]))
	return pc + int(off)
}

func branchTarget4(code []byte, pc int) int {
	off := int32(binary.BigEndian.Uint32(code[pc+1 : pc+5]))
	return pc + int(off)
}

func arrayLoadElemType(in *descriptor.Interner, op classfile.Opcode) *descriptor.Type {
	switch op {
	case classfile.OpLaload:
		return in.PrimitiveType(descriptor.Long)
	case classfile.OpFaload:
		return in.PrimitiveType(descriptor.Float)
	case classfile.OpDaload:
		return in.PrimitiveType(descriptor.Double)
	case classfile.OpBaload:
		return in.PrimitiveType(descriptor.Byte)
	case classfile.OpCaload:
		return in.PrimitiveType(descriptor.Char)
	case classfile.OpSaload:
		return in.PrimitiveType(descriptor.Short)
	case classfile.OpAaload:
		return in.ObjectType("java/lang/Object")
	default:
		return in.PrimitiveType(descriptor.Int)
	}
}

func primitiveArrayType(in *descriptor.Interner, atype byte) *descriptor.Type {
	switch atype {
	case 4:
		return in.PrimitiveType(descriptor.Boolean)
	case 5:
		return in.PrimitiveType(descriptor.Char)
	case 6:
		return in.PrimitiveType(descriptor.Float)
	case 7:
		return in.PrimitiveType(descriptor.Double)
	case 8:
		return in.PrimitiveType(descriptor.Byte)
	case 9:
		return in.PrimitiveType(descriptor.Short)
	case 10:
		return in.PrimitiveType(descriptor.Int)
	case 11:
		return in.PrimitiveType(descriptor.Long)
	default:
		return in.PrimitiveType(descriptor.Int)
	}
}
