package ssaform

import "github.com/vantage-dev/jvmrta/pkg/ir"

// rewriteBasicUse applies f to b's Variable use in place, if b isn't a
// constant.
func rewriteBasicUse(b *ir.BasicExpr, f func(ir.Variable) ir.Variable) {
	if !b.IsConst {
		b.Var = f(b.Var)
	}
}

func basicUse(b ir.BasicExpr, out *[]ir.Variable) {
	if !b.IsConst {
		*out = append(*out, b.Var)
	}
}

func rewriteExprUses(e *ir.Expr, f func(ir.Variable) ir.Variable) {
	switch e.Kind {
	case ir.ExprBasic:
		rewriteBasicUse(&e.Basic, f)
	case ir.ExprUnop:
		rewriteBasicUse(&e.UnArg, f)
	case ir.ExprBinop:
		rewriteBasicUse(&e.BinL, f)
		rewriteBasicUse(&e.BinR, f)
	case ir.ExprField:
		rewriteBasicUse(&e.FieldObj, f)
	}
}

func exprUses(e ir.Expr, out *[]ir.Variable) {
	switch e.Kind {
	case ir.ExprBasic:
		basicUse(e.Basic, out)
	case ir.ExprUnop:
		basicUse(e.UnArg, out)
	case ir.ExprBinop:
		basicUse(e.BinL, out)
		basicUse(e.BinR, out)
	case ir.ExprField:
		basicUse(e.FieldObj, out)
	}
}

func rewriteCheckUses(c *ir.Check, f func(ir.Variable) ir.Variable) {
	switch c.Kind {
	case ir.CheckNullPointer, ir.CheckArithmetic, ir.CheckCast:
		rewriteBasicUse(&c.Arg, f)
	case ir.CheckArrayBound:
		rewriteBasicUse(&c.ArrArg, f)
		rewriteBasicUse(&c.IdxArg, f)
	case ir.CheckArrayStore:
		rewriteBasicUse(&c.ArrArg, f)
		rewriteBasicUse(&c.ValArg, f)
	case ir.CheckNegativeArraySize:
		rewriteBasicUse(&c.SizeArg, f)
	}
}

func checkUses(c ir.Check, out *[]ir.Variable) {
	switch c.Kind {
	case ir.CheckNullPointer, ir.CheckArithmetic, ir.CheckCast:
		basicUse(c.Arg, out)
	case ir.CheckArrayBound:
		basicUse(c.ArrArg, out)
		basicUse(c.IdxArg, out)
	case ir.CheckArrayStore:
		basicUse(c.ArrArg, out)
		basicUse(c.ValArg, out)
	case ir.CheckNegativeArraySize:
		basicUse(c.SizeArg, out)
	}
}

// rewriteInstrUses applies f to every Variable instr reads.
func rewriteInstrUses(instr *ir.Instr, f func(ir.Variable) ir.Variable) {
	switch instr.Kind {
	case ir.IAffectVar:
		rewriteExprUses(&instr.AExpr, f)
	case ir.IAffectArray:
		rewriteBasicUse(&instr.ArrArr, f)
		rewriteBasicUse(&instr.ArrIdx, f)
		rewriteBasicUse(&instr.ArrVal, f)
	case ir.IAffectField:
		rewriteBasicUse(&instr.FObj, f)
		rewriteBasicUse(&instr.FVal, f)
	case ir.IAffectStaticField:
		rewriteExprUses(&instr.SFExpr, f)
	case ir.IIfd:
		rewriteBasicUse(&instr.Arg1, f)
		rewriteBasicUse(&instr.Arg2, f)
	case ir.IThrow:
		rewriteBasicUse(&instr.ThrowArg, f)
	case ir.IReturn:
		if instr.HasReturnValue {
			rewriteBasicUse(&instr.ReturnValue, f)
		}
	case ir.INew:
		for i := range instr.NewArgs {
			rewriteBasicUse(&instr.NewArgs[i], f)
		}
	case ir.INewArray:
		for i := range instr.NADims {
			rewriteBasicUse(&instr.NADims[i], f)
		}
	case ir.IInvokeStatic, ir.IInvokeVirtual, ir.IInvokeNonVirtual:
		for i := range instr.InvokeArgs {
			rewriteBasicUse(&instr.InvokeArgs[i], f)
		}
		if instr.Kind != ir.IInvokeStatic {
			rewriteBasicUse(&instr.InvokeReceiver, f)
		}
	case ir.IMonitorEnter, ir.IMonitorExit:
		rewriteBasicUse(&instr.MonitorArg, f)
	case ir.ICheck:
		rewriteCheckUses(&instr.Check, f)
	}
}

// instrUses returns the Variables instr reads, without mutating it.
func instrUses(instr ir.Instr) []ir.Variable {
	var out []ir.Variable
	switch instr.Kind {
	case ir.IAffectVar:
		exprUses(instr.AExpr, &out)
	case ir.IAffectArray:
		basicUse(instr.ArrArr, &out)
		basicUse(instr.ArrIdx, &out)
		basicUse(instr.ArrVal, &out)
	case ir.IAffectField:
		basicUse(instr.FObj, &out)
		basicUse(instr.FVal, &out)
	case ir.IAffectStaticField:
		exprUses(instr.SFExpr, &out)
	case ir.IIfd:
		basicUse(instr.Arg1, &out)
		basicUse(instr.Arg2, &out)
	case ir.IThrow:
		basicUse(instr.ThrowArg, &out)
	case ir.IReturn:
		if instr.HasReturnValue {
			basicUse(instr.ReturnValue, &out)
		}
	case ir.INew:
		for _, a := range instr.NewArgs {
			basicUse(a, &out)
		}
	case ir.INewArray:
		for _, d := range instr.NADims {
			basicUse(d, &out)
		}
	case ir.IInvokeStatic, ir.IInvokeVirtual, ir.IInvokeNonVirtual:
		for _, a := range instr.InvokeArgs {
			basicUse(a, &out)
		}
		if instr.Kind != ir.IInvokeStatic {
			basicUse(instr.InvokeReceiver, &out)
		}
	case ir.IMonitorEnter, ir.IMonitorExit:
		basicUse(instr.MonitorArg, &out)
	case ir.ICheck:
		checkUses(instr.Check, &out)
	}
	return out
}

// instrDef returns a pointer to instr's defined Variable field, if any.
func instrDef(instr *ir.Instr) (*ir.Variable, bool) {
	switch instr.Kind {
	case ir.IAffectVar:
		return &instr.AVar, true
	case ir.INew:
		return &instr.NewVar, true
	case ir.INewArray:
		return &instr.NAVar, true
	case ir.IInvokeStatic, ir.IInvokeVirtual, ir.IInvokeNonVirtual:
		if instr.InvokeResult != nil {
			return instr.InvokeResult, true
		}
	}
	return nil, false
}
