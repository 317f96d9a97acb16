package rta

import "github.com/vantage-dev/jvmrta/pkg/ir"

// walk scans one already-transformed method body for every instruction
// that matters to RTA: object creation, class literals, class
// initialization triggers, and the three kinds of invoke site.
func (d *driver) walk(caller MethodKey, m *ir.Method) error {
	for i := range m.Code {
		instr := &m.Code[i]
		switch instr.Kind {
		case ir.INew:
			d.onInstantiated(instr.NewClass)
			d.scheduleClinit(instr.NewClass)
			d.scanConstClass(instr.NewArgs)

		case ir.INewArray:
			d.scanConstClass(instr.NADims)

		case ir.IMayInit:
			d.scheduleClinit(instr.MayInitClass)

		case ir.IAffectVar:
			d.scanExprConstClass(instr.AExpr)

		case ir.IAffectStaticField:
			d.scanExprConstClass(instr.SFExpr)

		case ir.IInvokeStatic:
			d.scheduleClinit(instr.InvokeClass)
			target := MethodKey{Class: instr.InvokeClass, Name: instr.InvokeName, Desc: instr.InvokeDesc.String()}
			d.addEdge(caller, target)
			d.scanConstClass(instr.InvokeArgs)

		case ir.IInvokeNonVirtual:
			target := d.resolveSpecial(instr.InvokeClass, instr.InvokeName, instr.InvokeDesc.String())
			if target != (MethodKey{}) {
				d.addEdge(caller, target)
			}
			d.scanConstClass(instr.InvokeArgs)

		case ir.IInvokeVirtual:
			d.handleVirtualSite(caller, instr)
			d.scanConstClass(instr.InvokeArgs)
		}
	}
	return nil
}

func (d *driver) scanConstClass(args []ir.BasicExpr) {
	for _, a := range args {
		d.scanBasicConstClass(a)
	}
}

func (d *driver) scanExprConstClass(e ir.Expr) {
	switch e.Kind {
	case ir.ExprBasic:
		d.scanBasicConstClass(e.Basic)
	case ir.ExprUnop:
		d.scanBasicConstClass(e.UnArg)
	case ir.ExprBinop:
		d.scanBasicConstClass(e.BinL)
		d.scanBasicConstClass(e.BinR)
	case ir.ExprField:
		d.scanBasicConstClass(e.FieldObj)
	}
}

// scanBasicConstClass handles an `ldc Class(C)` literal the same way as
// a `new`: it allocates a java.lang.Class instance, so java/lang/Class
// itself becomes instantiated (reachable for virtual dispatch on a
// Class receiver) and its <clinit> is scheduled. The referenced class C
// only needs to be loadable, not instantiated.
func (d *driver) scanBasicConstClass(b ir.BasicExpr) {
	if !b.IsConst || b.Const.Kind != ir.ConstClass || b.Const.Class == nil {
		return
	}
	name := b.Const.Class.ClassName
	if name == "" {
		return
	}
	if _, err := d.cp.EnsureNode(name); err != nil {
		d.logger.Warn("rta: class literal refers to an unresolvable class", "class", name, "err", err)
		return
	}
	d.onInstantiated("java/lang/Class")
	d.scheduleClinit("java/lang/Class")
}
