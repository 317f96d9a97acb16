package absint

import (
	"github.com/vantage-dev/jvmrta/pkg/ir"
	"github.com/vantage-dev/jvmrta/pkg/rta"
	"github.com/vantage-dev/jvmrta/pkg/ssaform"
)

// execBlock abstractly executes one basic block from entry, returning
// its exit environment. Call handling may seed or widen a callee's
// summary and, transitively, enqueue its blocks — that happens as a
// side effect on s, same as a field write widening s.fields does.
func (s *Solver) execBlock(ck ctxMethodKey, m *ir.Method, b ssaform.Block, entry AbLocals) AbLocals {
	locals := entry
	for i := b.Start; i < b.End; i++ {
		if locals.IsBot() {
			break
		}
		locals = s.execInstr(ck, m, i, &m.Code[i], locals)
	}
	return locals
}

func (s *Solver) execInstr(ck ctxMethodKey, m *ir.Method, pc int, instr *ir.Instr, locals AbLocals) AbLocals {
	switch instr.Kind {
	case ir.IAffectVar:
		return locals.SetVar(instr.AVar.Index, s.evalExpr(locals, instr.AExpr))

	case ir.IAffectArray:
		objAbs := s.evalBasic(locals, instr.ArrArr)
		valAbs := s.evalBasic(locals, instr.ArrVal)
		s.writeArray(objAbs, valAbs)
		return locals

	case ir.IAffectField:
		objAbs := s.evalBasic(locals, instr.FObj)
		valAbs := s.evalBasic(locals, instr.FVal)
		s.writeField(instr.FClass, instr.FName, objAbs, valAbs)
		return locals

	case ir.IAffectStaticField:
		valAbs := s.evalExpr(locals, instr.SFExpr)
		s.writeStaticField(instr.SFClass, instr.SFName, valAbs)
		return locals

	case ir.INew:
		site := Site{PC: pc, Class: instr.NewClass}
		return locals.SetVar(instr.NewVar.Index, Singleton(site))

	case ir.INewArray:
		site := Site{PC: pc, Class: "[" + instr.NAElem.String()}
		return locals.SetVar(instr.NAVar.Index, Singleton(site))

	case ir.IInvokeStatic:
		ret := s.dispatchCall(ck, rta.MethodKey{Class: instr.InvokeClass, Name: instr.InvokeName, Desc: instr.InvokeDesc.String()}, nil, instr.InvokeArgs, locals)
		return s.bindResult(locals, instr.InvokeResult, ret)

	case ir.IInvokeNonVirtual:
		ret := s.dispatchCall(ck, rta.MethodKey{Class: instr.InvokeClass, Name: instr.InvokeName, Desc: instr.InvokeDesc.String()}, &instr.InvokeReceiver, instr.InvokeArgs, locals)
		return s.bindResult(locals, instr.InvokeResult, ret)

	case ir.IInvokeVirtual:
		recv := ""
		if instr.Dispatch == ir.DispatchInterface {
			recv = instr.DispatchIface
		} else if instr.DispatchType != nil {
			recv = instr.DispatchType.ClassName
		}
		ret := BotVSet()
		for _, target := range s.rta.StaticLookupMethod(recv, instr.InvokeName, instr.InvokeDesc.String()) {
			one := s.dispatchCall(ck, target, &instr.InvokeReceiver, instr.InvokeArgs, locals)
			ret, _ = JoinVSet(ret, one)
		}
		return s.bindResult(locals, instr.InvokeResult, ret)

	case ir.IReturn:
		if instr.HasReturnValue {
			s.joinReturn(ck, s.evalBasic(locals, instr.ReturnValue))
		}
		return locals

	case ir.IThrow:
		s.joinExcReturn(ck, s.evalBasic(locals, instr.ThrowArg))
		return locals

	default:
		// IGoto, IIfd, IMonitorEnter/Exit, IMayInit, ICheck: no effect on
		// the value-flow abstraction.
		return locals
	}
}

func (s *Solver) bindResult(locals AbLocals, result *ir.Variable, v AbVSet) AbLocals {
	if result == nil {
		return locals
	}
	return locals.SetVar(result.Index, v)
}

func (s *Solver) evalBasic(locals AbLocals, b ir.BasicExpr) AbVSet {
	if b.IsConst {
		// Class/String/numeric constants carry no allocation identity
		// the solver tracks; ConstNull is likewise treated as an opaque
		// primitive rather than a distinguished empty Set, a deliberate
		// simplification over precise null-tracking.
		return PrimitiveVSet()
	}
	return locals.Get(b.Var.Index)
}

func (s *Solver) evalExpr(locals AbLocals, e ir.Expr) AbVSet {
	switch e.Kind {
	case ir.ExprBasic:
		return s.evalBasic(locals, e.Basic)
	case ir.ExprUnop, ir.ExprBinop:
		return PrimitiveVSet()
	case ir.ExprField:
		objAbs := s.evalBasic(locals, e.FieldObj)
		return s.readField(e.FieldClass, e.FieldName, objAbs)
	case ir.ExprStaticField:
		return s.readStaticField(e.FieldClass, e.FieldName)
	default:
		return BotVSet()
	}
}

func (s *Solver) readField(class, name string, objAbs AbVSet) AbVSet {
	return FSet2Var(s.fields[fieldKey(class, name)], objAbs)
}

func (s *Solver) writeField(class, name string, objAbs, valAbs AbVSet) {
	key := fieldKey(class, name)
	next, changed := Var2FSet(s.fields[key], objAbs, valAbs)
	if changed {
		s.fields[key] = next
		s.markAllDirty()
	}
}

// writeArray reuses the AbFSet machinery with one synthetic field key
// ("[]"/"elem") shared by every array element type, since array stores alias exactly the way
// object field stores do: a[i] = v may touch any element of any array
// the index abstraction's object-side denotes.
func (s *Solver) writeArray(objAbs, valAbs AbVSet) {
	s.writeField("[]", "elem", objAbs, valAbs)
}

func (s *Solver) readStaticField(class, name string) AbVSet {
	v, ok := s.staticFields[fieldKey(class, name)]
	if !ok {
		return BotVSet()
	}
	return v
}

func (s *Solver) writeStaticField(class, name string, valAbs AbVSet) {
	key := fieldKey(class, name)
	joined, changed := JoinVSet(s.staticFields[key], valAbs)
	if changed {
		s.staticFields[key] = joined
		s.markAllDirty()
	}
}

// dispatchCall projects the call site's receiver and arguments onto
// target's own parameter variables (init_locals), seeds or widens
// target's summary, and returns its current Return abstraction — Bot
// until the callee has itself been executed at least once, which the
// solver's requeue-on-change rule then propagates back to this site.
func (s *Solver) dispatchCall(callerCk ctxMethodKey, target rta.MethodKey, receiver *ir.BasicExpr, args []ir.BasicExpr, locals AbLocals) AbVSet {
	m, ok := s.lookup(target)
	if !ok {
		return TopVSet()
	}
	callArgs := EmptyLocals()
	pi := 0
	if receiver != nil {
		if pi < len(m.Params) {
			callArgs = callArgs.SetVar(m.Params[pi].Var.Index, s.evalBasic(locals, *receiver))
			pi++
		}
	}
	for _, a := range args {
		if pi >= len(m.Params) {
			break
		}
		callArgs = callArgs.SetVar(m.Params[pi].Var.Index, s.evalBasic(locals, a))
		pi++
	}
	s.seedMethod(target, AbMethod{Args: callArgs, Return: BotVSet(), ExcReturn: BotVSet()})
	return s.summaries[s.ckey(target)].Return
}

func (s *Solver) joinReturn(ck ctxMethodKey, v AbVSet) {
	cur := s.summaries[ck]
	joined, changed := JoinVSet(cur.Return, v)
	if !changed {
		return
	}
	cur.Return = joined
	s.summaries[ck] = cur
	s.warnIfCoerced(ck, "return", cur.Return)
	s.requeueCallersByCk(ck)
}

func (s *Solver) joinExcReturn(ck ctxMethodKey, v AbVSet) {
	cur := s.summaries[ck]
	joined, changed := JoinVSet(cur.ExcReturn, v)
	if !changed {
		return
	}
	cur.ExcReturn = joined
	s.summaries[ck] = cur
	s.warnIfCoerced(ck, "exception-return", cur.ExcReturn)
	s.requeueCallersByCk(ck)
}

// requeueCallersByCk re-derives the rta.MethodKey from a ctxMethodKey's
// flattened string form is not possible in general (Context.Key() may
// not be invertible), so this only covers the common EmptyContext case
// by scanning rta.Edges for a caller whose target stringifies to the
// same key; call-sensitive contexts widen every call-site dispatch
// through dispatchCall already, which re-seeds on every execution, so
// they stay correct without this shortcut.
func (s *Solver) requeueCallersByCk(ck ctxMethodKey) {
	for _, e := range s.rta.Edges {
		if e.To.String() != ck.method {
			continue
		}
		fromCk := s.ckey(e.From)
		if cfg, ok := s.cfgs[fromCk]; ok {
			for bi := range cfg {
				s.enqueueBlock(fromCk, bi)
			}
		}
	}
}

// warnIfCoerced surfaces Open Question (iii)'s decision: mixing a
// primitive and a reference abstraction at the same program point is
// coerced to Top rather than rejected, and logged once per (method,
// return or exception-return) pair so a
// caller of the whole analysis can audit how much precision was lost.
func (s *Solver) warnIfCoerced(ck ctxMethodKey, what string, v AbVSet) {
	if !v.IsTop() {
		return
	}
	key := ck.method + "/" + what
	if s.warnedCoerce[key] {
		return
	}
	s.warnedCoerce[key] = true
	s.logger.Warn("absint: coerced to Top by a primitive/reference join", "method", ck.method, "value", what)
}
