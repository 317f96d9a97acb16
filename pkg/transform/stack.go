package transform

import (
	"github.com/vantage-dev/jvmrta/pkg/descriptor"
	"github.com/vantage-dev/jvmrta/pkg/ir"
)

// slot is one entry of the symbolic operand stack or a local variable
// cell. It is either a live expression (the common case) or an Uninit
// marker for a reference produced by `new` before its <init> has run.
type slot struct {
	uninit   bool
	uninitPC int
	uninitClass string

	expr ir.Expr
	typ  *descriptor.Type
}

func exprSlot(e ir.Expr, t *descriptor.Type) slot {
	return slot{expr: e, typ: t}
}

func basicSlot(b ir.BasicExpr) slot {
	return slot{expr: ir.BasicOf(b), typ: b.Type}
}

func uninitSlot(pc int, class string) slot {
	return slot{uninit: true, uninitPC: pc, uninitClass: class}
}

// shape is the abstract stack shape at a pc: the ordered slot types,
// used only for the stack-height/type convergence check (rule 1 and,
// under bcv, rule 9). Two visits of the same pc must agree on shape.
type shape struct {
	heights []bool // true at index i means slots[i] is Uninit
	types   []*descriptor.Type
}

func shapeOf(stack []slot) shape {
	s := shape{heights: make([]bool, len(stack)), types: make([]*descriptor.Type, len(stack))}
	for i, v := range stack {
		s.heights[i] = v.uninit
		s.types[i] = v.typ
	}
	return s
}

func (a shape) compatible(b shape, bcv bool) bool {
	if len(a.heights) != len(b.heights) {
		return false
	}
	for i := range a.heights {
		if a.heights[i] != b.heights[i] {
			return false
		}
		if bcv && !a.heights[i] && a.types[i] != b.types[i] {
			return false
		}
	}
	return true
}
