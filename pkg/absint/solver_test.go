package absint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-dev/jvmrta/pkg/ir"
	"github.com/vantage-dev/jvmrta/pkg/rta"
)

var entryKey = rta.MethodKey{Class: "Main", Name: "run", Desc: "()V"}

// buildPointsToMethod builds the straight-line method `A a = new A();
// a.f = new B(); x = a.f;` as already-SSA'd IR (no branches, so
// ssaform.Convert would leave it untouched; we skip running Convert and
// hand-build the Vars/Code directly, matching what it would produce).
func buildPointsToMethod() *ir.Method {
	vA := ir.Variable{Index: 1}
	vB := ir.Variable{Index: 2}
	vX := ir.Variable{Index: 3}

	code := []ir.Instr{
		{Kind: ir.INew, NewVar: vA, NewClass: "A"},
		{Kind: ir.INew, NewVar: vB, NewClass: "B"},
		{
			Kind:   ir.IAffectField,
			FObj:   ir.VarExpr(nil, vA),
			FClass: "A",
			FName:  "f",
			FVal:   ir.VarExpr(nil, vB),
		},
		{
			Kind: ir.IAffectVar,
			AVar: vX,
			AExpr: ir.Expr{
				Kind:       ir.ExprField,
				FieldObj:   ir.VarExpr(nil, vA),
				FieldClass: "A",
				FieldName:  "f",
			},
		},
		{Kind: ir.IReturn, HasReturnValue: false},
	}
	return &ir.Method{Code: code}
}

func TestPointsToFixpointStraightLineAllocationChain(t *testing.T) {
	m := buildPointsToMethod()
	lookup := func(k rta.MethodKey) (*ir.Method, bool) {
		if k == entryKey {
			return m, true
		}
		return nil, false
	}

	s := NewSolver(nil, &rta.Result{}, lookup, nil, nil)
	result := s.Run(entryKey, EmptyLocals())

	exit := result.BlockExit(entryKey, 0)
	require.False(t, exit.IsBot())

	xVal := exit.Get(3)
	require.False(t, xVal.IsBot())
	require.False(t, xVal.IsTop())
	require.False(t, xVal.IsPrimitive())
	require.ElementsMatch(t, []string{"B"}, xVal.Concretize())

	fset := result.Field("A", "f")
	aVal := exit.Get(1)
	require.Equal(t, xVal, FSet2Var(fset, aVal))
}

func TestPointsToFixpointSeparatesUnrelatedAllocationSites(t *testing.T) {
	m := buildPointsToMethod()
	lookup := func(k rta.MethodKey) (*ir.Method, bool) {
		if k == entryKey {
			return m, true
		}
		return nil, false
	}

	s := NewSolver(nil, &rta.Result{}, lookup, nil, nil)
	result := s.Run(entryKey, EmptyLocals())
	exit := result.BlockExit(entryKey, 0)

	aVal := exit.Get(1)
	require.Equal(t, []string{"A"}, aVal.Concretize())
	xVal := exit.Get(3)
	require.NotEqual(t, aVal.Concretize(), xVal.Concretize())
}

func TestJoinVSetLatticeLaws(t *testing.T) {
	siteA := Singleton(Site{PC: 0, Class: "A"})
	siteB := Singleton(Site{PC: 1, Class: "B"})
	prim := PrimitiveVSet()
	top := TopVSet()
	bot := BotVSet()

	values := []AbVSet{bot, prim, top, siteA, siteB}

	for _, v := range values {
		joined, changed := JoinVSet(v, bot)
		require.True(t, joined.Equal(v))
		require.False(t, changed)
	}

	for _, v := range values {
		j1, _ := JoinVSet(v, v)
		require.True(t, j1.Equal(v), "join must be idempotent")
	}

	for _, a := range values {
		for _, b := range values {
			ab, _ := JoinVSet(a, b)
			ba, _ := JoinVSet(b, a)
			require.True(t, ab.Equal(ba), "join must be commutative")
		}
	}

	for _, a := range values {
		for _, b := range values {
			for _, c := range values {
				left, _ := JoinVSet(a, b)
				left, _ = JoinVSet(left, c)
				right, _ := JoinVSet(b, c)
				right, _ = JoinVSet(a, right)
				require.True(t, left.Equal(right), "join must be associative")
			}
		}
	}

	mixed, changed := JoinVSet(prim, siteA)
	require.True(t, mixed.IsTop())
	require.True(t, changed)
}

func TestJoinVSetEqualAgreesWithTwoSidedJoin(t *testing.T) {
	siteA := Singleton(Site{PC: 0, Class: "A"})
	siteAgain := Singleton(Site{PC: 0, Class: "A"})
	siteB := Singleton(Site{PC: 1, Class: "B"})

	require.True(t, siteA.Equal(siteAgain))
	joined, changed := JoinVSet(siteA, siteAgain)
	require.True(t, joined.Equal(siteA))
	require.False(t, changed)

	require.False(t, siteA.Equal(siteB))
	_, changed = JoinVSet(siteA, siteB)
	require.True(t, changed)
}
