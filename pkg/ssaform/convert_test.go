package ssaform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-dev/jvmrta/pkg/ir"
)

// buildDiamondMethod hand-builds the "SSA of a diamond" scenario's IR
// directly (bypassing pkg/transform, the way pkg/absint's tests bypass
// it too): `if (cond) x = 1; else x = 2; y = x; return;`. x is defined on
// both arms and live at the merge block, so Convert must place exactly
// one phi there; y is defined once and needs none.
func buildDiamondMethod() *ir.Method {
	x := ir.Variable{Index: 0, Origin: ir.Origin{Kind: ir.OriginLocal, LocalSlot: 1, DebugName: "x"}}
	y := ir.Variable{Index: 1, Origin: ir.Origin{Kind: ir.OriginLocal, LocalSlot: 2, DebugName: "y"}}
	cond := ir.BasicExpr{IsConst: true, Const: ir.Constant{Kind: ir.ConstInt, Int: 0}}

	code := []ir.Instr{
		// pc0: block0 (entry) - if cond == 0 goto pc3 (else), else fall to pc1 (then)
		{Kind: ir.IIfd, Cmp: ir.CmpEq, Arg1: cond, Arg2: cond, Target: 3},
		// pc1-2: block1 (then)
		{Kind: ir.IAffectVar, AVar: x, AExpr: ir.BasicOf(ir.ConstExpr(ir.Constant{Kind: ir.ConstInt, Int: 1}, nil))},
		{Kind: ir.IGoto, Target: 4},
		// pc3: block2 (else)
		{Kind: ir.IAffectVar, AVar: x, AExpr: ir.BasicOf(ir.ConstExpr(ir.Constant{Kind: ir.ConstInt, Int: 2}, nil))},
		// pc4-5: block3 (merge)
		{Kind: ir.IAffectVar, AVar: y, AExpr: ir.BasicOf(ir.VarExpr(nil, x))},
		{Kind: ir.IReturn, HasReturnValue: false},
	}
	jt := make([]bool, len(code))
	jt[3] = true
	jt[4] = true
	return &ir.Method{Vars: []ir.Variable{x, y}, Code: code, JumpTarget: jt}
}

func TestBuildCFGPartitionsDiamondIntoFourBlocks(t *testing.T) {
	m := buildDiamondMethod()
	blocks := BuildCFG(m)
	require.Len(t, blocks, 4)

	require.Equal(t, 0, blocks[0].Start)
	require.Equal(t, 1, blocks[0].End)
	require.Equal(t, 1, blocks[1].Start)
	require.Equal(t, 3, blocks[1].End)
	require.Equal(t, 3, blocks[2].Start)
	require.Equal(t, 4, blocks[2].End)
	require.Equal(t, 4, blocks[3].Start)
	require.Equal(t, 6, blocks[3].End)

	// entry branches to the else block (the Ifd target) first, then to
	// the then block (fallthrough), matching linkEdges' addEdge order.
	require.Equal(t, []int{2, 1}, blocks[0].Succs)
	require.ElementsMatch(t, []int{1, 2}, blocks[3].Preds)
}

func TestConvertPlacesExactlyOnePhiAtDiamondMerge(t *testing.T) {
	m := buildDiamondMethod()
	err := Convert(m)
	require.NoError(t, err)

	phis := m.PhiNodes[4]
	require.Len(t, phis, 1, "x is defined on both arms and live at the merge, so it needs exactly one phi")
	require.Len(t, phis[0].Use, 2, "the phi must have one use per predecessor edge")

	require.Equal(t, []int{1, 3}, m.Preds[4], "Preds must list the then- and else-block start pcs")

	for _, phis := range m.PhiNodes {
		for _, p := range phis {
			require.NotEqual(t, 0, p.Def.Index, "a phi's def must be a freshly minted SSA variable, never index 0")
		}
	}

	// y was defined exactly once, on a single path to the merge, so it
	// must never get a phi of its own.
	require.Len(t, m.PhiNodes[4], 1)
}

func TestConvertRenamesEveryDefinitionToAFreshSSAVariable(t *testing.T) {
	m := buildDiamondMethod()
	require.NoError(t, Convert(m))

	seen := map[int]bool{}
	for _, instr := range m.Code {
		if instr.Kind == ir.IAffectVar {
			require.False(t, seen[instr.AVar.Index], "every IAffectVar def must get its own fresh SSA variable")
			seen[instr.AVar.Index] = true
		}
	}
	require.Len(t, seen, 3, "x's then-arm def, x's else-arm def, and y's def must each be distinct SSA variables")
}
