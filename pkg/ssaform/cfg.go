package ssaform

import "github.com/vantage-dev/jvmrta/pkg/ir"

// Block is the exported view of one basic block, for clients that need
// the control-flow graph without running SSA conversion themselves
// (pkg/absint's per-block fixpoint, a future CFG-dump command).
type Block struct {
	Start, End int
	Succs      []int
	Preds      []int
}

// BuildCFG partitions m into basic blocks and links their successor and
// predecessor edges, including exception edges. It does not mutate m;
// Convert is the only thing here that does.
func BuildCFG(m *ir.Method) []Block {
	blocks := buildBlocks(m)
	if len(blocks) == 0 {
		return nil
	}
	bx := newBlockIndexer(blocks)
	linkEdges(m, blocks, bx)
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = Block{Start: b.Start, End: b.End, Succs: b.Succs, Preds: b.Preds}
	}
	return out
}
