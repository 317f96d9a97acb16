// Package ssaform converts a pkg/ir Method into SSA form: it builds the
// control-flow graph (including exception edges), places phi nodes at the
// iterated dominance frontier of each variable's definition sites (pruned
// to where the variable is actually live), and renames variables via a
// preorder walk of the dominator tree.
package ssaform

import "github.com/vantage-dev/jvmrta/pkg/ir"

// block is one maximal straight-line run of IR instructions, [Start, End).
type block struct {
	Start, End int
	Succs      []int
	Preds      []int
}

func isBlockEnd(k ir.InstrKind) bool {
	switch k {
	case ir.IGoto, ir.IIfd, ir.IReturn, ir.IThrow:
		return true
	default:
		return false
	}
}

// buildBlocks partitions m.Code into basic blocks. A pc starts a new block
// if it's pc 0, a recorded jump target, the instruction right after a
// block-ending instruction, or an exception handler's start/handler pc.
func buildBlocks(m *ir.Method) []block {
	n := len(m.Code)
	if n == 0 {
		return nil
	}
	isStart := make([]bool, n)
	isStart[0] = true
	for i, jt := range m.JumpTarget {
		if jt {
			isStart[i] = true
		}
	}
	for i, instr := range m.Code {
		if isBlockEnd(instr.Kind) && i+1 < n {
			isStart[i+1] = true
		}
	}
	for _, h := range m.ExcTbl {
		if h.EStart < n {
			isStart[h.EStart] = true
		}
		if h.EHandler < n {
			isStart[h.EHandler] = true
		}
	}

	var starts []int
	for i, s := range isStart {
		if s {
			starts = append(starts, i)
		}
	}
	blocks := make([]block, len(starts))
	for bi, s := range starts {
		end := n
		if bi+1 < len(starts) {
			end = starts[bi+1]
		}
		blocks[bi] = block{Start: s, End: end}
	}
	return blocks
}

// blockIndexer resolves a pc to its containing block index via a
// start-pc lookup table.
type blockIndexer struct {
	blocks  []block
	byStart map[int]int
}

func newBlockIndexer(blocks []block) *blockIndexer {
	bx := &blockIndexer{blocks: blocks, byStart: make(map[int]int, len(blocks))}
	for i, b := range blocks {
		bx.byStart[b.Start] = i
	}
	return bx
}

func (bx *blockIndexer) at(pc int) int {
	lo, hi := 0, len(bx.blocks)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		b := bx.blocks[mid]
		switch {
		case pc < b.Start:
			hi = mid - 1
		case pc >= b.End:
			lo = mid + 1
		default:
			return mid
		}
	}
	return -1
}

// linkEdges fills in Preds/Succs for every block, including exception
// edges from every block whose start pc falls within a handler's
// [EStart, EEnd) range to that handler's entry block.
func linkEdges(m *ir.Method, blocks []block, bx *blockIndexer) {
	addEdge := func(from, to int) {
		if from < 0 || to < 0 {
			return
		}
		blocks[from].Succs = append(blocks[from].Succs, to)
		blocks[to].Preds = append(blocks[to].Preds, from)
	}

	for bi := range blocks {
		b := blocks[bi]
		if b.End <= b.Start {
			continue
		}
		last := m.Code[b.End-1]
		switch last.Kind {
		case ir.IGoto:
			addEdge(bi, bx.at(last.Target))
		case ir.IIfd:
			addEdge(bi, bx.at(last.Target))
			if b.End < len(m.Code) {
				addEdge(bi, bx.at(b.End))
			}
		case ir.IReturn, ir.IThrow:
			// no normal successor
		default:
			if b.End < len(m.Code) {
				addEdge(bi, bx.at(b.End))
			}
		}
	}

	for _, h := range m.ExcTbl {
		handlerBlock := bx.at(h.EHandler)
		for bi := range blocks {
			if blocks[bi].Start >= h.EStart && blocks[bi].Start < h.EEnd {
				addEdge(bi, handlerBlock)
			}
		}
	}
}
