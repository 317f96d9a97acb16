package ssaform

import "github.com/vantage-dev/jvmrta/pkg/ir"

// liveness holds, per block, the set of pre-SSA variable indices live on
// entry and exit. Used only to prune phi placement to variables that are
// actually live at the candidate join (spec's liveness-based phi pruning).
type liveness struct {
	in, out []map[int]bool
}

// computeLiveness runs the standard backward dataflow fixpoint:
//
//	liveIn[b]  = (liveOut[b] - defs[b]) U upwardUses[b]
//	liveOut[b] = union over succ s of liveIn[s]
func computeLiveness(m *ir.Method, blocks []block) *liveness {
	n := len(blocks)
	defs := make([]map[int]bool, n)
	uses := make([]map[int]bool, n)
	for bi, b := range blocks {
		defs[bi] = map[int]bool{}
		uses[bi] = map[int]bool{}
		for i := b.Start; i < b.End; i++ {
			for _, u := range instrUses(m.Code[i]) {
				if !defs[bi][u.Index] {
					uses[bi][u.Index] = true
				}
			}
			if d, ok := instrDef(&m.Code[i]); ok {
				defs[bi][d.Index] = true
			}
		}
		if bi < len(blocks) {
			for _, h := range m.ExcTbl {
				if h.EHandler == blocks[bi].Start {
					defs[bi][h.ECatchVar.Index] = true
				}
			}
		}
	}

	lv := &liveness{in: make([]map[int]bool, n), out: make([]map[int]bool, n)}
	for i := range lv.in {
		lv.in[i] = map[int]bool{}
		lv.out[i] = map[int]bool{}
	}

	changed := true
	for changed {
		changed = false
		for bi := n - 1; bi >= 0; bi-- {
			newOut := map[int]bool{}
			for _, s := range blocks[bi].Succs {
				for v := range lv.in[s] {
					newOut[v] = true
				}
			}
			newIn := map[int]bool{}
			for v := range newOut {
				if !defs[bi][v] {
					newIn[v] = true
				}
			}
			for v := range uses[bi] {
				newIn[v] = true
			}
			if !sameSet(newIn, lv.in[bi]) || !sameSet(newOut, lv.out[bi]) {
				lv.in[bi] = newIn
				lv.out[bi] = newOut
				changed = true
			}
		}
	}
	return lv
}

func sameSet(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func (lv *liveness) liveInAt(block int, v int) bool { return lv.in[block][v] }
