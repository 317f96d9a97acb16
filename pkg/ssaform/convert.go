package ssaform

import (
	"fmt"
	"sort"

	"github.com/vantage-dev/jvmrta/pkg/ir"
)

// Convert rewrites m in place into SSA form: every variable definition
// becomes a fresh SSA version, join points that merge two or more
// reaching definitions of the same pre-SSA variable get an explicit Phi
// (placed only where the variable is actually live, per the liveness
// pruning rule), and m.Preds/m.PhiNodes are populated, both keyed by the
// IR pc of the owning block's first instruction.
func Convert(m *ir.Method) error {
	blocks := buildBlocks(m)
	if len(blocks) == 0 {
		return nil
	}
	bx := newBlockIndexer(blocks)
	linkEdges(m, blocks, bx)

	entry := bx.at(0)
	if entry < 0 {
		return fmt.Errorf("ssaform: no block at pc 0")
	}
	idom := computeIdom(blocks, entry)
	df := dominanceFrontier(blocks, idom)
	lv := computeLiveness(m, blocks)

	defBlocksOf := collectDefBlocks(m, blocks)
	phiVars := placePhis(blocks, df, lv, defBlocksOf)

	m.Preds = make([][]int, len(m.Code))
	for _, b := range blocks {
		for _, p := range b.Preds {
			m.Preds[b.Start] = append(m.Preds[b.Start], blocks[p].Start)
		}
	}

	children := domChildren(idom, entry)
	rn := &renamer{
		m:         m,
		blocks:    blocks,
		phiVars:   phiVars,
		children:  children,
		vars:      append([]ir.Variable(nil), m.Vars...),
		nextIndex: len(m.Vars),
		version:   map[int]int{},
		original:  map[int]ir.Variable{},
		exitVal:   make([]map[int]ir.Variable, len(blocks)),
		phiDef:    make([]map[int]ir.Variable, len(blocks)),
	}
	rn.walk(entry, map[int]ir.Variable{})

	m.PhiNodes = make(map[int][]ir.Phi)
	for bi, vars := range phiVars {
		b := blocks[bi]
		for _, v := range vars {
			def := rn.phiDef[bi][v]
			uses := make([]ir.Variable, len(b.Preds))
			for k, p := range b.Preds {
				if val, ok := rn.exitVal[p][v]; ok {
					uses[k] = val
				} else {
					uses[k] = rn.original[v]
				}
			}
			m.PhiNodes[b.Start] = append(m.PhiNodes[b.Start], ir.Phi{Def: def, Use: uses})
		}
		sort.Slice(m.PhiNodes[b.Start], func(i, j int) bool {
			return m.PhiNodes[b.Start][i].Def.Index < m.PhiNodes[b.Start][j].Def.Index
		})
	}

	m.Vars = rn.vars
	return nil
}

// collectDefBlocks maps each pre-SSA variable index to the list of block
// indices containing a definition of it.
func collectDefBlocks(m *ir.Method, blocks []block) map[int][]int {
	out := map[int][]int{}
	add := func(bi, v int) {
		for _, x := range out[v] {
			if x == bi {
				return
			}
		}
		out[v] = append(out[v], bi)
	}
	for bi, b := range blocks {
		for i := b.Start; i < b.End; i++ {
			if d, ok := instrDef(&m.Code[i]); ok {
				add(bi, d.Index)
			}
		}
	}
	return out
}

// placePhis runs the iterated-dominance-frontier phi placement algorithm
// per variable, inserting a phi at a frontier block only when the
// variable is live on entry there.
func placePhis(blocks []block, df [][]int, lv *liveness, defBlocksOf map[int][]int) map[int][]int {
	phiBlocks := map[int]map[int]bool{} // block -> set of vars needing a phi
	for v, defs := range defBlocksOf {
		hasPhi := map[int]bool{}
		worklist := append([]int{}, defs...)
		for len(worklist) > 0 {
			b := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for _, d := range df[b] {
				if hasPhi[d] {
					continue
				}
				if !lv.liveInAt(d, v) {
					continue
				}
				hasPhi[d] = true
				if phiBlocks[d] == nil {
					phiBlocks[d] = map[int]bool{}
				}
				phiBlocks[d][v] = true
				worklist = append(worklist, d)
			}
		}
	}
	out := make(map[int][]int, len(phiBlocks))
	for b, set := range phiBlocks {
		for v := range set {
			out[b] = append(out[b], v)
		}
		sort.Ints(out[b])
	}
	return out
}
