package ssaform

import "github.com/vantage-dev/jvmrta/pkg/ir"

// renamer carries the state threaded through the dominator-tree preorder
// renaming walk.
type renamer struct {
	m        *ir.Method
	blocks   []block
	phiVars  map[int][]int // block -> pre-SSA var indices needing a phi there
	children [][]int       // dominator tree children

	vars      []ir.Variable
	nextIndex int
	version   map[int]int // base var index -> next SSA version number

	original map[int]ir.Variable // base var index -> its original (pre-SSA) Variable

	exitVal []map[int]ir.Variable // per block: base var index -> SSA value reaching block exit
	phiDef  []map[int]ir.Variable // per block: base var index -> the phi's fresh Def variable
}

func (rn *renamer) fresh(base int) ir.Variable {
	v := ir.Variable{Index: rn.nextIndex, Origin: ir.Origin{Kind: ir.OriginSSA, LocalSlot: base, K: rn.version[base]}}
	rn.version[base]++
	rn.nextIndex++
	rn.vars = append(rn.vars, v)
	return v
}

func (rn *renamer) origOf(idx int) ir.Variable {
	if v, ok := rn.original[idx]; ok {
		return v
	}
	for _, v := range rn.m.Vars {
		if v.Index == idx {
			rn.original[idx] = v
			return v
		}
	}
	return ir.Variable{Index: idx}
}

// walk performs the preorder dominator-tree renaming pass described in
// Cytron et al.: at each block, phi defs get a fresh SSA version first,
// then each instruction's uses are resolved against the current mapping
// before its own def (if any) is given a fresh version; children are
// visited with this block's resulting mapping, and the original mapping
// is left untouched for sibling subtrees.
func (rn *renamer) walk(bi int, current map[int]ir.Variable) {
	if rn.original == nil {
		rn.original = map[int]ir.Variable{}
	}
	local := make(map[int]ir.Variable, len(current))
	for k, v := range current {
		local[k] = v
	}

	rn.phiDef[bi] = map[int]ir.Variable{}
	for _, v := range rn.phiVars[bi] {
		rn.origOf(v)
		nv := rn.fresh(v)
		rn.phiDef[bi][v] = nv
		local[v] = nv
	}

	b := rn.blocks[bi]
	for _, h := range rn.m.ExcTbl {
		if h.EHandler == b.Start {
			local[h.ECatchVar.Index] = h.ECatchVar
			rn.original[h.ECatchVar.Index] = h.ECatchVar
		}
	}

	lookup := func(v ir.Variable) ir.Variable {
		if cur, ok := local[v.Index]; ok {
			return cur
		}
		return v
	}

	for i := b.Start; i < b.End; i++ {
		rewriteInstrUses(&rn.m.Code[i], lookup)
		if d, ok := instrDef(&rn.m.Code[i]); ok {
			base := d.Index
			rn.origOf(base)
			nv := rn.fresh(base)
			*d = nv
			local[base] = nv
		}
	}

	rn.exitVal[bi] = local

	for _, c := range rn.children[bi] {
		rn.walk(c, local)
	}
}
