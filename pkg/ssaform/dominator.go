package ssaform

// reversePostorder walks Succs from entry and returns block indices in
// reverse postorder, the iteration order the Cooper/Harvey/Kennedy
// dominator algorithm needs to converge in one or two passes.
func reversePostorder(blocks []block, entry int) []int {
	visited := make([]bool, len(blocks))
	var post []int
	var visit func(int)
	visit = func(b int) {
		if b < 0 || visited[b] {
			return
		}
		visited[b] = true
		for _, s := range blocks[b].Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(entry)
	rpo := make([]int, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return rpo
}

// computeIdom returns each reachable block's immediate dominator, -1 for
// the entry block and for unreachable blocks.
func computeIdom(blocks []block, entry int) []int {
	n := len(blocks)
	idom := make([]int, n)
	for i := range idom {
		idom[i] = -1
	}
	order := reversePostorder(blocks, entry)
	rpoNum := make([]int, n)
	for i := range rpoNum {
		rpoNum[i] = -1
	}
	for i, b := range order {
		rpoNum[b] = i
	}
	idom[entry] = entry

	changed := true
	for changed {
		changed = false
		for _, b := range order {
			if b == entry {
				continue
			}
			newIdom := -1
			for _, p := range blocks[b].Preds {
				if rpoNum[p] == -1 || idom[p] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = p
					continue
				}
				newIdom = intersect(idom, rpoNum, newIdom, p)
			}
			if newIdom != -1 && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	idom[entry] = -1
	return idom
}

func intersect(idom, rpoNum []int, a, b int) int {
	for a != b {
		for rpoNum[a] > rpoNum[b] {
			a = idom[a]
		}
		for rpoNum[b] > rpoNum[a] {
			b = idom[b]
		}
	}
	return a
}

// domChildren inverts idom into a dominator tree's children lists.
func domChildren(idom []int, entry int) [][]int {
	children := make([][]int, len(idom))
	for b, d := range idom {
		if b == entry || d == -1 {
			continue
		}
		children[d] = append(children[d], b)
	}
	return children
}

// dominanceFrontier implements the standard Cytron et al. algorithm: for
// every join block (2+ preds), walk each predecessor up the dominator
// tree until reaching the join's immediate dominator, adding the join to
// every block visited along the way.
func dominanceFrontier(blocks []block, idom []int) [][]int {
	df := make([][]int, len(blocks))
	for b := range blocks {
		if len(blocks[b].Preds) < 2 {
			continue
		}
		for _, p := range blocks[b].Preds {
			runner := p
			for runner != -1 && runner != idom[b] {
				if !containsInt(df[runner], b) {
					df[runner] = append(df[runner], b)
				}
				runner = idom[runner]
			}
		}
	}
	return df
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
