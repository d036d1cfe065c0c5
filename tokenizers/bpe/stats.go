package bpe

// pairStats counts every adjacent id pair in a single left-to-right scan.
//
// Besides the counts it returns the pairs ordered by first occurrence. The
// trainer breaks frequency ties by taking the earliest first occurrence, so
// the scan order has to be preserved; a bare Go map would randomize it.
func pairStats(ids []int) (map[Pair]int, []Pair) {
	counts := make(map[Pair]int)
	order := make([]Pair, 0, len(ids))
	for i := 0; i+1 < len(ids); i++ {
		p := Pair{ids[i], ids[i+1]}
		if counts[p] == 0 {
			order = append(order, p)
		}
		counts[p]++
	}
	return counts, order
}

// mergePair rewrites ids, replacing every non-overlapping occurrence of p
// with id in a left-to-right scan. A position consumed by a replacement
// cannot participate in another replacement in the same pass.
func mergePair(ids []int, p Pair, id int) []int {
	out := make([]int, 0, len(ids))
	for i := 0; i < len(ids); {
		if i+1 < len(ids) && ids[i] == p.Left && ids[i+1] == p.Right {
			out = append(out, id)
			i += 2
		} else {
			out = append(out, ids[i])
			i++
		}
	}
	return out
}
