package consolidator

import "sort"

// indexedView owns private copies of the drive sizes for one run. Drives are
// addressed by their original position throughout, so the processing order
// is an explicit permutation rather than a reordering of the data.
type indexedView struct {
	used  []int
	total []int
}

func newIndexedView(used, total []int) *indexedView {
	v := &indexedView{
		used:  make([]int, len(used)),
		total: make([]int, len(total)),
	}
	copy(v.used, used)
	copy(v.total, total)
	return v
}

func (v *indexedView) len() int {
	return len(v.used)
}

func (v *indexedView) free(key int) int {
	return v.total[key] - v.used[key]
}

// orderedByTotalDescending returns drive positions sorted by total size,
// largest first. Equal totals keep their input order.
func (v *indexedView) orderedByTotalDescending() []int {
	order := make([]int, v.len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return v.total[order[a]] > v.total[order[b]]
	})
	return order
}

func (v *indexedView) writeBack(used, total []int) {
	for key := range v.used {
		used[key] = v.used[key]
		total[key] = v.total[key]
	}
}
