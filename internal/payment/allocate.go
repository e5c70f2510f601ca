package payment

import "sort"

// Allocate splits charge across seats in proportion to their base prices
// using the largest remainder method. The result always sums to charge.
func Allocate(charge int64, bases []int64) []int64 {
	n := len(bases)
	out := make([]int64, n)
	if n == 0 || charge <= 0 {
		return out
	}

	var total int64
	for _, b := range bases {
		total += b
	}
	if total <= 0 {
		for i := range out {
			out[i] = charge / int64(n)
		}
		for i := 0; i < int(charge%int64(n)); i++ {
			out[i]++
		}
		return out
	}

	type rem struct {
		idx int
		r   int64
	}
	rems := make([]rem, n)
	var assigned int64
	for i, b := range bases {
		// charge*b fits in int64 for any realistic ticket amount
		share := charge * b
		out[i] = share / total
		rems[i] = rem{idx: i, r: share % total}
		assigned += out[i]
	}

	sort.SliceStable(rems, func(a, b int) bool { return rems[a].r > rems[b].r })
	for k := int64(0); k < charge-assigned; k++ {
		out[rems[k].idx]++
	}
	return out
}
