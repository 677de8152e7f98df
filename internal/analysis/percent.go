package analysis

import "sort"

// Percentages converts counts into percentages with one decimal place.
//
// When counts partition total, rounding is distributed with the largest-remainder method
// so the result sums to exactly 100.0. Otherwise each share is rounded on its own.
func Percentages(counts []int, total int) []float64 {
	out := make([]float64, len(counts))
	if total <= 0 || len(counts) == 0 {
		return out
	}

	sum := 0
	for _, c := range counts {
		sum += c
	}
	if sum != total {
		for i, c := range counts {
			out[i] = round1(float64(c) * 100 / float64(total))
		}
		return out
	}

	const scale = 1000 // tenths of a percent

	type share struct {
		idx       int
		tenths    int
		remainder int
	}

	shares := make([]share, len(counts))
	assigned := 0
	for i, c := range counts {
		exact := c * scale
		shares[i] = share{idx: i, tenths: exact / total, remainder: exact % total}
		assigned += shares[i].tenths
	}

	sort.SliceStable(shares, func(i, j int) bool { return shares[i].remainder > shares[j].remainder })
	for i := 0; assigned < scale && i < len(shares); i++ {
		shares[i].tenths++
		assigned++
	}

	for _, s := range shares {
		out[s.idx] = float64(s.tenths) / 10
	}
	return out
}
