package extract

// Reduction settings for Reduce.
const (
	// DefaultOutlierRatio is the max/min ratio above which the minimum candidate is preferred.
	DefaultOutlierRatio = 5.0
	// DefaultOutlierFloor is the value the minimum must exceed for the ratio rule to apply.
	DefaultOutlierFloor = 10.0
)

// Reduce turns the candidates of one field, in catalog order, into a single value.
//
// When max/min exceeds ratio and min exceeds floor the minimum wins. Otherwise the most frequent
// value wins, and among equally frequent values the one seen first.
func Reduce(candidates []float64, ratio, floor float64) (float64, bool) {
	if len(candidates) == 0 {
		return 0, false
	}

	lo, hi := candidates[0], candidates[0]
	counts := make(map[float64]int, len(candidates))
	for _, c := range candidates {
		counts[c]++
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}

	if lo > floor && hi > ratio*lo {
		return lo, true
	}

	best, bestCount := candidates[0], 0
	for _, c := range candidates {
		if n := counts[c]; n > bestCount {
			best, bestCount = c, n
		}
	}
	return best, true
}
