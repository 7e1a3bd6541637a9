package indicator

import (
	"math"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

// DefaultFlatBaseTolerance is the relative change under which two consecutive
// supertrend values count as "flat" (0.1%).
const DefaultFlatBaseTolerance = 0.001

// FlatBaseCounts produces the consecutive-stability run length for a computed
// supertrend series: count[i] grows while the bar-over-bar relative change
// stays within tolerance, resets to 1 on a break, and resets to 0 whenever no
// stability claim can be made (zero or NaN neighbors). The count is a pure
// function of the supertrend values and the tolerance.
//
// A non-nil prior snapshot continues the run across a batch boundary using the
// prior batch's last supertrend value and count.
func FlatBaseCounts(supertrend []float64, tolerance float64, prior *model.StateSnapshot) []int {
	counts := make([]int, len(supertrend))
	for i := range supertrend {
		var prev float64
		prevCount := 0
		switch {
		case i > 0:
			prev = supertrend[i-1]
			prevCount = counts[i-1]
		case prior != nil:
			prev = prior.PrevSupertrend
			prevCount = prior.PrevFlatBase
		default:
			continue // fresh series: count[0] = 0
		}

		cur := supertrend[i]
		if prev == 0 || math.IsNaN(prev) || math.IsNaN(cur) {
			counts[i] = 0
			continue
		}
		pct := math.Abs((cur - prev) / prev)
		if pct <= tolerance {
			counts[i] = prevCount + 1
		} else {
			counts[i] = 1
		}
	}
	return counts
}
