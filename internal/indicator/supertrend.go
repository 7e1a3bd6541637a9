package indicator

import (
	"fmt"
	"math"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

// ComputeSupertrend runs the banded trend recurrence for one symbol under one
// configuration. The atr slice must be aligned to the series (see ATR/ATRFrom).
// A non-nil prior snapshot makes bar 0 behave as the bar after the prior
// batch's last bar instead of a cold start.
//
// The recurrence is intrinsically sequential: each bar depends on the previous
// bar's adjusted bands and direction. Parallelism happens across symbols and
// configs, never across the time axis.
func ComputeSupertrend(series model.CandleSeries, atr []float64, cfg model.IndicatorConfig, prior *model.StateSnapshot) (*model.IndicatorSeries, error) {
	n := len(series)
	if n < cfg.ATRPeriod && prior == nil {
		// A seeded batch may be arbitrarily short; only a cold start needs
		// a full period of rows.
		return nil, &InsufficientDataError{Rows: n, Period: cfg.ATRPeriod}
	}
	if len(atr) != n {
		return nil, fmt.Errorf("atr length %d does not match series length %d", len(atr), n)
	}

	hl2 := series.HL2s()
	closes := series.Closes()

	var source []float64
	if cfg.UseSMA {
		var prefix []float64
		if prior != nil {
			prefix = prior.HL2Window
		}
		source = smaWithPrefix(hl2, cfg.ATRPeriod, prefix)
	} else {
		source = hl2
	}

	out := &model.IndicatorSeries{
		Config:     cfg.Name,
		ATR:        atr,
		Source:     source,
		UpperBand:  make([]float64, n),
		LowerBand:  make([]float64, n),
		Supertrend: make([]float64, n),
		Direction:  make([]int, n),
	}

	for i := 0; i < n; i++ {
		rawUpper := source[i] + cfg.ATRMultiplier*atr[i]
		rawLower := source[i] - cfg.ATRMultiplier*atr[i]
		upper, lower := rawUpper, rawLower

		// Previous-bar context: from bar i-1, or from the prior batch's
		// snapshot when this is the seeded first bar.
		havePrev := false
		var prevUpper, prevLower, prevHL2, prevClose float64
		prevDir := 0
		prevATRDefined := false
		switch {
		case i > 0:
			havePrev = true
			prevUpper = out.UpperBand[i-1]
			prevLower = out.LowerBand[i-1]
			prevHL2 = hl2[i-1]
			prevClose = closes[i-1]
			prevDir = out.Direction[i-1]
			prevATRDefined = !math.IsNaN(atr[i-1])
		case prior != nil:
			havePrev = true
			prevUpper = prior.PrevUpperBand
			prevLower = prior.PrevLowerBand
			prevHL2 = prior.PrevHL2
			prevClose = prior.PrevClose
			prevDir = prior.PrevDirection
			prevATRDefined = !math.IsNaN(prior.PrevATR)
		}

		if havePrev {
			// Sticky bands: never loosen against the prevailing trend.
			if math.IsNaN(prevLower) {
				prevLower = lower
			}
			if math.IsNaN(prevUpper) {
				prevUpper = upper
			}
			lowerBreak := prevHL2 < prevLower && (!cfg.CloseConfirm || prevClose < prevLower)
			if !(rawLower > prevLower || lowerBreak) {
				lower = prevLower
			}
			upperBreak := prevHL2 > prevUpper && (!cfg.CloseConfirm || prevClose > prevUpper)
			if !(rawUpper < prevUpper || upperBreak) {
				upper = prevUpper
			}
		}
		out.UpperBand[i] = upper
		out.LowerBand[i] = lower

		// Direction state machine: +1 until the previous bar's ATR exists,
		// then flip only when price crosses the currently active band.
		var dir int
		switch {
		case !havePrev || !prevATRDefined:
			dir = 1
		case prevDir != -1: // previous bar rode the upper band
			if hl2[i] > upper && (!cfg.CloseConfirm || closes[i] > upper) {
				dir = -1
			} else {
				dir = 1
			}
		default: // previous bar rode the lower band
			if hl2[i] < lower && (!cfg.CloseConfirm || closes[i] < lower) {
				dir = 1
			} else {
				dir = -1
			}
		}
		out.Direction[i] = dir
		if dir == -1 {
			out.Supertrend[i] = lower
		} else {
			out.Supertrend[i] = upper
		}
	}

	return out, nil
}
