package indicator

import "math"

// ATRSeed carries the trailing smoothing state needed to continue an ATR
// recurrence across batch boundaries. PrevATR resumes the RMA exactly;
// TRWindow is the fallback when only the raw true-range tail survived
// (it rebuilds an approximate smoothing seed by replaying the window).
type ATRSeed struct {
	PrevATR   float64
	PrevClose float64
	TRWindow  []float64
}

// TrueRange computes the single-bar volatility measure:
// tr[0] = high[0]-low[0]; tr[i] = max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(high, low, closes []float64) []float64 {
	return TrueRangeFrom(high, low, closes, math.NaN())
}

// TrueRangeFrom is TrueRange with an optional previous close for bar 0,
// used when the series continues a prior batch. Pass NaN for a fresh series.
func TrueRangeFrom(high, low, closes []float64, prevClose float64) []float64 {
	n := len(high)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := high[i] - low[i]
		var pc float64
		if i == 0 {
			pc = prevClose
		} else {
			pc = closes[i-1]
		}
		if math.IsNaN(pc) {
			tr[i] = hl
			continue
		}
		tr[i] = math.Max(hl, math.Max(math.Abs(high[i]-pc), math.Abs(low[i]-pc)))
	}
	return tr
}

// RMA computes the rolling moving average with alpha = 1/period:
// out[0] = values[0]; out[i] = alpha*values[i] + (1-alpha)*out[i-1].
// A NaN input carries the previous output unchanged instead of propagating.
func RMA(values []float64, period int) []float64 {
	return rma(values, period, math.NaN())
}

// RMAFrom continues an RMA recurrence from a prior batch. When the seed has a
// finite PrevATR the recurrence resumes exactly; otherwise the seed's TR
// window is replayed first and its output prefix discarded, approximating the
// prior smoothing state from the window alone.
func RMAFrom(values []float64, period int, seed *ATRSeed) []float64 {
	if seed == nil {
		return RMA(values, period)
	}
	if !math.IsNaN(seed.PrevATR) {
		return rma(values, period, seed.PrevATR)
	}
	if len(seed.TRWindow) == 0 {
		return RMA(values, period)
	}
	warm := rma(seed.TRWindow, period, math.NaN())
	return rma(values, period, warm[len(warm)-1])
}

// rma runs the recurrence with an optional previous output (NaN = fresh).
func rma(values []float64, period int, prev float64) []float64 {
	alpha := 1.0 / float64(period)
	out := make([]float64, len(values))
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = prev
		case math.IsNaN(prev):
			out[i] = v
		default:
			out[i] = alpha*v + (1-alpha)*prev
		}
		prev = out[i]
	}
	return out
}

// ATR computes the RMA-smoothed true range for a fresh series.
func ATR(high, low, closes []float64, period int) []float64 {
	return RMA(TrueRange(high, low, closes), period)
}

// ATRFrom computes ATR continuing from a prior batch's seed. The returned
// slice is aligned to the new input only.
func ATRFrom(high, low, closes []float64, period int, seed *ATRSeed) []float64 {
	if seed == nil {
		return ATR(high, low, closes, period)
	}
	tr := TrueRangeFrom(high, low, closes, seed.PrevClose)
	return RMAFrom(tr, period, seed)
}

// TailWindow returns the trailing window of size up to period from the
// concatenation of a prior window and new values, without mutating either.
func TailWindow(prior, values []float64, period int) []float64 {
	merged := make([]float64, 0, len(prior)+len(values))
	merged = append(merged, prior...)
	merged = append(merged, values...)
	if len(merged) > period {
		merged = merged[len(merged)-period:]
	}
	out := make([]float64, len(merged))
	copy(out, merged)
	return out
}
