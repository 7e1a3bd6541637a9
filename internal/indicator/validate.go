package indicator

import (
	"math"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

// Validate checks the OHLC invariants on a time-ordered candle series before
// any indicator touches it. It returns a *ValidationError identifying the
// first violated invariant and the offending row; it never repairs data.
// On failure the orchestrator skips the whole symbol.
func Validate(series model.CandleSeries) error {
	if len(series) == 0 {
		return &ValidationError{Invariant: "series non-empty", Row: -1}
	}

	for i, c := range series {
		if !finite(c.Open) || !finite(c.High) || !finite(c.Low) || !finite(c.Close) {
			return &ValidationError{Invariant: "finite OHLC fields", Row: i}
		}
		if c.Low > c.High {
			return &ValidationError{Invariant: "low <= high", Row: i}
		}
		if c.Open < c.Low || c.Open > c.High {
			return &ValidationError{Invariant: "low <= open <= high", Row: i}
		}
		if c.Close < c.Low || c.Close > c.High {
			return &ValidationError{Invariant: "low <= close <= high", Row: i}
		}
		if c.Low < 0 {
			return &ValidationError{Invariant: "non-negative prices", Row: i}
		}
		if c.Volume < 0 {
			return &ValidationError{Invariant: "non-negative volume", Row: i}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
