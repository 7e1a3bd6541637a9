package indicator

import "fmt"

// ValidationError reports the first violated OHLC invariant in a candle series.
// Row is the offending index, or -1 for series-level violations.
type ValidationError struct {
	Invariant string
	Row       int
}

func (e *ValidationError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("candle validation: %s", e.Invariant)
	}
	return fmt.Sprintf("candle validation: %s at row %d", e.Invariant, e.Row)
}

// InsufficientDataError means a series has fewer usable rows than the ATR
// period requires. The orchestrator records the (symbol, config) unit as
// skipped rather than failed.
type InsufficientDataError struct {
	Rows   int
	Period int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d rows, need at least %d", e.Rows, e.Period)
}
