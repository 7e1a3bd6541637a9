package model

import "encoding/json"

// IndicatorConfig specifies one supertrend parameter set.
// Name is the unique key used in result maps and state keys.
type IndicatorConfig struct {
	Name          string  `json:"name"`
	ATRPeriod     int     `json:"atr_period"`     // >= 1
	ATRMultiplier float64 `json:"atr_multiplier"` // > 0
	UseSMA        bool    `json:"use_sma"`        // source = SMA(hl2, period) instead of raw hl2
	CloseConfirm  bool    `json:"close_confirm"`  // require close to confirm band/flip decisions
}

// IndicatorSeries is the computed output for one symbol under one config.
// All slices are parallel to the input CandleSeries.
type IndicatorSeries struct {
	Symbol string `json:"symbol"`
	Config string `json:"config"`

	ATR        []float64 `json:"atr"`
	Source     []float64 `json:"source"`
	UpperBand  []float64 `json:"upper_band"`
	LowerBand  []float64 `json:"lower_band"`
	Supertrend []float64 `json:"supertrend"`
	Direction  []int     `json:"direction"` // +1 or -1
	FlatBase   []int     `json:"flatbase_count"`
}

// Len returns the number of bars in the series.
func (is *IndicatorSeries) Len() int { return len(is.Supertrend) }

// StateKey addresses continuation state for one (symbol, config) pair.
type StateKey struct {
	Symbol string `json:"symbol"`
	Config string `json:"config"`
}

// StateSnapshot carries the last-bar values and trailing windows needed to
// resume the ATR/supertrend/flat-base recurrences on the next batch without
// replaying full history. Produced by the core, persisted by the caller.
type StateSnapshot struct {
	PrevSupertrend float64 `json:"prev_supertrend"`
	PrevUpperBand  float64 `json:"prev_upper_band"`
	PrevLowerBand  float64 `json:"prev_lower_band"`
	PrevClose      float64 `json:"prev_close"`
	PrevHL2        float64 `json:"prev_hl2"`
	PrevDirection  int     `json:"prev_direction"` // +1 or -1

	// PrevATR is the smoothed ATR at the snapshot bar. It lets the RMA
	// recurrence continue exactly; TRWindow alone only approximates it.
	PrevATR float64 `json:"prev_atr"`
	// TRWindow holds up to ATRPeriod most-recent true-range values.
	TRWindow []float64 `json:"tr_window"`
	// HL2Window holds up to ATRPeriod most-recent hl2 values, needed to
	// continue the rolling SMA source across the batch boundary.
	HL2Window []float64 `json:"hl2_window,omitempty"`
	// PrevFlatBase continues the flat-base run length across batches.
	PrevFlatBase int `json:"prev_flatbase"`
}

// JSON returns the JSON-encoded snapshot.
func (ss StateSnapshot) JSON() []byte {
	b, _ := json.Marshal(ss)
	return b
}

// SymbolResult is the per-symbol outcome inside a BatchResult: either a series
// per config, or a symbol-level failure, plus per-config skips and snapshots.
type SymbolResult struct {
	Symbol string

	// Series holds one IndicatorSeries per config name.
	Series map[string]*IndicatorSeries
	// States holds the continuation snapshot per config name.
	States map[string]StateSnapshot

	// Err is a symbol-level failure (validation); when set, Series is empty.
	Err error
	// Skipped records per-config skips (insufficient data), keyed by config name.
	Skipped map[string]error
}

// Failed reports whether the whole symbol failed.
func (sr *SymbolResult) Failed() bool { return sr.Err != nil }

// BatchResult maps symbol -> per-symbol outcome for one batch invocation.
// It is constructed by a single collector goroutine and returned to the
// caller; no shared mutation happens across symbols during construction.
type BatchResult struct {
	Results map[string]*SymbolResult
}

// NewBatchResult allocates an empty result for n symbols.
func NewBatchResult(n int) *BatchResult {
	return &BatchResult{Results: make(map[string]*SymbolResult, n)}
}

// Failures returns the symbols whose whole unit failed, with reasons.
func (br *BatchResult) Failures() map[string]error {
	out := make(map[string]error)
	for sym, sr := range br.Results {
		if sr.Err != nil {
			out[sym] = sr.Err
		}
	}
	return out
}

// Succeeded counts symbols that produced at least one series.
func (br *BatchResult) Succeeded() int {
	n := 0
	for _, sr := range br.Results {
		if len(sr.Series) > 0 {
			n++
		}
	}
	return n
}
