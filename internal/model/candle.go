// Package model holds the shared data types for the supertrend batch engine:
// candles, indicator configurations, computed series, and continuation state.
package model

import (
	"encoding/json"
	"time"
)

// Candle is a single OHLCV bar for one instrument.
// Prices are rupees as float64; the fetch layer guarantees low <= open,close <= high.
type Candle struct {
	TS     time.Time `json:"ts"` // bar start time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// HL2 returns the bar midpoint (high+low)/2, the default source signal.
func (c Candle) HL2() float64 {
	return (c.High + c.Low) / 2
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// CandleSeries is a time-ordered candle sequence for exactly one symbol.
// The fetch layer delivers it deduplicated and sorted by timestamp.
type CandleSeries []Candle

// Highs extracts the high column.
func (s CandleSeries) Highs() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.High
	}
	return out
}

// Lows extracts the low column.
func (s CandleSeries) Lows() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Low
	}
	return out
}

// Closes extracts the close column.
func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// HL2s extracts the midpoint column.
func (s CandleSeries) HL2s() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.HL2()
	}
	return out
}
