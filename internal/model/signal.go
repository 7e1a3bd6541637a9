package model

import "time"

// Signal is one per-bar reading of a (symbol, config) computation, flattened
// for persistence and dashboard fan-out.
type Signal struct {
	Timeframe  string    `json:"timeframe"`
	Symbol     string    `json:"symbol"`
	Config     string    `json:"config"`
	TS         time.Time `json:"ts"`
	Close      float64   `json:"close"`
	HL2        float64   `json:"hl2"`
	Supertrend float64   `json:"supertrend"`
	Direction  int       `json:"direction"`
	FlatBase   int       `json:"flat_base"`
	// PctDiff is the distance of price from the supertrend line:
	// ((hl2 - supertrend) / hl2) * 100.
	PctDiff float64 `json:"pct_diff"`
}
