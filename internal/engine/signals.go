package engine

import (
	"math"
	"sort"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

// BuildSignals flattens a batch result into per-bar signal rows for the last
// lastN bars of every successful (symbol, config) unit. Rows are ordered by
// symbol, then config, then time, so downstream writers see a stable layout.
func BuildSignals(timeframe string, seriesBySymbol map[string]model.CandleSeries, br *model.BatchResult, lastN int) []model.Signal {
	if br == nil || lastN <= 0 {
		return nil
	}
	symbols := make([]string, 0, len(br.Results))
	for sym := range br.Results {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var signals []model.Signal
	for _, sym := range symbols {
		sr := br.Results[sym]
		if sr.Failed() {
			continue
		}
		series := seriesBySymbol[sym]

		names := make([]string, 0, len(sr.Series))
		for name := range sr.Series {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			is := sr.Series[name]
			n := is.Len()
			if n == 0 || n != len(series) {
				continue
			}
			start := n - lastN
			if start < 0 {
				start = 0
			}
			for i := start; i < n; i++ {
				hl2 := series[i].HL2()
				signals = append(signals, model.Signal{
					Timeframe:  timeframe,
					Symbol:     sym,
					Config:     name,
					TS:         series[i].TS,
					Close:      series[i].Close,
					HL2:        hl2,
					Supertrend: is.Supertrend[i],
					Direction:  is.Direction[i],
					FlatBase:   is.FlatBase[i],
					PctDiff:    pctDiff(hl2, is.Supertrend[i]),
				})
			}
		}
	}
	return signals
}

// pctDiff is the percentage distance of price from the supertrend line.
func pctDiff(hl2, supertrend float64) float64 {
	if hl2 == 0 || math.IsNaN(hl2) || math.IsNaN(supertrend) {
		return math.NaN()
	}
	return (hl2 - supertrend) / hl2 * 100
}
