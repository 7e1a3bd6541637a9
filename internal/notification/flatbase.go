package notification

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

// BuildFlatBaseAlert digests one timeframe's signal rows into a single alert
// listing every (symbol, config) whose supertrend has stayed flat for at least
// minCount bars. Only the newest row per (symbol, config) counts; older rows
// from the same batch are ignored. Returns false when nothing qualifies.
func BuildFlatBaseAlert(timeframe string, signals []model.Signal, minCount int) (Alert, bool) {
	if minCount <= 0 {
		return Alert{}, false
	}

	type unit struct {
		Symbol string
		Config string
	}
	newest := make(map[unit]model.Signal)
	for _, sig := range signals {
		k := unit{Symbol: sig.Symbol, Config: sig.Config}
		if cur, ok := newest[k]; !ok || sig.TS.After(cur.TS) {
			newest[k] = sig
		}
	}

	var hits []model.Signal
	for _, sig := range newest {
		if sig.FlatBase >= minCount {
			hits = append(hits, sig)
		}
	}
	if len(hits) == 0 {
		return Alert{}, false
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].FlatBase != hits[j].FlatBase {
			return hits[i].FlatBase > hits[j].FlatBase
		}
		if hits[i].Symbol != hits[j].Symbol {
			return hits[i].Symbol < hits[j].Symbol
		}
		return hits[i].Config < hits[j].Config
	})

	var b strings.Builder
	for _, sig := range hits {
		fmt.Fprintf(&b, "%s %s: %d bars flat @ %.2f (%+.2f%%)\n",
			sig.Symbol, sig.Config, sig.FlatBase, sig.Supertrend, sig.PctDiff)
	}
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("Flat base watch (%s): %d candidates", timeframe, len(hits)),
		Message: strings.TrimRight(b.String(), "\n"),
	}, true
}
