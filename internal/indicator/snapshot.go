package indicator

import (
	"errors"
	"math"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

// ErrEmptySeries is returned when there is nothing to snapshot.
var ErrEmptySeries = errors.New("cannot snapshot an empty series")

// ExtractSnapshot reads the tail of a completed computation and builds the
// continuation state for the next batch: the last bar's band/direction values
// plus the trailing true-range and hl2 windows of up to ATRPeriod entries.
// When the batch itself continued a prior snapshot, pass it so the windows
// stay full even for batches shorter than the period.
func ExtractSnapshot(series model.CandleSeries, is *model.IndicatorSeries, cfg model.IndicatorConfig, prior *model.StateSnapshot) (model.StateSnapshot, error) {
	n := len(series)
	if n == 0 || is == nil || is.Len() == 0 {
		return model.StateSnapshot{}, ErrEmptySeries
	}

	prevClose := math.NaN()
	var priorTR, priorHL2 []float64
	if prior != nil {
		prevClose = prior.PrevClose
		priorTR = prior.TRWindow
		priorHL2 = prior.HL2Window
	}
	tr := TrueRangeFrom(series.Highs(), series.Lows(), series.Closes(), prevClose)

	last := n - 1
	snap := model.StateSnapshot{
		PrevSupertrend: is.Supertrend[last],
		PrevUpperBand:  is.UpperBand[last],
		PrevLowerBand:  is.LowerBand[last],
		PrevClose:      series[last].Close,
		PrevHL2:        series[last].HL2(),
		PrevDirection:  is.Direction[last],
		PrevATR:        is.ATR[last],
		TRWindow:       TailWindow(priorTR, tr, cfg.ATRPeriod),
		HL2Window:      TailWindow(priorHL2, series.HL2s(), cfg.ATRPeriod),
	}
	if len(is.FlatBase) == is.Len() {
		snap.PrevFlatBase = is.FlatBase[last]
	}
	return snap, nil
}

// ATRSeedFrom converts a continuation snapshot into the seed consumed by
// ATRFrom/RMAFrom. Returns nil for a nil snapshot.
func ATRSeedFrom(snap *model.StateSnapshot) *ATRSeed {
	if snap == nil {
		return nil
	}
	prevATR := snap.PrevATR
	if prevATR == 0 {
		// Snapshot predates the PrevATR field; fall back to replaying
		// the TR window.
		prevATR = math.NaN()
	}
	return &ATRSeed{
		PrevATR:   prevATR,
		PrevClose: snap.PrevClose,
		TRWindow:  snap.TRWindow,
	}
}
