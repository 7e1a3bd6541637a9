package indicator

import (
	"errors"
	"math"
	"testing"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

func TestExtractSnapshot_LastBarValues(t *testing.T) {
	highs := []float64{12, 13, 11, 15, 16, 12}
	lows := []float64{10, 11, 9, 13, 14, 10}
	closes := []float64{11, 12, 10, 14, 15, 11}
	series := newSeries(highs, lows, closes)
	cfg := model.IndicatorConfig{Name: "st", ATRPeriod: 3, ATRMultiplier: 2}

	atr := ATR(highs, lows, closes, 3)
	st, err := ComputeSupertrend(series, atr, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	st.FlatBase = FlatBaseCounts(st.Supertrend, DefaultFlatBaseTolerance, nil)

	snap, err := ExtractSnapshot(series, st, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	last := len(series) - 1
	if snap.PrevSupertrend != st.Supertrend[last] {
		t.Errorf("PrevSupertrend = %v, want %v", snap.PrevSupertrend, st.Supertrend[last])
	}
	if snap.PrevUpperBand != st.UpperBand[last] || snap.PrevLowerBand != st.LowerBand[last] {
		t.Errorf("band snapshot = (%v, %v), want (%v, %v)",
			snap.PrevUpperBand, snap.PrevLowerBand, st.UpperBand[last], st.LowerBand[last])
	}
	if snap.PrevClose != closes[last] {
		t.Errorf("PrevClose = %v, want %v", snap.PrevClose, closes[last])
	}
	if snap.PrevDirection != st.Direction[last] {
		t.Errorf("PrevDirection = %d, want %d", snap.PrevDirection, st.Direction[last])
	}
	if snap.PrevATR != atr[last] {
		t.Errorf("PrevATR = %v, want %v", snap.PrevATR, atr[last])
	}
	if snap.PrevFlatBase != st.FlatBase[last] {
		t.Errorf("PrevFlatBase = %d, want %d", snap.PrevFlatBase, st.FlatBase[last])
	}
	if len(snap.TRWindow) != cfg.ATRPeriod {
		t.Errorf("TR window length = %d, want %d", len(snap.TRWindow), cfg.ATRPeriod)
	}
	if len(snap.HL2Window) != cfg.ATRPeriod {
		t.Errorf("hl2 window length = %d, want %d", len(snap.HL2Window), cfg.ATRPeriod)
	}
}

func TestExtractSnapshot_MergesPriorWindows(t *testing.T) {
	// A continuation batch shorter than the period keeps full windows by
	// merging the prior snapshot's tail with the new bars.
	prior := &model.StateSnapshot{
		PrevSupertrend: 100,
		PrevUpperBand:  104,
		PrevLowerBand:  96,
		PrevClose:      100,
		PrevHL2:        100,
		PrevDirection:  1,
		PrevATR:        2,
		TRWindow:       []float64{2, 2, 2, 2, 2},
		HL2Window:      []float64{100, 100, 100, 100, 100},
	}
	highs := []float64{103, 104}
	lows := []float64{101, 102}
	closes := []float64{102, 103}
	series := newSeries(highs, lows, closes)
	cfg := model.IndicatorConfig{Name: "st", ATRPeriod: 5, ATRMultiplier: 2}

	atr := ATRFrom(highs, lows, closes, 5, ATRSeedFrom(prior))
	st, err := ComputeSupertrend(series, atr, cfg, prior)
	if err != nil {
		// Two bars against period 5 is fine in continuation mode.
		t.Fatalf("short continuation batch rejected: %v", err)
	}
	snap, err := ExtractSnapshot(series, st, cfg, prior)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.TRWindow) != 5 {
		t.Errorf("TR window length = %d, want 5", len(snap.TRWindow))
	}
	if len(snap.HL2Window) != 5 {
		t.Errorf("hl2 window length = %d, want 5", len(snap.HL2Window))
	}
	// The window tail is the new bars; the head comes from the prior window.
	if snap.HL2Window[4] != series[1].HL2() || snap.HL2Window[3] != series[0].HL2() {
		t.Errorf("hl2 window tail = %v, want new bars last", snap.HL2Window)
	}
	if snap.HL2Window[0] != 100 {
		t.Errorf("hl2 window head = %v, want carried from prior", snap.HL2Window[0])
	}
}

func TestExtractSnapshot_Empty(t *testing.T) {
	cfg := model.IndicatorConfig{Name: "st", ATRPeriod: 3}
	if _, err := ExtractSnapshot(nil, &model.IndicatorSeries{}, cfg, nil); !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("want ErrEmptySeries, got %v", err)
	}
}

func TestATRSeedFrom(t *testing.T) {
	if ATRSeedFrom(nil) != nil {
		t.Error("nil snapshot should produce a nil seed")
	}

	seed := ATRSeedFrom(&model.StateSnapshot{PrevATR: 2.5, PrevClose: 100, TRWindow: []float64{2, 3}})
	if seed.PrevATR != 2.5 || seed.PrevClose != 100 {
		t.Errorf("seed = %+v, want PrevATR 2.5 PrevClose 100", seed)
	}

	// A zero PrevATR marks a snapshot without exact resume state; the seed
	// degrades to window replay.
	legacy := ATRSeedFrom(&model.StateSnapshot{PrevClose: 100, TRWindow: []float64{2, 3}})
	if !math.IsNaN(legacy.PrevATR) {
		t.Errorf("legacy seed PrevATR = %v, want NaN", legacy.PrevATR)
	}
}
