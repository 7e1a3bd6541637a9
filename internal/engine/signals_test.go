package engine

import (
	"context"
	"math"
	"testing"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

func TestBuildSignals(t *testing.T) {
	seriesBySymbol := map[string]model.CandleSeries{
		"A": genSeries(11, 60),
		"B": genSeries(12, 60),
	}
	e := New()
	br := e.ComputeBatch(context.Background(), seriesBySymbol, testConfigs(), nil)

	signals := BuildSignals("daily", seriesBySymbol, br, 3)
	// 2 symbols x 2 configs x 3 bars
	if len(signals) != 12 {
		t.Fatalf("signals = %d, want 12", len(signals))
	}

	first := signals[0]
	if first.Symbol != "A" || first.Timeframe != "daily" {
		t.Errorf("first signal = %+v, want symbol A on daily", first)
	}
	for _, sig := range signals {
		series := seriesBySymbol[sig.Symbol]
		if sig.TS.Before(series[56].TS) {
			t.Errorf("%s/%s: signal at %v predates the last 3 bars", sig.Symbol, sig.Config, sig.TS)
		}
		if sig.Direction != 1 && sig.Direction != -1 {
			t.Errorf("%s/%s: direction = %d", sig.Symbol, sig.Config, sig.Direction)
		}
		want := (sig.HL2 - sig.Supertrend) / sig.HL2 * 100
		if math.Abs(sig.PctDiff-want) > 1e-12 {
			t.Errorf("%s/%s: pct diff = %v, want %v", sig.Symbol, sig.Config, sig.PctDiff, want)
		}
	}
}

func TestBuildSignals_SkipsFailedSymbols(t *testing.T) {
	good := genSeries(21, 60)
	bad := genSeries(22, 60)
	bad[10].Low = bad[10].High + 1
	seriesBySymbol := map[string]model.CandleSeries{"GOOD": good, "BAD": bad}

	e := New()
	br := e.ComputeBatch(context.Background(), seriesBySymbol, testConfigs(), nil)

	signals := BuildSignals("125min", seriesBySymbol, br, 1)
	for _, sig := range signals {
		if sig.Symbol == "BAD" {
			t.Fatalf("signal emitted for failed symbol: %+v", sig)
		}
	}
	if len(signals) != 2 {
		t.Errorf("signals = %d, want 2 (one per config for GOOD)", len(signals))
	}
}

func TestBuildSignals_Empty(t *testing.T) {
	if got := BuildSignals("daily", nil, nil, 3); got != nil {
		t.Errorf("BuildSignals(nil) = %v, want nil", got)
	}
}
