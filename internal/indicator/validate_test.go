package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

func validCandle(i int) model.Candle {
	return model.Candle{
		TS:     time.Date(2025, 1, 6, 9, 15, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
		Open:   101,
		High:   105,
		Low:    100,
		Close:  103,
		Volume: 500,
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name      string
		mutate    func(model.CandleSeries)
		invariant string
		row       int
	}{
		{"nan open", func(s model.CandleSeries) { s[1].Open = math.NaN() }, "finite OHLC fields", 1},
		{"inf high", func(s model.CandleSeries) { s[2].High = math.Inf(1) }, "finite OHLC fields", 2},
		{"low above high", func(s model.CandleSeries) { s[0].Low = 110 }, "low <= high", 0},
		{"open outside range", func(s model.CandleSeries) { s[1].Open = 99 }, "low <= open <= high", 1},
		{"close outside range", func(s model.CandleSeries) { s[2].Close = 106 }, "low <= close <= high", 2},
		{"negative volume", func(s model.CandleSeries) { s[0].Volume = -1 }, "non-negative volume", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			series := model.CandleSeries{validCandle(0), validCandle(1), validCandle(2)}
			tc.mutate(series)
			err := Validate(series)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want ValidationError, got %v", err)
			}
			if verr.Invariant != tc.invariant || verr.Row != tc.row {
				t.Errorf("got (%q, %d), want (%q, %d)", verr.Invariant, verr.Row, tc.invariant, tc.row)
			}
		})
	}
}

func TestValidate_NegativePrice(t *testing.T) {
	series := model.CandleSeries{validCandle(0)}
	series[0].Low = -5
	series[0].Open = -2
	series[0].Close = -1
	err := Validate(series)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if verr.Invariant != "non-negative prices" {
		t.Errorf("invariant = %q, want %q", verr.Invariant, "non-negative prices")
	}
}

func TestValidate_Empty(t *testing.T) {
	err := Validate(nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if verr.Row != -1 {
		t.Errorf("row = %d, want -1", verr.Row)
	}
}

func TestValidate_CleanSeries(t *testing.T) {
	series := model.CandleSeries{validCandle(0), validCandle(1), validCandle(2)}
	if err := Validate(series); err != nil {
		t.Fatalf("clean series rejected: %v", err)
	}
}
