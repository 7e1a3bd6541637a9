package notification

import (
	"strings"
	"testing"
	"time"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

func sig(symbol, config string, ts time.Time, flatBase int) model.Signal {
	return model.Signal{
		Timeframe:  "daily",
		Symbol:     symbol,
		Config:     config,
		TS:         ts,
		Supertrend: 100,
		FlatBase:   flatBase,
	}
}

func TestBuildFlatBaseAlert(t *testing.T) {
	base := time.Date(2026, 1, 7, 15, 30, 0, 0, time.UTC)
	signals := []model.Signal{
		sig("RELIANCE", "ST_daily_sma5", base, 5),
		sig("TCS", "ST_daily_sma5", base, 3),
		sig("INFY", "ST_daily_sma5", base, 2), // below threshold
	}

	alert, ok := BuildFlatBaseAlert("daily", signals, 3)
	if !ok {
		t.Fatal("expected an alert")
	}
	if alert.Level != AlertInfo {
		t.Errorf("level = %s", alert.Level)
	}
	if !strings.Contains(alert.Title, "daily") || !strings.Contains(alert.Title, "2 candidates") {
		t.Errorf("title = %q", alert.Title)
	}
	lines := strings.Split(alert.Message, "\n")
	if len(lines) != 2 {
		t.Fatalf("message has %d lines: %q", len(lines), alert.Message)
	}
	// Longest run first.
	if !strings.HasPrefix(lines[0], "RELIANCE") || !strings.HasPrefix(lines[1], "TCS") {
		t.Errorf("ordering wrong: %q", alert.Message)
	}
	if strings.Contains(alert.Message, "INFY") {
		t.Errorf("below-threshold symbol leaked into %q", alert.Message)
	}
}

func TestBuildFlatBaseAlert_OnlyNewestRowCounts(t *testing.T) {
	base := time.Date(2026, 1, 7, 15, 30, 0, 0, time.UTC)
	signals := []model.Signal{
		sig("RELIANCE", "ST_daily_sma5", base.Add(-24*time.Hour), 4), // stale row qualifies
		sig("RELIANCE", "ST_daily_sma5", base, 1),                    // newest row does not
	}

	if _, ok := BuildFlatBaseAlert("daily", signals, 3); ok {
		t.Error("stale row should not trigger an alert")
	}
}

func TestBuildFlatBaseAlert_Empty(t *testing.T) {
	if _, ok := BuildFlatBaseAlert("daily", nil, 3); ok {
		t.Error("no signals should produce no alert")
	}
	if _, ok := BuildFlatBaseAlert("daily", []model.Signal{sig("X", "c", time.Now(), 9)}, 0); ok {
		t.Error("minCount 0 disables alerting")
	}
}
