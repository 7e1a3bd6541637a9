package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sig(tf, symbol, cfgName string, ts time.Time, st float64) model.Signal {
	return model.Signal{
		Timeframe:  tf,
		Symbol:     symbol,
		Config:     cfgName,
		TS:         ts,
		Close:      st + 2,
		HL2:        st + 1.5,
		Supertrend: st,
		Direction:  -1,
		FlatBase:   2,
		PctDiff:    1.5,
	}
}

func TestSaveAndLatestSignals(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 1, 6, 9, 15, 0, 0, time.UTC)

	var signals []model.Signal
	for i := 0; i < 3; i++ {
		signals = append(signals, sig("daily", "RELIANCE", "ST_daily_sma5", base.AddDate(0, 0, i), 100+float64(i)))
	}
	signals = append(signals, sig("daily", "TCS", "ST_daily_sma5", base, 200))
	if err := s.SaveSignals(signals); err != nil {
		t.Fatal(err)
	}

	latest, err := s.LatestSignals("daily", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 2 {
		t.Fatalf("latest = %d rows, want 2 (one per symbol)", len(latest))
	}
	if latest[0].Symbol != "RELIANCE" || latest[0].Supertrend != 102 {
		t.Errorf("latest RELIANCE = %+v, want the newest bar", latest[0])
	}
	if latest[0].TS.IsZero() {
		t.Error("timestamp not restored")
	}
}

func TestSaveSignals_ReplacesDuplicates(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2025, 1, 6, 9, 15, 0, 0, time.UTC)

	if err := s.SaveSignals([]model.Signal{sig("daily", "A", "c1", ts, 100)}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSignals([]model.Signal{sig("daily", "A", "c1", ts, 105)}); err != nil {
		t.Fatal(err)
	}

	latest, err := s.LatestSignals("daily", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || latest[0].Supertrend != 105 {
		t.Errorf("latest = %+v, want single replaced row", latest)
	}
}

func TestPruneSignals(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 1, 6, 9, 15, 0, 0, time.UTC)

	var signals []model.Signal
	for i := 0; i < 10; i++ {
		signals = append(signals, sig("125min", "A", "c1", base.Add(time.Duration(i)*time.Hour), 100+float64(i)))
	}
	if err := s.SaveSignals(signals); err != nil {
		t.Fatal(err)
	}
	if err := s.PruneSignals("125min", 3); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM signals WHERE timeframe = '125min'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("rows after prune = %d, want 3", count)
	}
	latest, err := s.LatestSignals("125min", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || latest[0].Supertrend != 109 {
		t.Errorf("latest after prune = %+v, want the newest bar kept", latest)
	}
}

func TestStateRoundTrip(t *testing.T) {
	s := newTestStore(t)

	in := map[model.StateKey]model.StateSnapshot{
		{Symbol: "RELIANCE", Config: "ST_daily_sma5"}: {
			PrevSupertrend: 101.5,
			PrevUpperBand:  105,
			PrevLowerBand:  98,
			PrevClose:      103,
			PrevHL2:        102.5,
			PrevDirection:  -1,
			PrevATR:        2.25,
			TRWindow:       []float64{2, 3, 2},
			HL2Window:      []float64{100, 101, 102},
			PrevFlatBase:   4,
		},
		{Symbol: "TCS", Config: "ST_daily_sma5"}: {
			PrevSupertrend: 200,
			PrevDirection:  1,
			PrevATR:        1.5,
		},
	}
	if err := s.SaveStates(in); err != nil {
		t.Fatal(err)
	}

	out, err := s.LoadStates()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("loaded %d states, want 2", len(out))
	}
	got := out[model.StateKey{Symbol: "RELIANCE", Config: "ST_daily_sma5"}]
	if got.PrevSupertrend != 101.5 || got.PrevDirection != -1 || got.PrevFlatBase != 4 {
		t.Errorf("restored state = %+v", got)
	}
	if len(got.TRWindow) != 3 || got.TRWindow[1] != 3 {
		t.Errorf("restored TR window = %v", got.TRWindow)
	}

	// Upsert replaces
	in[model.StateKey{Symbol: "TCS", Config: "ST_daily_sma5"}] = model.StateSnapshot{PrevSupertrend: 210, PrevDirection: -1, PrevATR: 2}
	if err := s.SaveStates(in); err != nil {
		t.Fatal(err)
	}
	out, err = s.LoadStates()
	if err != nil {
		t.Fatal(err)
	}
	if out[model.StateKey{Symbol: "TCS", Config: "ST_daily_sma5"}].PrevSupertrend != 210 {
		t.Error("upsert did not replace the TCS state")
	}
}

func TestLoadStates_SkipsCorruptRows(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveStates(map[model.StateKey]model.StateSnapshot{
		{Symbol: "A", Config: "c1"}: {PrevSupertrend: 100, PrevDirection: 1, PrevATR: 1},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DB().Exec(`INSERT INTO engine_state (symbol, config, data, updated_at) VALUES ('B', 'c1', 'not json', 0)`); err != nil {
		t.Fatal(err)
	}

	out, err := s.LoadStates()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Errorf("loaded %d states, want 1 (corrupt row skipped)", len(out))
	}
}

func TestRecordRun_PrunesHistory(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 15; i++ {
		if err := s.RecordRun("daily", 100, i%3, time.Duration(i)*time.Second); err != nil {
			t.Fatal(err)
		}
	}
	var count int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM batch_runs`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != runHistoryKeep {
		t.Errorf("run history = %d rows, want %d", count, runHistoryKeep)
	}
}

func TestFlatBaseCandidates(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 1, 6, 9, 15, 0, 0, time.UTC)

	long := sig("daily", "RELIANCE", "ST_daily_sma5", base.AddDate(0, 0, 1), 100)
	long.FlatBase = 5
	short := sig("daily", "TCS", "ST_daily_sma5", base.AddDate(0, 0, 1), 200)
	short.FlatBase = 1
	stale := sig("daily", "RELIANCE", "ST_daily_sma5", base, 99)
	stale.FlatBase = 8 // older bar, must not count

	if err := s.SaveSignals([]model.Signal{long, short, stale}); err != nil {
		t.Fatal(err)
	}

	hits, err := s.FlatBaseCandidates("daily", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("candidates = %d rows, want 1", len(hits))
	}
	if hits[0].Symbol != "RELIANCE" || hits[0].FlatBase != 5 {
		t.Errorf("candidate = %+v, want newest RELIANCE row", hits[0])
	}
}
