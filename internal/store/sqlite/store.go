// Package sqlite persists signal rows and continuation state. One writer,
// WAL mode, batched transactions.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mhdSharuk/upstox-swing/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const runHistoryKeep = 10

// Store is a single-writer SQLite store for signals, continuation state, and
// batch run history.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens (or creates) the database at dbPath with WAL mode and the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer discipline
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", dbPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			timeframe  TEXT    NOT NULL,
			symbol     TEXT    NOT NULL,
			config     TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			close      REAL    NOT NULL,
			hl2        REAL    NOT NULL,
			supertrend REAL    NOT NULL,
			direction  INTEGER NOT NULL,
			flat_base  INTEGER NOT NULL,
			pct_diff   REAL,
			PRIMARY KEY (timeframe, symbol, config, ts)
		);

		CREATE TABLE IF NOT EXISTS engine_state (
			symbol     TEXT    NOT NULL,
			config     TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, config)
		);

		CREATE TABLE IF NOT EXISTS batch_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timeframe   TEXT    NOT NULL,
			symbols     INTEGER NOT NULL,
			failed      INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at  INTEGER NOT NULL
		);
	`)
	return err
}

// SaveSignals writes all rows in one transaction, replacing rows with the
// same (timeframe, symbol, config, ts).
func (s *Store) SaveSignals(signals []model.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO signals (timeframe, symbol, config, ts, close, hl2, supertrend, direction, flat_base, pct_diff)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	start := time.Now()
	for _, sig := range signals {
		_, err := stmt.Exec(sig.Timeframe, sig.Symbol, sig.Config, sig.TS.Unix(),
			sig.Close, sig.HL2, sig.Supertrend, sig.Direction, sig.FlatBase, sig.PctDiff)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Printf("[sqlite] committed %d signal rows in %v", len(signals), time.Since(start))
	return nil
}

// PruneSignals keeps only the newest keep rows per (symbol, config) within a
// timeframe.
func (s *Store) PruneSignals(timeframe string, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.Exec(`
		DELETE FROM signals
		WHERE timeframe = ?
		  AND ts NOT IN (
			SELECT keepers.ts FROM signals AS keepers
			WHERE keepers.timeframe = signals.timeframe
			  AND keepers.symbol = signals.symbol
			  AND keepers.config = signals.config
			ORDER BY keepers.ts DESC
			LIMIT ?
		  )
	`, timeframe, keep)
	if err != nil {
		return fmt.Errorf("sqlite prune signals: %w", err)
	}
	return nil
}

// LatestSignals returns the newest signal row per (symbol, config) for a
// timeframe, ordered by symbol. limit <= 0 means no limit.
func (s *Store) LatestSignals(timeframe string, limit int) ([]model.Signal, error) {
	query := `
		SELECT timeframe, symbol, config, ts, close, hl2, supertrend, direction, flat_base, pct_diff
		FROM signals
		WHERE timeframe = ?
		  AND ts = (
			SELECT MAX(newest.ts) FROM signals AS newest
			WHERE newest.timeframe = signals.timeframe
			  AND newest.symbol = signals.symbol
			  AND newest.config = signals.config
		  )
		ORDER BY symbol, config`
	args := []any{timeframe}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var sig model.Signal
		var tsUnix int64
		var pct sql.NullFloat64
		if err := rows.Scan(&sig.Timeframe, &sig.Symbol, &sig.Config, &tsUnix,
			&sig.Close, &sig.HL2, &sig.Supertrend, &sig.Direction, &sig.FlatBase, &pct); err != nil {
			return nil, fmt.Errorf("sqlite scan signal: %w", err)
		}
		sig.TS = time.Unix(tsUnix, 0).UTC()
		if pct.Valid {
			sig.PctDiff = pct.Float64
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// FlatBaseCandidates returns the newest signal row per (symbol, config) whose
// flat-base run length has reached minCount, longest runs first.
func (s *Store) FlatBaseCandidates(timeframe string, minCount int) ([]model.Signal, error) {
	rows, err := s.db.Query(`
		SELECT timeframe, symbol, config, ts, close, hl2, supertrend, direction, flat_base, pct_diff
		FROM signals
		WHERE timeframe = ?
		  AND flat_base >= ?
		  AND ts = (
			SELECT MAX(newest.ts) FROM signals AS newest
			WHERE newest.timeframe = signals.timeframe
			  AND newest.symbol = signals.symbol
			  AND newest.config = signals.config
		  )
		ORDER BY flat_base DESC, symbol, config`, timeframe, minCount)
	if err != nil {
		return nil, fmt.Errorf("sqlite query flat base: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var sig model.Signal
		var tsUnix int64
		var pct sql.NullFloat64
		if err := rows.Scan(&sig.Timeframe, &sig.Symbol, &sig.Config, &tsUnix,
			&sig.Close, &sig.HL2, &sig.Supertrend, &sig.Direction, &sig.FlatBase, &pct); err != nil {
			return nil, fmt.Errorf("sqlite scan flat base: %w", err)
		}
		sig.TS = time.Unix(tsUnix, 0).UTC()
		if pct.Valid {
			sig.PctDiff = pct.Float64
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// SaveStates upserts continuation snapshots keyed by (symbol, config) in one
// transaction.
func (s *Store) SaveStates(states map[model.StateKey]model.StateSnapshot) error {
	if len(states) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO engine_state (symbol, config, data, updated_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for key, snap := range states {
		data, err := json.Marshal(snap)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal state %s/%s: %w", key.Symbol, key.Config, err)
		}
		if _, err := stmt.Exec(key.Symbol, key.Config, string(data), now); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Printf("[sqlite] committed %d state snapshots", len(states))
	return nil
}

// LoadStates reads all continuation snapshots. Corrupt rows are skipped with
// a warning so one bad entry cannot block a batch.
func (s *Store) LoadStates() (map[model.StateKey]model.StateSnapshot, error) {
	rows, err := s.db.Query(`SELECT symbol, config, data FROM engine_state`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query state: %w", err)
	}
	defer rows.Close()

	out := make(map[model.StateKey]model.StateSnapshot)
	for rows.Next() {
		var symbol, cfgName, data string
		if err := rows.Scan(&symbol, &cfgName, &data); err != nil {
			return nil, fmt.Errorf("sqlite scan state: %w", err)
		}
		var snap model.StateSnapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			log.Printf("[sqlite] skipping corrupt state for %s/%s: %v", symbol, cfgName, err)
			continue
		}
		out[model.StateKey{Symbol: symbol, Config: cfgName}] = snap
	}
	return out, rows.Err()
}

// RecordRun appends one batch run to the history and prunes old entries.
func (s *Store) RecordRun(timeframe string, symbols, failed int, duration time.Duration) error {
	_, err := s.db.Exec(`
		INSERT INTO batch_runs (timeframe, symbols, failed, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, timeframe, symbols, failed, duration.Milliseconds(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite record run: %w", err)
	}

	_, err = s.db.Exec(`DELETE FROM batch_runs WHERE id NOT IN (SELECT id FROM batch_runs ORDER BY created_at DESC, id DESC LIMIT ?)`, runHistoryKeep)
	if err != nil {
		log.Printf("[sqlite] prune runs warning: %v", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
