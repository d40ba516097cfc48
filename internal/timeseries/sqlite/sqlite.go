package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wattsync/wattsync/internal/timeseries"
)

// DB implements timeseries.Store for SQLite (modernc.org/sqlite driver,
// CGO-free). Suited to single-node deployments and tests; production
// setups typically point the DSN at ClickHouse instead.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path. Use ":memory:" for in-memory.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS readings(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_id TEXT NOT NULL,
			state REAL NOT NULL,
			previous_state REAL NULL,
			attributes TEXT NOT NULL,
			ts INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_readings_entity_ts ON readings(entity_id, ts);`,
		`CREATE TABLE IF NOT EXISTS statistics(
			entity_id TEXT NOT NULL,
			period TEXT NOT NULL,
			ts INTEGER NOT NULL,
			state REAL NULL,
			sum REAL NULL,
			mean REAL NULL,
			min REAL NULL,
			max REAL NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY(entity_id, period, ts)
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) WriteReadings(ctx context.Context, readings []timeseries.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings(entity_id, state, previous_state, attributes, ts)
		VALUES(?, ?, ?, ?, ?);`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, r := range readings {
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			attrs = []byte("{}")
		}
		var prev sql.NullFloat64
		if r.PreviousState != nil {
			prev = sql.NullFloat64{Float64: *r.PreviousState, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.EntityID, r.State, prev, string(attrs), r.Timestamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *DB) WriteStats(ctx context.Context, stats []timeseries.Statistic) error {
	if len(stats) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO statistics(entity_id, period, ts, state, sum, mean, min, max, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, period, ts) DO UPDATE SET
			state=excluded.state,
			sum=excluded.sum,
			mean=excluded.mean,
			min=excluded.min,
			max=excluded.max,
			updated_at=excluded.updated_at;`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	now := time.Now().UTC()
	for _, st := range stats {
		if _, err := stmt.ExecContext(ctx, st.EntityID, string(st.Period), st.Timestamp,
			nullable(st.State), nullable(st.Sum), nullable(st.Mean), nullable(st.Min), nullable(st.Max), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *DB) LatestStatsTime(ctx context.Context, entityID string, period timeseries.Period) (time.Time, bool, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM statistics WHERE entity_id=? AND period=?;`,
		entityID, string(period)).Scan(&ts)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(0, ts.Int64).UTC(), true, nil
}

func (s *DB) HasStats(ctx context.Context) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM statistics LIMIT 1;`).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
