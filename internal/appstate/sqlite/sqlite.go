package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wattsync/wattsync/internal/appstate"
)

// DB implements appstate.Store for SQLite (modernc.org/sqlite driver,
// CGO-free). Use ":memory:" for in-memory.
// SQLite has no native TTL, so LogSync prunes entries older than the
// retention window after each insert.

type DB struct {
	db *sql.DB

	mu        sync.Mutex
	retention time.Duration
}

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
	return &DB{db: d, retention: appstate.DefaultSyncLogRetention}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entities(
			entity_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			unit TEXT NOT NULL DEFAULT '',
			device_class TEXT NOT NULL DEFAULT '',
			tracked BOOLEAN NOT NULL DEFAULT 1,
			event_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sync_log(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_ids TEXT NOT NULL,
			records_synced INTEGER NOT NULL,
			start_time TIMESTAMP NULL,
			end_time TIMESTAMP NULL,
			period TEXT NOT NULL,
			trigger_label TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			success BOOLEAN NOT NULL,
			error TEXT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_log_created ON sync_log(created_at);`,
		`CREATE TABLE IF NOT EXISTS subscription_state(
			id INTEGER PRIMARY KEY CHECK (id = 1),
			active BOOLEAN NOT NULL,
			subscribed_at TIMESTAMP NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) EnsureRetention(ctx context.Context, window time.Duration) error {
	if window <= 0 {
		window = appstate.DefaultSyncLogRetention
	}
	s.mu.Lock()
	s.retention = window
	s.mu.Unlock()
	// Prune anything already expired so a long-stopped daemon catches up.
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_log WHERE created_at < ?;`, time.Now().UTC().Add(-window))
	return err
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Entities(ctx context.Context, onlyTracked bool) ([]appstate.TrackedEntity, error) {
	q := `SELECT entity_id, name, unit, device_class, tracked, event_count, created_at, updated_at FROM entities`
	if onlyTracked {
		q += ` WHERE tracked=1`
	}
	q += ` ORDER BY entity_id;`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []appstate.TrackedEntity
	for rows.Next() {
		var e appstate.TrackedEntity
		if err := rows.Scan(&e.EntityID, &e.Name, &e.Unit, &e.DeviceClass, &e.Tracked, &e.EventCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *DB) UpsertEntity(ctx context.Context, e appstate.TrackedEntity) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities(entity_id, name, unit, device_class, tracked, event_count, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			name=excluded.name,
			unit=excluded.unit,
			device_class=excluded.device_class,
			tracked=excluded.tracked,
			updated_at=excluded.updated_at;`,
		e.EntityID, e.Name, e.Unit, e.DeviceClass, e.Tracked, now, now)
	return err
}

func (s *DB) IncrementEventCount(ctx context.Context, entityID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entities SET event_count=event_count+1, updated_at=? WHERE entity_id=?;`,
		time.Now().UTC(), entityID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *DB) LogSync(ctx context.Context, e appstate.SyncLogEntry) error {
	ids, err := json.Marshal(e.EntityIDs)
	if err != nil {
		ids = []byte("[]")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var errStr sql.NullString
	if e.Error != "" {
		errStr = sql.NullString{String: e.Error, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_log(entity_ids, records_synced, start_time, end_time, period, trigger_label, duration_ms, success, error, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		string(ids), e.RecordsSynced, nullableTime(e.StartTime), nullableTime(e.EndTime),
		e.Period, e.Trigger, e.DurationMs, e.Success, errStr, e.CreatedAt.UTC())
	if err != nil {
		return err
	}
	s.mu.Lock()
	window := s.retention
	s.mu.Unlock()
	_, _ = s.db.ExecContext(ctx, `DELETE FROM sync_log WHERE created_at < ?;`, time.Now().UTC().Add(-window))
	return nil
}

func (s *DB) RecentSyncs(ctx context.Context, limit int) ([]appstate.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_ids, records_synced, start_time, end_time, period, trigger_label, duration_ms, success, error, created_at
		FROM sync_log ORDER BY created_at DESC, id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []appstate.SyncLogEntry
	for rows.Next() {
		var e appstate.SyncLogEntry
		var ids string
		var start, end sql.NullTime
		var errStr sql.NullString
		if err := rows.Scan(&ids, &e.RecordsSynced, &start, &end, &e.Period, &e.Trigger, &e.DurationMs, &e.Success, &errStr, &e.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(ids), &e.EntityIDs)
		if start.Valid {
			t := start.Time.UTC()
			e.StartTime = &t
		}
		if end.Valid {
			t := end.Time.UTC()
			e.EndTime = &t
		}
		e.Error = errStr.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *DB) SetSubscriptionActive(ctx context.Context, active bool) error {
	now := time.Now().UTC()
	var subscribedAt any
	if active {
		subscribedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscription_state(id, active, subscribed_at, updated_at)
		VALUES(1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			active=excluded.active,
			subscribed_at=COALESCE(excluded.subscribed_at, subscription_state.subscribed_at),
			updated_at=excluded.updated_at;`,
		active, subscribedAt, now)
	return err
}

func (s *DB) SubscriptionState(ctx context.Context) (appstate.SubscriptionState, error) {
	var st appstate.SubscriptionState
	var sub sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT active, subscribed_at, updated_at FROM subscription_state WHERE id=1;`).
		Scan(&st.Active, &sub, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return appstate.SubscriptionState{}, nil
	}
	if err != nil {
		return appstate.SubscriptionState{}, err
	}
	if sub.Valid {
		t := sub.Time.UTC()
		st.SubscribedAt = &t
	}
	return st, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
