package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/wattsync/wattsync/internal/appstate"
)

// DB implements appstate.Store on PostgreSQL via the pgx stdlib driver.
// Postgres has no TTL either; the retention policy is applied the same
// way as the SQLite backend, pruning on insert.

type DB struct {
	db *sql.DB

	mu        sync.Mutex
	retention time.Duration
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d, retention: appstate.DefaultSyncLogRetention}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entities(
			entity_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			unit TEXT NOT NULL DEFAULT '',
			device_class TEXT NOT NULL DEFAULT '',
			tracked BOOLEAN NOT NULL DEFAULT TRUE,
			event_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sync_log(
			id BIGSERIAL PRIMARY KEY,
			entity_ids TEXT NOT NULL,
			records_synced INTEGER NOT NULL,
			start_time TIMESTAMPTZ NULL,
			end_time TIMESTAMPTZ NULL,
			period TEXT NOT NULL,
			trigger_label TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			success BOOLEAN NOT NULL,
			error TEXT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_log_created ON sync_log(created_at);`,
		`CREATE TABLE IF NOT EXISTS subscription_state(
			id INTEGER PRIMARY KEY CHECK (id = 1),
			active BOOLEAN NOT NULL,
			subscribed_at TIMESTAMPTZ NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) EnsureRetention(ctx context.Context, window time.Duration) error {
	if window <= 0 {
		window = appstate.DefaultSyncLogRetention
	}
	p.mu.Lock()
	p.retention = window
	p.mu.Unlock()
	_, err := p.db.ExecContext(ctx, `DELETE FROM sync_log WHERE created_at < $1;`, time.Now().UTC().Add(-window))
	return err
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Entities(ctx context.Context, onlyTracked bool) ([]appstate.TrackedEntity, error) {
	q := `SELECT entity_id, name, unit, device_class, tracked, event_count, created_at, updated_at FROM entities`
	if onlyTracked {
		q += ` WHERE tracked`
	}
	q += ` ORDER BY entity_id;`
	rows, err := p.db.QueryContext(ctx, q)
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

func (p *DB) UpsertEntity(ctx context.Context, e appstate.TrackedEntity) error {
	now := time.Now().UTC()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO entities(entity_id, name, unit, device_class, tracked, event_count, created_at, updated_at)
		VALUES($1, $2, $3, $4, $5, 0, $6, $6)
		ON CONFLICT(entity_id) DO UPDATE SET
			name=excluded.name,
			unit=excluded.unit,
			device_class=excluded.device_class,
			tracked=excluded.tracked,
			updated_at=excluded.updated_at;`,
		e.EntityID, e.Name, e.Unit, e.DeviceClass, e.Tracked, now)
	return err
}

func (p *DB) IncrementEventCount(ctx context.Context, entityID string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE entities SET event_count=event_count+1, updated_at=$1 WHERE entity_id=$2;`,
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

func (p *DB) LogSync(ctx context.Context, e appstate.SyncLogEntry) error {
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
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO sync_log(entity_ids, records_synced, start_time, end_time, period, trigger_label, duration_ms, success, error, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`,
		string(ids), e.RecordsSynced, nullableTime(e.StartTime), nullableTime(e.EndTime),
		e.Period, e.Trigger, e.DurationMs, e.Success, errStr, e.CreatedAt.UTC())
	if err != nil {
		return err
	}
	p.mu.Lock()
	window := p.retention
	p.mu.Unlock()
	_, _ = p.db.ExecContext(ctx, `DELETE FROM sync_log WHERE created_at < $1;`, time.Now().UTC().Add(-window))
	return nil
}

func (p *DB) RecentSyncs(ctx context.Context, limit int) ([]appstate.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT entity_ids, records_synced, start_time, end_time, period, trigger_label, duration_ms, success, error, created_at
		FROM sync_log ORDER BY created_at DESC, id DESC LIMIT $1;`, limit)
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

func (p *DB) SetSubscriptionActive(ctx context.Context, active bool) error {
	now := time.Now().UTC()
	var subscribedAt sql.NullTime
	if active {
		subscribedAt = sql.NullTime{Time: now, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscription_state(id, active, subscribed_at, updated_at)
		VALUES(1, $1, $2, $3)
		ON CONFLICT(id) DO UPDATE SET
			active=excluded.active,
			subscribed_at=COALESCE(excluded.subscribed_at, subscription_state.subscribed_at),
			updated_at=excluded.updated_at;`,
		active, subscribedAt, now)
	return err
}

func (p *DB) SubscriptionState(ctx context.Context) (appstate.SubscriptionState, error) {
	var st appstate.SubscriptionState
	var sub sql.NullTime
	err := p.db.QueryRowContext(ctx,
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
