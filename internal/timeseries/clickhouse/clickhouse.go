package clickhouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/wattsync/wattsync/internal/timeseries"
)

// DB implements timeseries.Store on ClickHouse using the official Go client.
// Readings land in a MergeTree; statistics in a ReplacingMergeTree keyed
// by (entity_id, period, ts) so rewriting a bucket is a last-writer-wins
// upsert without engine-side read-modify-write.

type DB struct {
	conn driver.Conn
}

// New connects using a DSN of the form
// clickhouse://[user[:pass]@]host:port[/database].
func New(dsn string) (*DB, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse DSN: %w", err)
	}
	auth := clickhouse.Auth{Database: "default", Username: "default"}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		auth.Database = db
	}
	if u.User != nil {
		if name := u.User.Username(); name != "" {
			auth.Username = name
		}
		if pass, ok := u.User.Password(); ok {
			auth.Password = pass
		}
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{u.Host},
		Auth: auth,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping ClickHouse: %w", err)
	}
	return &DB{conn: conn}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			entity_id String,
			state Float64,
			previous_state Nullable(Float64),
			attributes String,
			ts DateTime64(9, 'UTC')
		) ENGINE = MergeTree ORDER BY (entity_id, ts)`,
		`CREATE TABLE IF NOT EXISTS statistics (
			entity_id String,
			period String,
			ts DateTime64(9, 'UTC'),
			state Nullable(Float64),
			sum Nullable(Float64),
			mean Nullable(Float64),
			min Nullable(Float64),
			max Nullable(Float64),
			updated_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(updated_at) ORDER BY (entity_id, period, ts)`,
	}
	for _, q := range stmts {
		if err := s.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *DB) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *DB) WriteReadings(ctx context.Context, readings []timeseries.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO readings (entity_id, state, previous_state, attributes, ts)`)
	if err != nil {
		return fmt.Errorf("prepare readings batch: %w", err)
	}
	for _, r := range readings {
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			attrs = []byte("{}")
		}
		if err := batch.Append(r.EntityID, r.State, r.PreviousState, string(attrs), time.Unix(0, r.Timestamp).UTC()); err != nil {
			return fmt.Errorf("append reading: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("write readings: %w", err)
	}
	return nil
}

func (s *DB) WriteStats(ctx context.Context, stats []timeseries.Statistic) error {
	if len(stats) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO statistics (entity_id, period, ts, state, sum, mean, min, max, updated_at)`)
	if err != nil {
		return fmt.Errorf("prepare statistics batch: %w", err)
	}
	now := time.Now().UTC()
	for _, st := range stats {
		if err := batch.Append(st.EntityID, string(st.Period), time.Unix(0, st.Timestamp).UTC(),
			st.State, st.Sum, st.Mean, st.Min, st.Max, now); err != nil {
			return fmt.Errorf("append statistic: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("write statistics: %w", err)
	}
	return nil
}

func (s *DB) LatestStatsTime(ctx context.Context, entityID string, period timeseries.Period) (time.Time, bool, error) {
	var ts time.Time
	err := s.conn.QueryRow(ctx,
		`SELECT ts FROM statistics WHERE entity_id = ? AND period = ? ORDER BY ts DESC LIMIT 1`,
		entityID, string(period)).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest stats time: %w", err)
	}
	return ts.UTC(), true, nil
}

func (s *DB) HasStats(ctx context.Context) (bool, error) {
	var n uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM statistics`).Scan(&n); err != nil {
		return false, fmt.Errorf("count statistics: %w", err)
	}
	return n > 0, nil
}
