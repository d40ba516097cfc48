package factory

import (
	"errors"
	"strings"

	"github.com/wattsync/wattsync/internal/timeseries"
	ch "github.com/wattsync/wattsync/internal/timeseries/clickhouse"
	sq "github.com/wattsync/wattsync/internal/timeseries/sqlite"
)

// NewFromDSN selects a time-series store implementation based on DSN.
// Supported:
//   - clickhouse: "clickhouse://[user[:pass]@]host:port[/database]"
//   - sqlite:     "sqlite://<path>" or a bare filepath (treated as sqlite)
func NewFromDSN(dsn string) (timeseries.Store, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("empty DSN")
	}
	if strings.HasPrefix(strings.ToLower(d), "clickhouse://") {
		return ch.New(d)
	}
	if strings.HasPrefix(strings.ToLower(d), "sqlite://") {
		return sq.New(strings.TrimPrefix(d, "sqlite://"))
	}
	// default to sqlite path
	return sq.New(d)
}
