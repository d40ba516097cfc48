package factory

import (
	"errors"
	"strings"

	"github.com/wattsync/wattsync/internal/appstate"
	pg "github.com/wattsync/wattsync/internal/appstate/postgres"
	sq "github.com/wattsync/wattsync/internal/appstate/sqlite"
)

// NewFromDSN selects an app-state store implementation based on DSN.
// Supported:
//   - postgres: DSN starting with "postgres://" or "postgresql://"
//   - sqlite:   "sqlite://<path>" or a bare filepath (treated as sqlite)
func NewFromDSN(dsn string) (appstate.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return pg.New(d)
	}
	if strings.HasPrefix(ld, "sqlite://") {
		return sq.New(strings.TrimPrefix(d, "sqlite://"))
	}
	// default to sqlite path
	return sq.New(d)
}
