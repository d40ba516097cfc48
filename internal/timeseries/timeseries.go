package timeseries

import (
	"context"
	"time"
)

// Period is the aggregation bucket width of a statistic.
type Period string

const (
	PeriodHour Period = "hour"
	PeriodDay  Period = "day"
)

// Reading is one raw observation of one entity at one instant.
// Immutable once constructed; written once, never updated.
// Timestamp is integer nanoseconds since epoch.
type Reading struct {
	EntityID      string         `json:"entity_id"`
	State         float64        `json:"state"`
	PreviousState *float64       `json:"previous_state"`
	Attributes    map[string]any `json:"attributes"`
	Timestamp     int64          `json:"timestamp"`
}

// Statistic is one aggregation bucket for one entity.
// Timestamp is the bucket start in nanoseconds since epoch.
// Statistics are upserted by (entity, period, timestamp); the store
// honors last-writer-wins so re-derived buckets replace stale ones.
type Statistic struct {
	EntityID  string   `json:"entity_id"`
	Period    Period   `json:"period"`
	State     *float64 `json:"state"`
	Sum       *float64 `json:"sum"`
	Mean      *float64 `json:"mean"`
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	Timestamp int64    `json:"timestamp"`
}

// Store is the time-series persistence boundary of the recorder.
// Implementations must be safe for concurrent use.
type Store interface {
	EnsureSchema(ctx context.Context) error
	WriteReadings(ctx context.Context, readings []Reading) error
	WriteStats(ctx context.Context, stats []Statistic) error
	// LatestStatsTime returns the newest stored bucket start for the
	// entity and period; ok=false when no statistic exists yet.
	LatestStatsTime(ctx context.Context, entityID string, period Period) (t time.Time, ok bool, err error)
	// HasStats is a cheap existence probe used to decide first-run seeding.
	HasStats(ctx context.Context) (bool, error)
	Close() error
}
