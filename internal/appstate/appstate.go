package appstate

import (
	"context"
	"time"
)

// DefaultSyncLogRetention is how long sync log entries are kept.
// Retention is enforced by the store, never by the engine.
const DefaultSyncLogRetention = 7 * 24 * time.Hour

// TrackedEntity is an entity included in ingestion and backfill scope.
// EventCount is a weakly consistent per-entity counter updated on a
// best-effort path; it may undercount under failure.
type TrackedEntity struct {
	EntityID    string    `json:"entity_id"`
	Name        string    `json:"name"`
	Unit        string    `json:"unit"`
	DeviceClass string    `json:"device_class"`
	Tracked     bool      `json:"tracked"`
	EventCount  int64     `json:"event_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SyncLogEntry is the append-only audit record of one backfill or
// seeding attempt. Never mutated; expired by the store's retention.
type SyncLogEntry struct {
	EntityIDs     []string   `json:"entity_ids"`
	RecordsSynced int        `json:"records_synced"`
	StartTime     *time.Time `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	Period        string     `json:"period"`
	Trigger       string     `json:"trigger"`
	DurationMs    int64      `json:"duration_ms"`
	Success       bool       `json:"success"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// SubscriptionState is the singleton record reflecting whether the live
// subscription is currently attached.
type SubscriptionState struct {
	Active       bool       `json:"active"`
	SubscribedAt *time.Time `json:"subscribed_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Store is the application-state persistence boundary: tracked
// entities, the sync audit log, and the subscription singleton.
// Implementations must be safe for concurrent use.
type Store interface {
	EnsureSchema(ctx context.Context) error
	// EnsureRetention installs the sync-log expiry policy. A
	// non-positive window falls back to DefaultSyncLogRetention.
	EnsureRetention(ctx context.Context, window time.Duration) error
	Entities(ctx context.Context, onlyTracked bool) ([]TrackedEntity, error)
	UpsertEntity(ctx context.Context, e TrackedEntity) error
	// IncrementEventCount bumps the per-entity counter; false when the
	// entity is unknown.
	IncrementEventCount(ctx context.Context, entityID string) (bool, error)
	LogSync(ctx context.Context, e SyncLogEntry) error
	RecentSyncs(ctx context.Context, limit int) ([]SyncLogEntry, error)
	SetSubscriptionActive(ctx context.Context, active bool) error
	SubscriptionState(ctx context.Context) (SubscriptionState, error)
	Close() error
}
