package source

import (
	"context"
	"time"
)

// State is one observed state of an entity as reported by the hub.
// Value is the raw state payload; numeric parsing is the consumer's job
// because the hub also reports sentinels like "unknown".
type State struct {
	Value       string         `json:"state"`
	Unit        string         `json:"unit"`
	DeviceClass string         `json:"device_class"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
}

// StateChange is a single state_changed notification from the live stream.
// Either state pointer may be nil (entity appearing or disappearing).
type StateChange struct {
	EntityID string `json:"entity_id"`
	NewState *State `json:"new_state"`
	OldState *State `json:"old_state"`
}

// Entity is a discovered upstream entity.
type Entity struct {
	EntityID    string         `json:"entity_id"`
	Name        string         `json:"name"`
	Unit        string         `json:"unit"`
	DeviceClass string         `json:"device_class"`
	Attributes  map[string]any `json:"attributes"`
}

// StatBucket is one aggregation bucket from the hub statistics API.
// Aggregate fields are pointers: the hub omits the ones it did not compute.
type StatBucket struct {
	Start time.Time `json:"start"`
	State *float64  `json:"state"`
	Sum   *float64  `json:"sum"`
	Mean  *float64  `json:"mean"`
	Min   *float64  `json:"min"`
	Max   *float64  `json:"max"`
}

// Handler consumes live state changes. It is invoked from the client's
// read loop, one event at a time.
type Handler func(StateChange)

// Client is the upstream hub: live event subscription plus REST lookups.
// Implementations must be safe for concurrent use.
type Client interface {
	// DiscoverEntities lists all entities currently known to the hub.
	DiscoverEntities(ctx context.Context) ([]Entity, error)
	// Statistics returns aggregation buckets per entity over [start, end].
	Statistics(ctx context.Context, entityIDs []string, start, end time.Time, period string) (map[string][]StatBucket, error)
	// Subscribe attaches h to the live state_changed stream.
	Subscribe(ctx context.Context, h Handler) error
	// Reconnect tears down the live connection and re-establishes it,
	// re-attaching the handler from the previous Subscribe.
	Reconnect(ctx context.Context) error
	Close() error
}
