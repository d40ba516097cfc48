package client

import "time"

// Status is the engine snapshot returned by the daemon.
type Status struct {
	Running         bool               `json:"running"`
	LastEventAt     *time.Time         `json:"last_event_at"`
	TrackedEntities []string           `json:"tracked_entities"`
	EventCount      uint64             `json:"event_count"`
	ErrorCount      uint64             `json:"error_count"`
	LastError       string             `json:"last_error,omitempty"`
	Subscription    SubscriptionStatus `json:"subscription"`
}

// SubscriptionStatus reflects the daemon's live event subscription.
type SubscriptionStatus struct {
	Active       bool       `json:"active"`
	SubscribedAt *time.Time `json:"subscribed_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SyncEntry is one record of the daemon's sync audit log.
type SyncEntry struct {
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

// ErrorResponse is the daemon's JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
