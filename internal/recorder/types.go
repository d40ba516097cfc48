package recorder

import (
	"time"

	"github.com/wattsync/wattsync/internal/retry"
)

// Trigger labels why a backfill attempt ran. Semantics are identical
// across triggers; only the sync log label differs.
type Trigger string

const (
	TriggerHourly    Trigger = "hourly"
	TriggerHeartbeat Trigger = "heartbeat"
	TriggerManual    Trigger = "manual"
	TriggerSeeding   Trigger = "seeding"
)

// Engine defaults.
const (
	DefaultHeartbeatInterval  = 3 * time.Minute
	DefaultStalenessThreshold = 5 * time.Minute
	DefaultBackfillInterval   = time.Hour
	DefaultBackfillWindow     = 24 * time.Hour
	DefaultSeedingDays        = 30
)

// Config holds the engine knobs. Zero values are replaced by the
// defaults above in Validate.
type Config struct {
	HeartbeatInterval  time.Duration `toml:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	StalenessThreshold time.Duration `toml:"staleness_threshold" mapstructure:"staleness_threshold"`
	BackfillInterval   time.Duration `toml:"backfill_interval" mapstructure:"backfill_interval"`
	// BackfillWindow is the window start offset for entities without a
	// stored watermark.
	BackfillWindow   time.Duration `toml:"backfill_window" mapstructure:"backfill_window"`
	SeedingDays      int           `toml:"seeding_days" mapstructure:"seeding_days"`
	SyncLogRetention time.Duration `toml:"sync_log_retention" mapstructure:"sync_log_retention"`
	Retry            retry.Policy  `toml:"-" mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:  DefaultHeartbeatInterval,
		StalenessThreshold: DefaultStalenessThreshold,
		BackfillInterval:   DefaultBackfillInterval,
		BackfillWindow:     DefaultBackfillWindow,
		SeedingDays:        DefaultSeedingDays,
		Retry:              retry.DefaultPolicy(),
	}
}

func (c *Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.StalenessThreshold <= 0 {
		c.StalenessThreshold = DefaultStalenessThreshold
	}
	if c.BackfillInterval <= 0 {
		c.BackfillInterval = DefaultBackfillInterval
	}
	if c.BackfillWindow <= 0 {
		c.BackfillWindow = DefaultBackfillWindow
	}
	if c.SeedingDays <= 0 {
		c.SeedingDays = DefaultSeedingDays
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = retry.DefaultPolicy()
	}
	return nil
}

// Snapshot is a read-only copy of the engine state handed to external
// callers. The live state is never exposed by reference.
type Snapshot struct {
	Running         bool       `json:"running"`
	LastEventAt     *time.Time `json:"last_event_at"`
	TrackedEntities []string   `json:"tracked_entities"`
	EventCount      uint64     `json:"event_count"`
	ErrorCount      uint64     `json:"error_count"`
	LastError       string     `json:"last_error,omitempty"`
}
