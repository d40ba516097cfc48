package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wattsync/wattsync/internal/appstate"
	"github.com/wattsync/wattsync/internal/metrics"
	"github.com/wattsync/wattsync/internal/source"
	"github.com/wattsync/wattsync/internal/timeseries"
)

// ErrNotRunning is returned by control operations before Start or after Stop.
var ErrNotRunning = fmt.Errorf("recorder is not running")

// Controller owns the engine state and wires the ingestion pipeline,
// heartbeat monitor, backfill engine and seeding together. One instance
// per process, constructed by the entry point and passed by handle to
// the control surface.
type Controller struct {
	cfg    Config
	src    source.Client
	ts     timeseries.Store
	app    appstate.Store
	logger *slog.Logger

	mu          sync.Mutex
	running     bool
	starting    bool
	lastEventAt time.Time
	tracked     map[string]struct{}
	lastErr     string
	quit        chan struct{}
	wg          sync.WaitGroup

	eventCount atomic.Uint64
	errorCount atomic.Uint64

	// backfillMu serializes backfill and seeding attempts across the
	// hourly timer, the heartbeat path and manual triggers. Concurrent
	// callers queue up and each run their own attempt, so a manual
	// trigger racing the hourly tick yields two serialized sync log
	// entries, never interleaved watermark reads.
	backfillMu sync.Mutex

	clock func() time.Time
}

func New(cfg Config, src source.Client, ts timeseries.Store, app appstate.Store, logger *slog.Logger) *Controller {
	_ = cfg.Validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:     cfg,
		src:     src,
		ts:      ts,
		app:     app,
		logger:  logger.With("component", "recorder"),
		tracked: make(map[string]struct{}),
		clock:   time.Now,
	}
}

// Start runs the startup sequence: schema and retention, tracked entity
// load, first-run seeding, subscription, then both timers. On failure
// the engine is left degraded but alive: not running, no timers, error
// surfaced via Snapshot. Startup is not retried automatically.
// Concurrent Start calls collapse into a single startup sequence.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running || c.starting {
		c.mu.Unlock()
		return nil
	}
	c.starting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	if err := c.startup(ctx); err != nil {
		c.mu.Lock()
		c.lastErr = err.Error()
		c.mu.Unlock()
		c.recordError("startup", err)
		return err
	}

	quit := make(chan struct{})
	c.mu.Lock()
	c.running = true
	c.lastErr = ""
	c.quit = quit
	c.mu.Unlock()

	c.wg.Add(2)
	go c.heartbeatLoop(quit)
	go c.backfillLoop(quit)
	c.logger.Info("recorder started",
		"tracked_entities", c.trackedCount(),
		"heartbeat_interval", c.cfg.HeartbeatInterval,
		"backfill_interval", c.cfg.BackfillInterval)
	return nil
}

func (c *Controller) startup(ctx context.Context) error {
	if err := c.ts.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure time-series schema: %w", err)
	}
	if err := c.app.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure app-state schema: %w", err)
	}
	if err := c.app.EnsureRetention(ctx, c.cfg.SyncLogRetention); err != nil {
		return fmt.Errorf("ensure sync log retention: %w", err)
	}

	ents, err := c.app.Entities(ctx, true)
	if err != nil {
		return fmt.Errorf("load tracked entities: %w", err)
	}
	c.mu.Lock()
	for _, e := range ents {
		c.tracked[e.EntityID] = struct{}{}
	}
	n := len(c.tracked)
	c.mu.Unlock()
	metrics.SetTrackedEntities(n)

	// First-run seeding failures are caught inside; startup continues
	// so the subscription still attaches.
	c.seedIfEmpty(ctx)

	if err := c.src.Subscribe(ctx, c.handleEvent); err != nil {
		return fmt.Errorf("subscribe to event stream: %w", err)
	}
	c.markSubscription(ctx, true)
	return nil
}

// Stop cancels both timers and marks the subscription inactive. It is
// idempotent and safe to call concurrently with an in-flight backfill
// or a live event.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	quit := c.quit
	c.quit = nil
	c.mu.Unlock()

	close(quit)
	c.wg.Wait()
	c.markSubscription(ctx, false)
	c.logger.Info("recorder stopped")
}

// Snapshot returns a read-only copy of the engine state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Running:    c.running,
		EventCount: c.eventCount.Load(),
		ErrorCount: c.errorCount.Load(),
		LastError:  c.lastErr,
	}
	if !c.lastEventAt.IsZero() {
		t := c.lastEventAt
		s.LastEventAt = &t
	}
	s.TrackedEntities = make([]string, 0, len(c.tracked))
	for id := range c.tracked {
		s.TrackedEntities = append(s.TrackedEntities, id)
	}
	sort.Strings(s.TrackedEntities)
	return s
}

// TriggerBackfill runs one manual backfill attempt, serialized with the
// timer-driven paths.
func (c *Controller) TriggerBackfill(ctx context.Context) error {
	if !c.isRunning() {
		return ErrNotRunning
	}
	return c.PerformBackfill(ctx, TriggerManual)
}

// Reseed re-runs entity discovery and the historical statistics load.
func (c *Controller) Reseed(ctx context.Context) error {
	if !c.isRunning() {
		return ErrNotRunning
	}
	c.backfillMu.Lock()
	defer c.backfillMu.Unlock()
	return c.seed(ctx)
}

func (c *Controller) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) trackedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracked)
}

// trackedIDs returns a sorted copy of the tracked set.
func (c *Controller) trackedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.tracked))
	for id := range c.tracked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// addTracked unions ids into the tracked set; entities are never
// removed by the engine itself.
func (c *Controller) addTracked(ids []string) {
	c.mu.Lock()
	for _, id := range ids {
		c.tracked[id] = struct{}{}
	}
	n := len(c.tracked)
	c.mu.Unlock()
	metrics.SetTrackedEntities(n)
}

// markSubscription updates the subscription singleton; failures are
// logged only, the row is observational.
func (c *Controller) markSubscription(ctx context.Context, active bool) {
	if err := c.app.SetSubscriptionActive(ctx, active); err != nil {
		c.logger.Warn("failed to update subscription state", "active", active, "error", err)
	}
}

func (c *Controller) recordError(op string, err error, args ...any) {
	c.errorCount.Add(1)
	metrics.IncError(op)
	c.logger.Error(op+" failed", append([]any{"error", err}, args...)...)
}
