package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/wattsync/wattsync/internal/appstate"
	"github.com/wattsync/wattsync/internal/metrics"
	"github.com/wattsync/wattsync/internal/retry"
	"github.com/wattsync/wattsync/internal/timeseries"
)

// seedIfEmpty runs the historical load only when the statistics table
// has never been written. Seeding failures never abort startup; the
// live subscription is worth more than a complete history.
func (c *Controller) seedIfEmpty(ctx context.Context) {
	populated, err := c.ts.HasStats(ctx)
	if err != nil {
		c.recordError("seed_probe", err)
		return
	}
	if populated {
		return
	}
	c.logger.Info("statistics store is empty, seeding", "days", c.cfg.SeedingDays)
	if err := c.seed(ctx); err != nil {
		c.recordError("seed", err)
	}
}

// seed discovers the hub's energy entities, registers them as tracked,
// and loads their hourly statistics over the configured seeding window
// in one pass. Every attempt leaves a sync log entry.
func (c *Controller) seed(ctx context.Context) error {
	started := c.clock()
	now := started.UTC()
	windowStart := now.Add(-time.Duration(c.cfg.SeedingDays) * 24 * time.Hour)

	discovered, err := c.src.DiscoverEntities(ctx)
	if err != nil {
		c.logSeedFailure(ctx, nil, windowStart, now, started, err)
		return fmt.Errorf("discover entities: %w", err)
	}

	var ids []string
	for _, e := range discovered {
		if !isEnergyEntity(e.DeviceClass, e.Unit) {
			continue
		}
		if err := c.app.UpsertEntity(ctx, appstate.TrackedEntity{
			EntityID:    e.EntityID,
			Name:        e.Name,
			Unit:        e.Unit,
			DeviceClass: e.DeviceClass,
			Tracked:     true,
		}); err != nil {
			c.recordError("register_entity", err, "entity_id", e.EntityID)
			continue
		}
		ids = append(ids, e.EntityID)
	}
	c.addTracked(ids)
	// Load history for the whole tracked set, not just this pass's
	// discoveries: entities tracked before a reseed keep their window.
	tracked := c.trackedIDs()
	c.logger.Info("entity discovery complete", "discovered", len(discovered), "tracked", len(tracked))
	if len(tracked) == 0 {
		c.appendSyncLog(ctx, appstate.SyncLogEntry{
			Period:     string(timeseries.PeriodHour),
			Trigger:    string(TriggerSeeding),
			StartTime:  &windowStart,
			EndTime:    &now,
			DurationMs: c.clock().Sub(started).Milliseconds(),
			Success:    true,
		})
		return nil
	}

	buckets, err := c.src.Statistics(ctx, tracked, windowStart, now, string(timeseries.PeriodHour))
	if err != nil {
		c.logSeedFailure(ctx, tracked, windowStart, now, started, err)
		return fmt.Errorf("fetch seed statistics: %w", err)
	}
	var stats []timeseries.Statistic
	for id, bs := range buckets {
		for _, b := range bs {
			stats = append(stats, statisticFromBucket(id, timeseries.PeriodHour, b))
		}
	}

	err = retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
		return c.ts.WriteStats(ctx, stats)
	})
	if err != nil {
		c.logSeedFailure(ctx, tracked, windowStart, now, started, err)
		return fmt.Errorf("write seed statistics: %w", err)
	}

	durationMs := c.clock().Sub(started).Milliseconds()
	c.appendSyncLog(ctx, appstate.SyncLogEntry{
		EntityIDs:     tracked,
		RecordsSynced: len(stats),
		StartTime:     &windowStart,
		EndTime:       &now,
		Period:        string(timeseries.PeriodHour),
		Trigger:       string(TriggerSeeding),
		DurationMs:    durationMs,
		Success:       true,
	})
	metrics.IncBackfillRun(string(TriggerSeeding), "success")
	metrics.AddRecordsSynced(string(TriggerSeeding), len(stats))
	c.logger.Info("seeding complete", "entities", len(tracked), "records", len(stats), "duration_ms", durationMs)
	return nil
}

func (c *Controller) logSeedFailure(ctx context.Context, ids []string, start, end time.Time, began time.Time, cause error) {
	c.appendSyncLog(ctx, appstate.SyncLogEntry{
		EntityIDs:  ids,
		StartTime:  &start,
		EndTime:    &end,
		Period:     string(timeseries.PeriodHour),
		Trigger:    string(TriggerSeeding),
		DurationMs: c.clock().Sub(began).Milliseconds(),
		Success:    false,
		Error:      cause.Error(),
	})
	metrics.IncBackfillRun(string(TriggerSeeding), "failure")
}
