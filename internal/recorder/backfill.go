package recorder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wattsync/wattsync/internal/appstate"
	"github.com/wattsync/wattsync/internal/metrics"
	"github.com/wattsync/wattsync/internal/retry"
	"github.com/wattsync/wattsync/internal/timeseries"
)

// backfillLoop drives the scheduled hourly reconciliation.
func (c *Controller) backfillLoop(quit <-chan struct{}) {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.BackfillInterval)
	defer t.Stop()
	for {
		select {
		case <-quit:
			return
		case <-t.C:
			if err := c.PerformBackfill(context.Background(), TriggerHourly); err != nil {
				c.logger.Warn("scheduled backfill incomplete", "error", err)
			}
		}
	}
}

// PerformBackfill re-derives and writes all statistics produced since
// each tracked entity's own watermark, independent of the live path.
// Attempts from any trigger are serialized; a sync log entry is always
// appended, success or not.
func (c *Controller) PerformBackfill(ctx context.Context, trigger Trigger) error {
	c.backfillMu.Lock()
	defer c.backfillMu.Unlock()

	started := c.clock()
	entities := c.trackedIDs()
	now := started.UTC()

	var (
		stats      []timeseries.Statistic
		fetchErrs  []string
		earliest   time.Time
		haveWindow bool
	)
	for _, id := range entities {
		wm, ok, err := c.ts.LatestStatsTime(ctx, id, timeseries.PeriodHour)
		if err != nil {
			c.recordError("read_watermark", err, "entity_id", id, "trigger", string(trigger))
			fetchErrs = append(fetchErrs, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		start := now.Add(-c.cfg.BackfillWindow)
		if ok {
			start = wm
		}
		if !haveWindow || start.Before(earliest) {
			earliest = start
			haveWindow = true
		}

		buckets, err := c.src.Statistics(ctx, []string{id}, start, now, string(timeseries.PeriodHour))
		if err != nil {
			// One bad entity must not abort the batch.
			c.recordError("fetch_statistics", err, "entity_id", id, "trigger", string(trigger))
			fetchErrs = append(fetchErrs, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		for _, b := range buckets[id] {
			stats = append(stats, statisticFromBucket(id, timeseries.PeriodHour, b))
		}
	}

	entry := appstate.SyncLogEntry{
		EntityIDs: entities,
		Period:    string(timeseries.PeriodHour),
		Trigger:   string(trigger),
		EndTime:   &now,
	}
	if haveWindow {
		entry.StartTime = &earliest
	}

	writeErr := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
		return c.ts.WriteStats(ctx, stats)
	})
	switch {
	case writeErr != nil:
		c.recordError("write_statistics", writeErr, "trigger", string(trigger), "records", len(stats))
		entry.RecordsSynced = 0
		entry.Success = false
		entry.Error = writeErr.Error()
	case len(fetchErrs) > 0:
		entry.RecordsSynced = len(stats)
		entry.Success = false
		entry.Error = strings.Join(fetchErrs, "; ")
	default:
		entry.RecordsSynced = len(stats)
		entry.Success = true
	}
	entry.DurationMs = c.clock().Sub(started).Milliseconds()

	c.appendSyncLog(ctx, entry)

	outcome := "success"
	if !entry.Success {
		outcome = "failure"
		if entry.RecordsSynced > 0 {
			outcome = "partial"
		}
	}
	metrics.IncBackfillRun(string(trigger), outcome)
	metrics.ObserveBackfillDuration(string(trigger), float64(entry.DurationMs)/1000)
	metrics.AddRecordsSynced(string(trigger), entry.RecordsSynced)

	c.logger.Info("backfill finished",
		"trigger", string(trigger),
		"entities", len(entities),
		"records", entry.RecordsSynced,
		"success", entry.Success,
		"duration_ms", entry.DurationMs)

	if !entry.Success {
		return fmt.Errorf("backfill (%s): %s", trigger, entry.Error)
	}
	return nil
}

// appendSyncLog writes the audit record; a failing audit write is
// logged and otherwise swallowed, the attempt itself already happened.
func (c *Controller) appendSyncLog(ctx context.Context, entry appstate.SyncLogEntry) {
	if err := c.app.LogSync(ctx, entry); err != nil {
		c.recordError("log_sync", err, "trigger", entry.Trigger)
	}
}
