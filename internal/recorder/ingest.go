package recorder

import (
	"context"

	"github.com/wattsync/wattsync/internal/metrics"
	"github.com/wattsync/wattsync/internal/retry"
	"github.com/wattsync/wattsync/internal/source"
	"github.com/wattsync/wattsync/internal/timeseries"
)

// handleEvent is the live-path consumer, invoked by the subscription
// read loop one event at a time. Exactly one durable write per accepted
// event; failures are absorbed here and never propagate into the
// subscription transport.
func (c *Controller) handleEvent(sc source.StateChange) {
	ctx := context.Background()
	reading, discard := readingFromChange(sc)
	if discard != "" {
		metrics.IncEventDiscarded(discard)
		c.logger.Debug("event discarded", "entity_id", sc.EntityID, "reason", discard)
		return
	}

	err := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
		return c.ts.WriteReadings(ctx, []timeseries.Reading{reading})
	})
	if err != nil {
		c.recordError("write_reading", err, "entity_id", reading.EntityID)
		return
	}

	c.mu.Lock()
	c.lastEventAt = c.clock()
	c.mu.Unlock()
	c.eventCount.Add(1)
	metrics.IncEventIngested()

	// Best-effort per-entity counter. Intentionally weakly consistent:
	// the ingestion path never waits on it, so counters may undercount
	// under failure.
	go func(entityID string) {
		if _, err := c.app.IncrementEventCount(context.Background(), entityID); err != nil {
			c.logger.Debug("event count update failed", "entity_id", entityID, "error", err)
		}
	}(reading.EntityID)
}
