package recorder

import (
	"context"
	"time"

	"github.com/wattsync/wattsync/internal/metrics"
)

// heartbeatLoop watches stream liveness on a fixed period. The ticker
// never stops on a caught error; a failed recovery is retried on the
// next tick.
func (c *Controller) heartbeatLoop(quit <-chan struct{}) {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-quit:
			return
		case <-t.C:
			c.checkHeartbeat(context.Background())
		}
	}
}

// checkHeartbeat recovers the stream when it has gone silent: reconnect
// and resubscribe, then backfill whatever was missed while deaf.
// Idle time is treated as infinite until the first event arrives.
func (c *Controller) checkHeartbeat(ctx context.Context) {
	c.mu.Lock()
	last := c.lastEventAt
	c.mu.Unlock()

	now := c.clock()
	stale := last.IsZero() || now.Sub(last) > c.cfg.StalenessThreshold
	if !stale {
		return
	}

	if last.IsZero() {
		c.logger.Warn("event stream stale, recovering", "idle", "never")
	} else {
		c.logger.Warn("event stream stale, recovering", "idle", now.Sub(last).String())
	}
	metrics.IncHeartbeatRecovery()

	if err := c.src.Reconnect(ctx); err != nil {
		c.recordError("reconnect", err)
		return
	}
	c.markSubscription(ctx, true)

	if err := c.PerformBackfill(ctx, TriggerHeartbeat); err != nil {
		// Counted and logged inside the backfill engine.
		c.logger.Warn("heartbeat backfill incomplete", "error", err)
	}
}
