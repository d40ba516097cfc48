package retry

import (
	"context"
	"fmt"
	"time"
)

// Default parameters used for every durable write in the recorder.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy describes a bounded exponential backoff: attempt n (0-based)
// sleeps BaseDelay * 2^n before the next try.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Do invokes op until it succeeds or MaxAttempts is exhausted.
// The last error is returned wrapped; intermediate failures are absorbed.
// Context cancellation aborts the wait between attempts.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := op(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i == attempts-1 {
			break
		}
		delay := base << uint(i)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry aborted after %d attempt(s): %w", i+1, ctx.Err())
		case <-t.C:
		}
	}
	return fmt.Errorf("retry exhausted after %d attempt(s): %w", attempts, lastErr)
}
