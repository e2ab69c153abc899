package chain

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Backoff controls WithRetry. Zero fields take the defaults below.
type Backoff struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

const (
	DefaultBaseDelay = 100 * time.Millisecond
	DefaultMaxDelay  = 30 * time.Second
)

// WithRetry calls fn until it succeeds, doubling the delay after each failure
// up to b.MaxDelay. It gives up after b.MaxRetries retries or when ctx is
// done. Every failed attempt that will be retried is logged at Warn.
func WithRetry(ctx context.Context, b Backoff, logger *zap.Logger, operation string, fn func(context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if b.MaxRetries < 0 {
		b.MaxRetries = 0
	}
	if b.BaseDelay <= 0 {
		b.BaseDelay = DefaultBaseDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = DefaultMaxDelay
	}

	delay := min(b.BaseDelay, b.MaxDelay)
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retries",
					zap.String("operation", operation),
					zap.Int("attempts", attempt))
			}
			return nil
		}
		if attempt > b.MaxRetries {
			return fmt.Errorf("%s failed after %d attempts: %w", operation, attempt, err)
		}

		logger.Warn("operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", b.MaxRetries),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: retry cancelled: %w", operation, ctx.Err())
		case <-timer.C:
		}

		delay = min(delay*2, b.MaxDelay)
	}
}
