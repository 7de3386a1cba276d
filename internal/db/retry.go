package db

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const retryBaseDelay = 500 * time.Millisecond

// withRetry runs fn up to attempts times with doubling delays, giving up
// early when ctx ends.
func withRetry(ctx context.Context, attempts int, log *zap.Logger, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := retryBaseDelay

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Warn("connect failed, retrying",
			zap.Int("attempt", i),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
