// Package retry re-runs idempotent operations with a doubling delay.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Do calls fn up to attempts times, sleeping between failures starting
// at initial and doubling each round. Only idempotent operations belong
// here. The last error is returned when every attempt fails.
func Do(ctx context.Context, attempts int, initial time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := initial
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		slog.Debug("retrying after failure", "attempt", i+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
