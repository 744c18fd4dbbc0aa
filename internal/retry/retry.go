// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/iconidentify/tikgrab/internal/domain"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultConfig returns the policy used for upstream fetches and transports:
// 2 attempts, 1s base delay, doubling.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   2,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Delay returns the wait before the attempt following attempt (0-based).
func (c Config) Delay(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.BackoffFactor)
		if c.MaxDelay > 0 && delay > c.MaxDelay {
			return c.MaxDelay
		}
	}
	return delay
}

// Do executes fn with exponential backoff, skipping retries for errors
// domain.IsRetryable rejects. fn receives the 0-based attempt number.
func Do[T any](ctx context.Context, cfg Config, fn func(attempt int) (T, error)) (T, error) {
	return DoWithCheck(ctx, cfg, fn, domain.IsRetryable)
}

// DoWithCheck executes fn with retry, allowing a custom retry decision.
func DoWithCheck[T any](
	ctx context.Context,
	cfg Config,
	fn func(attempt int) (T, error),
	shouldRetry func(error) bool,
) (T, error) {
	var lastErr error
	var zero T

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !shouldRetry(err) {
			break
		}

		// Don't wait after the last attempt
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}
