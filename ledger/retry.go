package ledger

import (
	"context"
	"fmt"
	"time"
)

// Retry default configuration values
const (
	DefaultRetryMaxAttempts   = 3
	DefaultRetryInitialDelay  = 50 * time.Millisecond
	DefaultRetryMaxDelay      = time.Second
	DefaultRetryBackoffFactor = 2.0
)

// RetryConfig bounds retries of transactions that hit ErrConflict.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// OnRetry is called before sleeping ahead of attempt+1.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns three attempts with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   DefaultRetryMaxAttempts,
		InitialDelay:  DefaultRetryInitialDelay,
		MaxDelay:      DefaultRetryMaxDelay,
		BackoffFactor: DefaultRetryBackoffFactor,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. Only IsRetryable errors are retried.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	factor := cfg.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		// Don't sleep after last attempt
		if attempt == attempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * factor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", attempts, lastErr)
}
