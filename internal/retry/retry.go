// Package retry provides the bounded exponential-backoff loop shared by the
// RPC client and the transaction submitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default configuration values.
const (
	DefaultMaxRetries  = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Config bounds a retry loop. MaxRetries counts retries after the first attempt.
type Config struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	BackoffMult float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  DefaultMaxRetries,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		BackoffMult: DefaultBackoffMult,
	}
}

// permanentError stops the loop immediately.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ErrExhausted is wrapped by the error returned after the last attempt fails.
var ErrExhausted = errors.New("max retries exceeded")

// Do runs op until it succeeds, returns a Permanent error, the context ends,
// or MaxRetries retries have failed.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if cfg.BackoffMult < 1 {
		cfg.BackoffMult = 1
	}

	delay := cfg.BaseDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * cfg.BackoffMult)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}
