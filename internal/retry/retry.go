package retry

import (
	"context"
	"fmt"
	"time"
)

// Func defines the function signature for a retryable operation.
type Func func(ctx context.Context) error

// IfFunc decides whether a failed attempt should be retried.
type IfFunc func(err error) bool

// LoggerFunc defines a logging function signature.
type LoggerFunc func(format string, args ...interface{})

// Default logger discards output (can be replaced by a custom logger)
var logger LoggerFunc = func(string, ...interface{}) {}

// SetLogger allows setting a custom logger for retry operations.
func SetLogger(customLogger LoggerFunc) {
	logger = customLogger
}

// Always retries every error.
func Always(error) bool { return true }

// Execute performs op until it succeeds, retryIf rejects the error, the
// attempts are exhausted or ctx is done. Waits grow exponentially.
func Execute(ctx context.Context, cfg *Config, op Func, retryIf IfFunc) error {
	// If no retry configuration is provided, just execute the operation
	if cfg == nil || !cfg.Enable {
		return op(ctx)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid retry configuration: %w", err)
	}
	if retryIf == nil {
		retryIf = Always
	}

	interval := cfg.InitialInterval
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryIf(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		logger("Retry %d/%d failed: %v. Waiting %v before next attempt", attempt, cfg.MaxAttempts, err, interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = nextInterval(cfg, interval)
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func nextInterval(cfg *Config, current time.Duration) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}
	next := time.Duration(float64(current) * multiplier)
	if cfg.MaxInterval > 0 && next > cfg.MaxInterval {
		next = cfg.MaxInterval
	}
	return next
}
