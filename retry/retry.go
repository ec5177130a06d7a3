// Package retry provides bounded retry with exponential backoff. It is
// the single retry abstraction used for every upstream RPC call.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Defaults used throughout the indexer.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// Config holds retry policy parameters.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt. Each subsequent
	// delay doubles, capped at MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth retrying. A nil
	// predicate retries every error.
	Retryable func(error) bool
}

// DefaultConfig returns the policy used throughout: 5 attempts, 1 s
// base delay, 30 s cap, every error retryable.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive")
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max delay must be at least base delay")
	}
	return nil
}

// Delay returns the backoff delay before the given attempt (1-based):
// min(BaseDelay * 2^(attempt-1), MaxDelay).
func (c Config) Delay(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// Do runs op until it succeeds, the error is not retryable, the
// attempts are exhausted, or ctx is canceled. The sleep between
// attempts is cooperative: it returns early on context cancellation.
func Do(ctx context.Context, cfg Config, logger *zap.Logger, name string, op func(ctx context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Delay(attempt)
		logger.Warn("operation failed, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, cfg.MaxAttempts, lastErr)
}
