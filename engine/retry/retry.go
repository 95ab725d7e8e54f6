// Package retry re-issues binary engine calls that failed for transient reasons.
package retry

import (
	"context"
	"time"

	"github.com/satishbabariya/prisma-engines-go/engine"
	"github.com/satishbabariya/prisma-engines-go/internal/debug"
)

// Config holds retry configuration
type Config struct {
	// Budget is how many extra attempts an engine-warming failure may use.
	Budget int
	// WarmupBackoff is the wait after an engine-warming failure.
	WarmupBackoff time.Duration
	// TextBusyBackoff is the wait before the single text-busy retry.
	TextBusyBackoff time.Duration
	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns default retry configuration
func DefaultConfig() *Config {
	return &Config{
		Budget:          0,
		WarmupBackoff:   5000 * time.Millisecond,
		TextBusyBackoff: 500 * time.Millisecond,
		Sleep:           sleep,
	}
}

// Option allows customization of retry behavior
type Option func(*Config)

// WithBudget sets the retry budget for engine-warming failures
func WithBudget(n int) Option {
	return func(c *Config) {
		c.Budget = n
	}
}

// WithWarmupBackoff sets the wait after an engine-warming failure
func WithWarmupBackoff(d time.Duration) Option {
	return func(c *Config) {
		c.WarmupBackoff = d
	}
}

// WithTextBusyBackoff sets the wait before the text-busy retry
func WithTextBusyBackoff(d time.Duration) Option {
	return func(c *Config) {
		c.TextBusyBackoff = d
	}
}

// WithSleep replaces the wait function
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Config) {
		c.Sleep = fn
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls attempt until it returns an outcome that is not retryable.
// Engine-warming failures consume the budget; a text-busy failure is retried
// once whatever the budget. Every retry re-issues the same request.
func Do(ctx context.Context, attempt func(ctx context.Context) engine.Outcome, opts ...Option) engine.Outcome {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	budget := config.Budget
	textBusyRetried := false

	for n := 1; ; n++ {
		outcome := attempt(ctx)

		var wait time.Duration
		switch {
		case outcome.Retry == engine.RetryEngineWarming && budget > 0:
			budget--
			wait = config.WarmupBackoff
		case outcome.Retry == engine.RetryTextBusy && !textBusyRetried:
			textBusyRetried = true
			wait = config.TextBusyBackoff
		default:
			if outcome.Retry != engine.RetryNone {
				debug.Debug("retry exhausted", "reason", outcome.Retry.String(), "attempts", n)
			}
			return outcome
		}

		debug.Debug("retrying engine call", "reason", outcome.Retry.String(), "attempt", n, "wait", wait)
		if err := config.Sleep(ctx, wait); err != nil {
			return engine.Failure("retry interrupted", err)
		}
	}
}
