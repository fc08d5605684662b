// Package retry runs operations under an exponential backoff policy driven
// by error classification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/tjfontaine/polyglot-chat/internal/classify"
)

const (
	defaultMaxRetries        = 3
	defaultInitialDelay      = time.Second
	defaultMaxDelay          = 30 * time.Second
	defaultBackoffMultiplier = 2.0
	defaultJitterFactor      = 0.1
)

// Config controls the retry loop.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// BackoffMultiplier must be greater than 1.
	BackoffMultiplier float64

	// JitterFactor in [0, 1] spreads each delay by up to ±delay*JitterFactor.
	JitterFactor float64

	// Policy decides retry eligibility from the classified error category.
	// Ignored when ShouldRetry is set.
	Policy classify.Policy

	// ShouldRetry overrides Policy when non-nil.
	ShouldRetry func(err error) bool

	// OnRetry is called before each backoff wait. attempt is zero-based and
	// refers to the attempt that just failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        defaultMaxRetries,
		InitialDelay:      defaultInitialDelay,
		MaxDelay:          defaultMaxDelay,
		BackoffMultiplier: defaultBackoffMultiplier,
		JitterFactor:      defaultJitterFactor,
		Policy:            classify.CommandPolicy,
	}
}

// Validate checks the configuration for out-of-range values.
func (c Config) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	case c.InitialDelay < 0:
		return fmt.Errorf("initial delay must be >= 0, got %s", c.InitialDelay)
	case c.MaxDelay < c.InitialDelay:
		return fmt.Errorf("max delay %s must be >= initial delay %s", c.MaxDelay, c.InitialDelay)
	case !(c.BackoffMultiplier > 1):
		return fmt.Errorf("backoff multiplier must be > 1, got %v", c.BackoffMultiplier)
	case c.JitterFactor < 0 || c.JitterFactor > 1:
		return fmt.Errorf("jitter factor must be within [0, 1], got %v", c.JitterFactor)
	}
	return nil
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithRand replaces the uniform [0, 1) source used for jitter.
func WithRand(f func() float64) Option {
	return func(e *Executor) {
		e.rand = f
	}
}

// WithSleep replaces the context-aware wait between attempts.
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = f
	}
}

// Executor runs operations with retries. It holds no per-call state and is
// safe for concurrent use.
type Executor struct {
	cfg    Config
	logger *slog.Logger
	rand   func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

// New validates cfg and returns an Executor.
func New(cfg Config, opts ...Option) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	e := &Executor{
		cfg:    cfg,
		logger: slog.Default(),
		rand:   rand.Float64,
		sleep:  sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Delay returns the wait before retry n (zero-based):
// min(initial*multiplier^n, max) spread by up to ±JitterFactor, never negative.
func (e *Executor) Delay(n int) time.Duration {
	base := float64(e.cfg.InitialDelay) * math.Pow(e.cfg.BackoffMultiplier, float64(n))
	if base > float64(e.cfg.MaxDelay) || math.IsInf(base, 0) || math.IsNaN(base) {
		base = float64(e.cfg.MaxDelay)
	}
	if j := e.cfg.JitterFactor; j > 0 {
		base *= 1 + (e.rand()*2-1)*j
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

// Retryable reports whether err is eligible for another attempt.
func (e *Executor) Retryable(err error) bool {
	if e.cfg.ShouldRetry != nil {
		return e.cfg.ShouldRetry(err)
	}
	return e.cfg.Policy.IsRetryable(err)
}

// Do runs op until it succeeds, fails with an ineligible error, or the retry
// budget is spent. The error returned is the last one op produced. If ctx is
// cancelled while waiting, the context error is returned instead.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := op(ctx, attempt)
		if err == nil {
			return v, nil
		}

		if attempt >= e.cfg.MaxRetries || !e.Retryable(err) {
			return zero, err
		}

		delay := e.Delay(attempt)
		if e.cfg.OnRetry != nil {
			e.cfg.OnRetry(attempt, delay, err)
		}
		e.logger.Warn("operation failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", e.cfg.MaxRetries),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		if serr := e.sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsContextError reports whether err came from context cancellation or
// deadline expiry.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
