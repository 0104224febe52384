package fetchers

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig controls how often a failed issuer download is repeated.
type RetryConfig struct {
	// MaxAttempts counts the first try. Values below 1 mean a single attempt.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt; each later wait is
	// Multiplier times the previous one, capped at MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter spreads each wait by up to +/- Jitter of its length.
	Jitter float64

	// Retryable decides whether an attempt error is worth repeating. If nil,
	// IsTransient is used.
	Retryable func(err error) bool

	// OnRetry is called before each wait, e.g. to log it.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns three attempts with exponential backoff
// starting at 500ms.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// backoff returns the wait after the given failed attempt (1-based).
func (c *RetryConfig) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		spread := delay * c.Jitter
		delay += (rand.Float64()*2 - 1) * spread
	}
	return time.Duration(delay)
}

func (c *RetryConfig) retryable(err error) bool {
	if c.Retryable != nil {
		return c.Retryable(err)
	}
	return IsTransient(err)
}

// IsTransient reports whether a fetch error may go away on its own: network
// failures, server errors and rate limiting. Client errors, oversized
// responses and undecodable certificates are permanent, as is a canceled or
// expired context.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrResponseTooLarge) || errors.Is(err, ErrCertParseFailed) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

// Retry calls fn until it succeeds, returns a permanent error or runs out of
// attempts. A nil config means DefaultRetryConfig. The returned error is the
// last attempt's; if ctx ends during a wait, ctx.Err() is joined to it.
func Retry[T any](ctx context.Context, config *RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}
	attempts := max(config.MaxAttempts, 1)

	var zero T
	for attempt := 1; ; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if attempt >= attempts || !config.retryable(err) {
			return zero, err
		}

		delay := config.backoff(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}
