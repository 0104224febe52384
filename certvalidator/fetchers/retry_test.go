package fetchers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultRetryConfig(t *testing.T) {
	got := DefaultRetryConfig()
	want := &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DefaultRetryConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestRetryConfigBackoff(t *testing.T) {
	config := &RetryConfig{
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{9, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := config.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	config.Jitter = 0.5
	for range 20 {
		if got := config.backoff(1); got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Fatalf("backoff(1) with jitter = %v, want within [500ms, 1.5s]", got)
		}
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", fmt.Errorf("%w: connection refused", ErrFetchFailed), true},
		{"server error", &StatusError{StatusCode: http.StatusBadGateway}, true},
		{"rate limited", &StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"not found", &StatusError{StatusCode: http.StatusNotFound}, false},
		{"wrapped not found", fmt.Errorf("issuer: %w", &StatusError{StatusCode: http.StatusNotFound}), false},
		{"too large", fmt.Errorf("%w: 2MB", ErrResponseTooLarge), false},
		{"not a certificate", ErrCertParseFailed, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func quickRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
}

func TestRetry(t *testing.T) {
	errUnavailable := &StatusError{URL: "http://ca.example/ca.crt", StatusCode: http.StatusServiceUnavailable}

	t.Run("SucceedsAfterTransientFailures", func(t *testing.T) {
		var calls atomic.Int32
		got, err := Retry(context.Background(), quickRetry(3), func(ctx context.Context) (string, error) {
			if calls.Add(1) < 3 {
				return "", errUnavailable
			}
			return "issuer", nil
		})
		if err != nil || got != "issuer" {
			t.Errorf("Retry() = %q, %v, want issuer, nil", got, err)
		}
		if calls.Load() != 3 {
			t.Errorf("fn called %d times, want 3", calls.Load())
		}
	})

	t.Run("ReturnsLastErrorWhenExhausted", func(t *testing.T) {
		var calls atomic.Int32
		_, err := Retry(context.Background(), quickRetry(2), func(ctx context.Context) (int, error) {
			calls.Add(1)
			return 0, errUnavailable
		})
		if !errors.Is(err, ErrFetchFailed) {
			t.Errorf("Retry() error = %v, want ErrFetchFailed", err)
		}
		if calls.Load() != 2 {
			t.Errorf("fn called %d times, want 2", calls.Load())
		}
	})

	t.Run("StopsOnPermanentError", func(t *testing.T) {
		var calls atomic.Int32
		_, err := Retry(context.Background(), quickRetry(5), func(ctx context.Context) (int, error) {
			calls.Add(1)
			return 0, &StatusError{StatusCode: http.StatusNotFound}
		})
		if err == nil || calls.Load() != 1 {
			t.Errorf("Retry() = %v after %d calls, want an error after 1", err, calls.Load())
		}
	})

	t.Run("CustomPredicate", func(t *testing.T) {
		config := quickRetry(3)
		config.Retryable = func(error) bool { return true }
		var calls atomic.Int32
		Retry(context.Background(), config, func(ctx context.Context) (int, error) {
			calls.Add(1)
			return 0, ErrCertParseFailed
		})
		if calls.Load() != 3 {
			t.Errorf("fn called %d times, want 3", calls.Load())
		}
	})

	t.Run("ZeroAttemptsMeansOne", func(t *testing.T) {
		var calls atomic.Int32
		Retry(context.Background(), &RetryConfig{}, func(ctx context.Context) (int, error) {
			calls.Add(1)
			return 0, errUnavailable
		})
		if calls.Load() != 1 {
			t.Errorf("fn called %d times, want 1", calls.Load())
		}
	})

	t.Run("CanceledDuringWait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		config := &RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 1}
		config.OnRetry = func(int, error, time.Duration) { cancel() }

		var calls atomic.Int32
		_, err := Retry(ctx, config, func(ctx context.Context) (int, error) {
			calls.Add(1)
			return 0, errUnavailable
		})
		if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrFetchFailed) {
			t.Errorf("Retry() error = %v, want context.Canceled joined to the attempt error", err)
		}
		if calls.Load() != 1 {
			t.Errorf("fn called %d times, want 1", calls.Load())
		}
	})
}

func TestRetryOnRetry(t *testing.T) {
	var attempts []int
	config := quickRetry(3)
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		if delay != time.Millisecond {
			t.Errorf("OnRetry delay = %v, want 1ms", delay)
		}
	}

	Retry(context.Background(), config, func(ctx context.Context) (int, error) {
		return 0, errors.New("connection reset")
	})
	if diff := cmp.Diff([]int{1, 2}, attempts); diff != "" {
		t.Errorf("OnRetry attempts mismatch (-want +got):\n%s", diff)
	}
}
