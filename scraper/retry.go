package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/aluiziolira/go-scrape-market/config"
)

// RetryPolicy configures Retry.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Retryable decides which failures are retried. Nil means IsRetryable.
	Retryable func(error) bool
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// PolicyFromConfig builds the retry policy for page fetches.
func PolicyFromConfig(cfg *config.Config, metrics *Metrics) RetryPolicy {
	return RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryDelay,
		OnRetry: func(int, error) {
			metrics.IncRetries()
		},
	}
}

// Retry invokes op until it succeeds, fails with a non-retryable error, or
// MaxRetries retries are spent. Before retry n it sleeps BaseDelay*n. The last
// error is returned; callers never see intermediate failures.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	retryable := policy.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if policy.OnRetry != nil {
				policy.OnRetry(attempt, lastErr)
			}
			if err := sleepContext(ctx, policy.BaseDelay*time.Duration(attempt)); err != nil {
				return zero, errors.Join(lastErr, err)
			}
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
