package resilience

import (
	"context"
	"time"
)

// RetryPolicy configures Retry.
type RetryPolicy struct {
	MaxRetries int           `yaml:"maxRetries"`
	BaseDelay  time.Duration `yaml:"baseDelay"`
	MaxDelay   time.Duration `yaml:"maxDelay"`
	// OnRetry observes each retry with its 1-based attempt number and the error that caused it.
	OnRetry func(attempt int, err error) `yaml:"-"`
	Sleep   SleepFunc                    `yaml:"-"`
}

// DefaultRetryPolicy returns 2 retries starting at 500ms, capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Backoff is min(maxDelay, base * 2^attempt); a non-positive maxDelay disables the cap.
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if maxDelay > 0 && d >= maxDelay {
			return maxDelay
		}
		if d <= 0 {
			return maxDelay
		}
	}
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}

// Retry runs op until it succeeds or MaxRetries retries are spent, then returns
// the last error unchanged.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	sleep := policy.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= policy.MaxRetries {
			return v, err
		}

		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err)
		}
		if sleepErr := sleep(ctx, Backoff(attempt, policy.BaseDelay, policy.MaxDelay)); sleepErr != nil {
			return v, err
		}
	}
}

// Do is Retry for operations without a result.
func Do(ctx context.Context, policy RetryPolicy, op func(context.Context) error) error {
	_, err := Retry(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
