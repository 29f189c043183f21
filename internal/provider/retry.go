package provider

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy is the explicit retry configuration applied to idempotent read
// calls. Transport failures and rate-limit signals qualify; business errors
// and non-throttle client errors do not.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy bounds transport retries at five attempts with jittered
// exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    15 * time.Second,
	}
}

// Do runs fn under the policy. fn's error is retried only when qualify
// returns true for it; the last error is returned once attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, qualify func(error) bool, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := retry.NewExponential(p.BaseDelay)
	backoff = retry.WithJitter(p.BaseDelay/2, backoff)
	if p.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(p.MaxDelay, backoff)
	}
	backoff = retry.WithMaxRetries(uint64(attempts-1), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if qualify != nil && qualify(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
