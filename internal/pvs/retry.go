package pvs

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how often a failed category fetch is repeated within one poll.
// Each attempt is a full round-trip; nothing is resumed.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Retryable decides which failures earn another attempt. Nil means IsTransient.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries transport failures three times in total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 2 * time.Second,
		MaxInterval:     10 * time.Second,
		Retryable:       IsTransient,
	}
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return IsTransient(err)
	}
	return p.Retryable(err)
}

// Run calls op until it succeeds, returns a non-retryable error, the attempts run out or
// ctx ends. onRetry, if set, is called before each repeated attempt.
func (p RetryPolicy) Run(ctx context.Context, op func(ctx context.Context) error, onRetry func(attempt int, err error, wait time.Duration)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := op(ctx)
		if err != nil && !p.retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if onRetry != nil {
				onRetry(attempt, err, wait)
			}
		}),
	)
	return err
}
