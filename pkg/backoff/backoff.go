package backoff

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried operation.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     uint64
}

// DefaultPolicy suits short at-least-once delivery paths.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxAttempts:     4,
	}
}

// Retry runs fn under the policy until it succeeds, the attempt budget is
// exhausted, or ctx is cancelled. The last error is returned.
func Retry(ctx context.Context, policy Policy, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	b.MaxElapsedTime = 0

	var wrapped backoff.BackOff = b
	if policy.MaxAttempts > 0 {
		wrapped = backoff.WithMaxRetries(b, policy.MaxAttempts-1)
	}

	return backoff.Retry(fn, backoff.WithContext(wrapped, ctx))
}
