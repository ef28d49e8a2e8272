// Package retry wraps cenkalti/backoff with the engine's bounded policy: a
// capped number of attempts, never retry-forever.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Do runs op with bounded exponential backoff. A PermanentError from op (or
// wrapping via Permanent) stops immediately. The last error is returned once
// attempts are exhausted.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = 250 * time.Millisecond
	}
	bo.MaxInterval = 10 * time.Second
	bo.RandomizationFactor = 0.2

	wrapped := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)
	return backoff.Retry(op, wrapped)
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
