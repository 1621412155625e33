// Package retry runs provider calls under a bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
)

// Policy bounds a retried call. The first wait is Initial, doubling up to Max.
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// DefaultPolicy is three attempts waiting 4s then 8s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Initial: 4 * time.Second, Max: 10 * time.Second}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.Max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Permanent marks err so that Do returns it without retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a permanent error, the policy is
// exhausted or ctx is done. The last error from op is returned.
// Errors matching domain.ErrValidation are never retried.
func Do(ctx context.Context, p Policy, name string, op func(ctx context.Context) error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := op(ctx)
		if err != nil && errors.Is(err, domain.ErrValidation) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.With(logger.Fields{"attempt": attempt, "wait_ms": wait.Milliseconds()}).
			Warn(ctx, "%s failed, retrying: %v", name, err)
	}

	return backoff.RetryNotify(wrapped, p.backOff(ctx), notify)
}
