package translate

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/honyaku/internal/providers"
)

// RetryPolicy bounds the retries of a unit after transient backend errors.
type RetryPolicy struct {
	Attempts uint          // total attempts, including the first
	Delay    time.Duration // initial backoff
	MaxDelay time.Duration // backoff cap
}

// DefaultRetryPolicy returns 5 attempts starting at 10s, capped at 1m.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 5,
		Delay:    10 * time.Second,
		MaxDelay: time.Minute,
	}
}

// Do runs fn until it succeeds, fails with a non-transient error, the policy
// is exhausted or ctx ends. It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error, onRetry func(n uint, err error)) (int, error) {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	if onRetry == nil {
		onRetry = func(uint, error) {}
	}
	made := 0
	err := retry.Do(
		func() error {
			made++
			return fn(made)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(p.delay),
		retry.RetryIf(providers.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(onRetry),
	)
	return made, err
}

// delay waits as long as the backend asked through Retry-After, capped at
// MaxDelay, and backs off exponentially otherwise.
func (p RetryPolicy) delay(n uint, err error, config *retry.Config) time.Duration {
	var unavailable *providers.UnavailableError
	if errors.As(err, &unavailable) && unavailable.RetryAfter > 0 {
		if p.MaxDelay > 0 && unavailable.RetryAfter > p.MaxDelay {
			return p.MaxDelay
		}
		return unavailable.RetryAfter
	}
	return retry.BackOffDelay(n, err, config)
}
