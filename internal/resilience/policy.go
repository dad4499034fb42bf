package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Policy is the full guard around one external service: a per-attempt
// timeout, bounded retries and a circuit breaker. A zero Timeout disables
// the per-attempt deadline; a nil Breaker disables tripping.
type Policy struct {
	Timeout time.Duration
	Backoff Backoff
	Breaker *Breaker
}

// Call runs fn under p. Each attempt gets its own deadline and passes through
// the breaker, so an open breaker stops retrying immediately.
func Call[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	b := p.Backoff
	retryable := b.normalized().Retryable
	b.Retryable = func(err error) bool {
		if eris.Is(err, ErrBreakerOpen) {
			return false
		}
		return retryable(err)
	}

	return Retry(ctx, b, func(ctx context.Context) (T, error) {
		attempt := func(ctx context.Context) (T, error) {
			if p.Timeout <= 0 {
				return fn(ctx)
			}
			actx, cancel := context.WithTimeout(ctx, p.Timeout)
			defer cancel()
			return fn(actx)
		}
		if p.Breaker == nil {
			return attempt(ctx)
		}
		return Guard(ctx, p.Breaker, attempt)
	})
}
