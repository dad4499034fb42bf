package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff describes bounded retries with exponential delay and jitter.
type Backoff struct {
	// Attempts is the total number of tries including the first. 1 disables
	// retrying.
	Attempts int
	// Base is the delay before the first retry.
	Base time.Duration
	// Cap bounds any single delay.
	Cap time.Duration
	// Factor grows the delay after each failed attempt.
	Factor float64
	// Jitter randomizes each delay by ±Jitter of its value.
	Jitter float64

	// Retryable decides whether an error is worth another attempt. Nil means
	// IsTransient.
	Retryable func(err error) bool
	// Notify runs before each sleep.
	Notify func(attempt int, err error, wait time.Duration)
}

// DefaultBackoff suits calls to hosted model and maps APIs.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Base:     500 * time.Millisecond,
		Cap:      20 * time.Second,
		Factor:   2,
		Jitter:   0.25,
	}
}

func (b Backoff) normalized() Backoff {
	d := DefaultBackoff()
	if b.Attempts <= 0 {
		b.Attempts = d.Attempts
	}
	if b.Base <= 0 {
		b.Base = d.Base
	}
	if b.Cap <= 0 {
		b.Cap = d.Cap
	}
	if b.Factor < 1 {
		b.Factor = d.Factor
	}
	if b.Jitter < 0 || b.Jitter > 1 {
		b.Jitter = 0
	}
	if b.Retryable == nil {
		b.Retryable = IsTransient
	}
	return b
}

// Delay returns the wait before retry number n (0-based).
func (b Backoff) Delay(n int) time.Duration {
	b = b.normalized()
	d := float64(b.Base) * math.Pow(b.Factor, float64(n))
	d = math.Min(d, float64(b.Cap))
	if b.Jitter > 0 {
		d += d * b.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// Retry runs fn until it succeeds, returns a non-retryable error, exhausts
// its attempts, or ctx is done. The last error is returned unchanged.
func Retry[T any](ctx context.Context, b Backoff, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.normalized()

	var (
		zero T
		err  error
	)
	for attempt := 1; ; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !b.Retryable(err) || attempt >= b.Attempts {
			return zero, err
		}

		wait := b.Delay(attempt - 1)
		if b.Notify != nil {
			b.Notify(attempt, err, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}

// Do is Retry for calls without a result.
func Do(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// LogRetries returns a Notify hook that logs each retry.
func LogRetries(service, op string) func(int, error, time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		zap.L().Warn("resilience: retrying",
			zap.String("service", service),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
}
