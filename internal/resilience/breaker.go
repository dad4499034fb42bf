// Package resilience wraps calls to external services with timeouts,
// retries and circuit breakers.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// StateClosed lets calls through.
	StateClosed BreakerState = iota
	// StateOpen rejects calls until the cool-down elapses.
	StateOpen
	// StateHalfOpen lets probe calls through to test recovery.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrBreakerOpen is returned for calls rejected by an open breaker.
var ErrBreakerOpen = eris.New("circuit breaker open")

// BreakerSettings tunes a Breaker.
type BreakerSettings struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int
	// Cooldown is how long an open breaker rejects calls.
	Cooldown time.Duration
	// Probes is the number of half-open successes needed to close again.
	Probes int
	// Counts decides whether an error counts as a failure. Nil counts every
	// error except context cancellation by the caller.
	Counts func(err error) bool
	// OnChange observes state transitions.
	OnChange func(name string, from, to BreakerState)
}

// DefaultBreakerSettings returns the service-wide defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{Threshold: 5, Cooldown: 30 * time.Second, Probes: 1}
}

// Breaker is a consecutive-failure circuit breaker for one named service.
type Breaker struct {
	name string
	set  BreakerSettings

	mu       sync.Mutex
	state    BreakerState
	failures int
	probes   int
	openedAt time.Time

	now func() time.Time
}

// NewBreaker returns a closed breaker.
func NewBreaker(name string, s BreakerSettings) *Breaker {
	d := DefaultBreakerSettings()
	if s.Threshold <= 0 {
		s.Threshold = d.Threshold
	}
	if s.Cooldown <= 0 {
		s.Cooldown = d.Cooldown
	}
	if s.Probes <= 0 {
		s.Probes = d.Probes
	}
	if s.Counts == nil {
		s.Counts = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	return &Breaker{name: name, set: s, now: time.Now}
}

// Name returns the service the breaker guards.
func (b *Breaker) Name() string { return b.name }

// State reports the current state, accounting for an elapsed cool-down.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.set.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Guard runs fn if the breaker admits it and records the outcome.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	b.record(err)
	return v, err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.set.Cooldown {
		return eris.Wrapf(ErrBreakerOpen, "%s", b.name)
	}
	b.moveTo(StateHalfOpen)
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !b.set.Counts(err) {
		if b.state == StateHalfOpen {
			b.probes++
			if b.probes >= b.set.Probes {
				b.failures, b.probes = 0, 0
				b.moveTo(StateClosed)
			}
			return
		}
		b.failures = 0
		return
	}

	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.probes = 0
		b.openedAt = b.now()
		b.moveTo(StateOpen)
	case b.state == StateClosed && b.failures >= b.set.Threshold:
		b.openedAt = b.now()
		b.moveTo(StateOpen)
	}
}

func (b *Breaker) moveTo(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	zap.L().Info("resilience: breaker state change",
		zap.String("service", b.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	if b.set.OnChange != nil {
		b.set.OnChange(b.name, from, to)
	}
}

// Breakers hands out one Breaker per service name.
type Breakers struct {
	set BreakerSettings

	mu sync.Mutex
	m  map[string]*Breaker
}

// NewBreakers returns an empty registry that builds breakers from s.
func NewBreakers(s BreakerSettings) *Breakers {
	return &Breakers{set: s, m: make(map[string]*Breaker)}
}

// For returns the breaker for service, creating it on first use.
func (r *Breakers) For(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.m[service]; ok {
		return b
	}
	b := NewBreaker(service, r.set)
	r.m[service] = b
	return b
}

// Snapshot returns the state of every known breaker.
func (r *Breakers) Snapshot() map[string]BreakerState {
	r.mu.Lock()
	names := make([]*Breaker, 0, len(r.m))
	for _, b := range r.m {
		names = append(names, b)
	}
	r.mu.Unlock()

	out := make(map[string]BreakerState, len(names))
	for _, b := range names {
		out[b.name] = b.State()
	}
	return out
}
