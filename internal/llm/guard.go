package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/owoblo/quote2move/internal/metrics"
	"github.com/owoblo/quote2move/internal/resilience"
)

// GuardOptions configures a Guard.
type GuardOptions struct {
	// Provider labels logs and metrics.
	Provider string
	Policy   resilience.Policy
	// Limiter throttles attempts across all callers. Nil means unlimited.
	Limiter *rate.Limiter
	Metrics *metrics.Metrics
}

// Guard wraps a Client with a rate limiter, per-attempt timeout, jittered
// retries and a circuit breaker. It logs and records the cost of every call.
type Guard struct {
	inner Client
	opts  GuardOptions
}

// NewGuard wraps inner.
func NewGuard(inner Client, opts GuardOptions) *Guard {
	if opts.Policy.Backoff.Notify == nil {
		opts.Policy.Backoff.Notify = resilience.LogRetries(opts.Provider, "complete")
	}
	return &Guard{inner: inner, opts: opts}
}

// Complete implements Client.
func (g *Guard) Complete(ctx context.Context, req Request) (*Response, error) {
	log := zap.L().With(zap.String("provider", g.opts.Provider), zap.String("stage", req.Stage))
	start := time.Now()

	resp, err := resilience.Call(ctx, g.opts.Policy, func(ctx context.Context) (*Response, error) {
		if g.opts.Limiter != nil {
			if err := g.opts.Limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "llm: rate limiter")
			}
		}
		return g.inner.Complete(ctx, req)
	})
	if err != nil {
		outcome := "error"
		if eris.Is(err, resilience.ErrBreakerOpen) {
			outcome = "breaker_open"
		}
		g.opts.Metrics.ModelCall(g.opts.Provider, req.Stage, outcome, 0)
		log.Warn("llm: call failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, err
	}

	g.opts.Metrics.ModelCall(g.opts.Provider, req.Stage, "ok", resp.CostUSD)
	log.Info("cost attribution",
		zap.String("model", resp.Model),
		zap.Int("input_tokens", resp.Usage.Input),
		zap.Int("output_tokens", resp.Usage.Output),
		zap.Int("cache_write_tokens", resp.Usage.CacheWrite),
		zap.Int("cache_read_tokens", resp.Usage.CacheRead),
		zap.Float64("estimated_cost_usd", resp.CostUSD),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}
