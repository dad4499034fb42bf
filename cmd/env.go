package main

import (
	"context"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/owoblo/quote2move/internal/config"
	"github.com/owoblo/quote2move/internal/cost"
	"github.com/owoblo/quote2move/internal/estimate"
	"github.com/owoblo/quote2move/internal/llm"
	"github.com/owoblo/quote2move/internal/metrics"
	"github.com/owoblo/quote2move/internal/pipeline"
	"github.com/owoblo/quote2move/internal/resilience"
	"github.com/owoblo/quote2move/internal/store"
	"github.com/owoblo/quote2move/internal/upsell"
	anthropicpkg "github.com/owoblo/quote2move/pkg/anthropic"
	"github.com/owoblo/quote2move/pkg/distance"
	"github.com/owoblo/quote2move/pkg/gemini"
)

// appEnv holds the store, clients and services a command needs. Fields a
// mode does not use stay nil.
type appEnv struct {
	Store     store.Store
	Metrics   *metrics.Metrics
	Breakers  *resilience.Breakers
	Detector  *pipeline.Pipeline
	Estimator *estimate.Estimator
	Upsells   *upsell.Engine

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

// initEnv validates cfg for mode and builds what that mode needs. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{Metrics: metrics.New()}
	env.Breakers = resilience.NewBreakers(resilience.BreakerSettings{
		Threshold: cfg.Resilience.BreakerThreshold,
		Cooldown:  time.Duration(cfg.Resilience.BreakerResetSecs) * time.Second,
		OnChange: func(name string, from, to resilience.BreakerState) {
			env.Metrics.BreakerTransition(name, to.String())
			zap.L().Warn("circuit breaker state change",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	env.Store = st
	env.closers = append(env.closers, st.Close)

	calc := cost.NewCalculator(cfg.Costs)
	limiter := modelLimiter(cfg.Resilience)

	if mode == "serve" || mode == "detect" {
		client, err := env.modelClient(ctx, cfg.Vision.Provider, calc, limiter, cfg.Vision.Model)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Detector = pipeline.New(cfg.Vision, client, st, env.Metrics)
	}

	if mode == "serve" || mode == "estimate" {
		client, err := env.modelClient(ctx, cfg.Estimator.Provider, calc, limiter, cfg.Estimator.Model)
		if err != nil {
			env.Close()
			return nil, err
		}
		pol, err := estimate.PolicyFromConfig(cfg.Pricing)
		if err != nil {
			env.Close()
			return nil, err
		}

		var dist distance.Client
		if cfg.Distance.Key != "" {
			dist = distance.NewClient(cfg.Distance.Key,
				distance.WithBaseURL(cfg.Distance.BaseURL),
				distance.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Distance.TimeoutSecs) * time.Second}),
				distance.WithRateLimit(cfg.Distance.RatePerSec),
			)
			zap.L().Info("distance lookups enabled")
		} else {
			zap.L().Debug("QUOTE_DISTANCE_KEY not set, address lookups disabled")
		}

		env.Estimator = estimate.New(estimate.Options{
			Client:         client,
			Policy:         pol,
			Config:         cfg.Estimator,
			Store:          st,
			Distance:       dist,
			DistancePolicy: env.policy("distance"),
			Costs:          calc,
			Metrics:        env.Metrics,
		})

		ups, err := upsell.NewEngine(cfg.Upsells)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Upsells = ups
	}

	return env, nil
}

// policy builds the retry, timeout and breaker policy for service.
func (e *appEnv) policy(service string) resilience.Policy {
	r := cfg.Resilience
	return resilience.Policy{
		Timeout: time.Duration(r.AttemptTimeoutSecs) * time.Second,
		Backoff: resilience.Backoff{
			Attempts: r.MaxAttempts,
			Base:     time.Duration(r.InitialBackoffMs) * time.Millisecond,
			Cap:      time.Duration(r.MaxBackoffMs) * time.Millisecond,
			Factor:   r.Multiplier,
			Jitter:   r.JitterFraction,
			Notify:   resilience.LogRetries(service, "call"),
		},
		Breaker: e.Breakers.For(service),
	}
}

func modelLimiter(r config.ResilienceConfig) *rate.Limiter {
	if r.RatePerSec <= 0 {
		return nil
	}
	burst := r.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(r.RatePerSec), burst)
}

// modelClient returns a guarded client for provider. Both stages of one
// provider share its breaker and the process-wide limiter.
func (e *appEnv) modelClient(ctx context.Context, provider string, calc *cost.Calculator, limiter *rate.Limiter, model string) (llm.Client, error) {
	var inner llm.Client
	switch provider {
	case "anthropic":
		var opts []option.RequestOption
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		inner = llm.NewAnthropic(anthropicpkg.NewClient(cfg.Anthropic.Key, opts...), model, calc)
	case "gemini":
		api, err := gemini.NewClient(ctx, cfg.Gemini.Key)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, api.Close)
		inner = llm.NewGemini(api, gemini.NewFetcher(nil, cfg.Gemini.MaxImageBytes), model, calc)
	default:
		return nil, eris.Errorf("unsupported model provider: %s", provider)
	}

	return llm.NewGuard(inner, llm.GuardOptions{
		Provider: provider,
		Policy:   e.policy(provider),
		Limiter:  limiter,
		Metrics:  e.Metrics,
	}), nil
}
