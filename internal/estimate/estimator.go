package estimate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/owoblo/quote2move/internal/config"
	"github.com/owoblo/quote2move/internal/cost"
	"github.com/owoblo/quote2move/internal/llm"
	"github.com/owoblo/quote2move/internal/metrics"
	"github.com/owoblo/quote2move/internal/model"
	"github.com/owoblo/quote2move/internal/resilience"
	"github.com/owoblo/quote2move/internal/store"
	"github.com/owoblo/quote2move/internal/volume"
	"github.com/owoblo/quote2move/pkg/distance"
)

// Options wires an Estimator. Only Client is required.
type Options struct {
	Client   llm.Client
	Policy   Policy
	Config   config.EstimatorConfig
	Store    store.Store
	Distance distance.Client
	// DistancePolicy wraps address lookups with retry and timeout.
	DistancePolicy resilience.Policy
	// Costs prices distance lookups for cost logging. Nil skips the log.
	Costs   *cost.Calculator
	Metrics *metrics.Metrics
}

// Result is the output of one estimate.
type Result struct {
	RunID     string              `json:"runId,omitempty"`
	Volume    model.VolumeTotals  `json:"volume"`
	TruckPlan model.TruckPlan     `json:"truckPlan"`
	Estimate  *model.MoveEstimate `json:"estimate"`
	Trip      model.Trip          `json:"trip"`
	Warnings  []string            `json:"warnings"`
	Cached    bool                `json:"cached"`
	Shared    bool                `json:"shared,omitempty"`
	Usage     model.TokenUsage    `json:"usage"`
}

type callOptions struct {
	maxTokens   int
	temperature float64
}

// Estimator produces move estimates. It is safe for concurrent use;
// identical concurrent requests share one model call.
type Estimator struct {
	client   llm.Client
	policy   Policy
	cfg      config.EstimatorConfig
	store    store.Store
	distance distance.Client
	distPol  resilience.Policy
	costs    *cost.Calculator
	metrics  *metrics.Metrics
	group    singleflight.Group
}

// New creates an Estimator.
func New(opts Options) *Estimator {
	if opts.Policy.CrewRates == nil {
		opts.Policy = DefaultPolicy()
	}
	return &Estimator{
		client:   opts.Client,
		policy:   opts.Policy,
		cfg:      opts.Config,
		store:    opts.Store,
		distance: opts.Distance,
		distPol:  opts.DistancePolicy,
		costs:    opts.Costs,
		metrics:  opts.Metrics,
	}
}

// Policy returns the pricing policy in use.
func (e *Estimator) Policy() Policy { return e.policy }

type outcome struct {
	estimate *model.MoveEstimate
	usage    model.TokenUsage
	runID    string
}

// Estimate validates req, aggregates volume and returns a priced estimate.
// Model failures never fail the request: they produce a degraded estimate.
func (e *Estimator) Estimate(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	res := &Result{Warnings: []string{}}
	trip := req.Trip
	cacheable := true
	if req.needsLookup() {
		var lookupWarnings []string
		trip, lookupWarnings = e.resolveTrip(ctx, req)
		if len(lookupWarnings) > 0 {
			// Travel is unknown, so this answer must not be replayed.
			cacheable = false
			res.Warnings = append(res.Warnings, lookupWarnings...)
		}
	}
	res.Trip = trip

	totals := volume.Aggregate(req.Detections)
	res.Volume = totals
	res.Warnings = append(res.Warnings, totals.Warnings...)

	fp, err := Fingerprint(req.Detections, trip, e.policy, e.cfg.Model)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("fingerprint", fp[:12]))

	if cacheable {
		if est := e.cached(ctx, fp); est != nil {
			log.Info("estimate: cache hit")
			res.Estimate = est
			res.TruckPlan = est.TruckPlan
			res.Cached = true
			addEstimateWarnings(res)
			return res, nil
		}
	}

	v, err, shared := e.group.Do(fp, func() (any, error) {
		// Detached so one caller going away does not fail the others.
		return e.run(context.WithoutCancel(ctx), fp, totals, trip, req, cacheable)
	})
	if err != nil {
		return nil, err
	}
	out := v.(*outcome)
	est := *out.estimate

	res.Estimate = &est
	res.TruckPlan = est.TruckPlan
	res.RunID = out.runID
	res.Shared = shared
	res.Usage = out.usage
	addEstimateWarnings(res)
	return res, nil
}

func addEstimateWarnings(res *Result) {
	est := res.Estimate
	if est.RateAmbiguous {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"no multi-truck rate configured for crew of %d with %d trucks; using flat rate plus coordination overhead",
			est.CrewSize, est.Trucks))
	}
	if est.Degraded {
		res.Warnings = append(res.Warnings, "estimate is degraded: "+est.DegradedReason)
	}
}

func (e *Estimator) run(ctx context.Context, fp string, totals model.VolumeTotals, trip model.Trip, req Request, cacheable bool) (*outcome, error) {
	log := zap.L().With(zap.String("fingerprint", fp[:12]))
	out := &outcome{runID: e.startRun(ctx, req)}
	start := time.Now()

	timeout := time.Duration(e.cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	j, usage, err := requestJudgment(callCtx, e.client, callOptions{
		maxTokens:   e.cfg.MaxTokens,
		temperature: e.cfg.Temperature,
	}, totals, trip)
	out.usage = usage

	status := model.RunStatusComplete
	phaseStatus := model.PhaseStatusComplete
	if err != nil {
		reason, detail := fallbackReason(err)
		fbErr := &model.EstimationFallbackError{Err: err}
		log.Warn("estimate: model judgment unavailable", zap.String("reason", reason), zap.Error(fbErr))
		e.metrics.Fallback(reason)

		out.estimate = Fallback(totals, trip, e.cfg.FallbackCrew, e.cfg.FallbackHours, detail, e.policy)
		status = model.RunStatusDegraded
		phaseStatus = model.PhaseStatusFailed
	} else {
		out.estimate = Compute(totals, trip, j, e.policy)
	}
	out.estimate.Fingerprint = fp
	e.metrics.ObservePhase(model.StageEstimate, string(phaseStatus), time.Since(start))

	if cacheable && !out.estimate.Degraded {
		e.storeCache(ctx, fp, out.estimate)
	}
	e.finishRun(ctx, out.runID, status, out.estimate)

	log.Info("estimate: complete",
		zap.Float64("hours_standard", out.estimate.HoursStandard),
		zap.Int("crew", out.estimate.CrewSize),
		zap.Float64("post_tax_total", out.estimate.PostTaxTotal),
		zap.Bool("degraded", out.estimate.Degraded),
		zap.Float64("cost_usd", usage.CostUSD),
	)
	return out, nil
}

// fallbackReason maps a model failure to a metric label and a
// customer-safe explanation.
func fallbackReason(err error) (label, detail string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", "the estimation service timed out"
	case errors.Is(err, resilience.ErrBreakerOpen):
		return "breaker_open", "the estimation service is temporarily unavailable"
	case errors.Is(err, model.ErrMalformedOutput):
		return "malformed_output", "the estimation service returned an unreadable answer"
	default:
		return "model_error", "the estimation service failed"
	}
}

func (e *Estimator) resolveTrip(ctx context.Context, req Request) (model.Trip, []string) {
	trip := req.Trip
	if e.distance == nil {
		return trip, []string{"distance lookup is not configured; travel time counted as 0"}
	}
	res, err := resilience.Call(ctx, e.distPol, func(ctx context.Context) (*distance.Result, error) {
		r, err := e.distance.Lookup(ctx, req.OriginAddress, req.DestinationAddress)
		var se *distance.StatusError
		if errors.As(err, &se) {
			return nil, resilience.Transient(err, se.StatusCode)
		}
		return r, err
	})
	if err != nil {
		zap.L().Warn("estimate: distance lookup failed", zap.Error(err))
		return trip, []string{"distance lookup failed; travel time counted as 0"}
	}
	if e.costs != nil {
		zap.L().Info("cost attribution",
			zap.String("service", "distance"),
			zap.Float64("estimated_cost_usd", e.costs.Distance(1)),
		)
	}
	trip.DistanceMiles = round2(res.Miles)
	trip.TravelMinutes = round2(res.Minutes)
	return trip, nil
}

func (e *Estimator) cached(ctx context.Context, fp string) *model.MoveEstimate {
	if e.store == nil {
		return nil
	}
	data, err := e.store.GetCachedEstimate(ctx, fp)
	if err != nil {
		zap.L().Warn("estimate: cache lookup failed", zap.Error(err))
		return nil
	}
	e.metrics.CacheLookup(data != nil)
	if data == nil {
		return nil
	}
	var est model.MoveEstimate
	if err := json.Unmarshal(data, &est); err != nil {
		zap.L().Warn("estimate: corrupt cache entry", zap.Error(err))
		return nil
	}
	return &est
}

func (e *Estimator) storeCache(ctx context.Context, fp string, est *model.MoveEstimate) {
	if e.store == nil {
		return
	}
	ttl := time.Duration(e.cfg.CacheTTLMins) * time.Minute
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(est)
	if err != nil {
		zap.L().Warn("estimate: marshal cache entry", zap.Error(err))
		return
	}
	if err := e.store.SetCachedEstimate(ctx, fp, data, ttl); err != nil {
		zap.L().Warn("estimate: cache write failed", zap.Error(err))
	}
}

func (e *Estimator) startRun(ctx context.Context, req Request) string {
	if e.store == nil {
		return ""
	}
	input, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	run, err := e.store.CreateRun(ctx, model.RunKindEstimate, input)
	if err != nil {
		zap.L().Warn("estimate: failed to create run", zap.Error(err))
		return ""
	}
	return run.ID
}

func (e *Estimator) finishRun(ctx context.Context, runID string, status model.RunStatus, est *model.MoveEstimate) {
	if e.store == nil || runID == "" {
		return
	}
	data, err := json.Marshal(est)
	if err != nil {
		zap.L().Warn("estimate: marshal run result", zap.Error(err))
	}
	if err := e.store.FinishRun(ctx, runID, status, data, est.DegradedReason); err != nil {
		zap.L().Warn("estimate: failed to finish run", zap.String("run_id", runID), zap.Error(eris.Wrap(err, "finish run")))
	}
}
