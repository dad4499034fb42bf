package estimate

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/owoblo/quote2move/internal/config"
	"github.com/owoblo/quote2move/internal/llm"
	"github.com/owoblo/quote2move/internal/metrics"
	"github.com/owoblo/quote2move/internal/model"
	"github.com/owoblo/quote2move/internal/store"
	"github.com/owoblo/quote2move/pkg/distance"
	"github.com/owoblo/quote2move/pkg/distance/mocks"
)

const judgmentJSON = `{"recommendedCrew":3,"elevatorWaitsExpected":false,"hoistingFloors":0,
"specialtyNotes":[],"rationale":"Standard move.",
"upsells":[{"id":"Crate Handling","name":"Crate Handling","description":"Extra care","price":50}]}`

func newMemoryStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

// countingClient replies with text and counts calls.
func countingClient(text string, calls *atomic.Int32) llm.ClientFunc {
	return func(_ context.Context, req llm.Request) (*llm.Response, error) {
		calls.Add(1)
		if req.Stage != model.StageEstimate {
			return nil, errors.New("unexpected stage")
		}
		return &llm.Response{Text: text, CostUSD: 0.003}, nil
	}
}

func crateRequest() Request {
	return Request{
		Detections: []model.Detection{{Label: "Crate", Qty: 1, CubicFeet: model.Float(500)}},
		Trip:       model.Trip{DistanceMiles: 12, TravelMinutes: 30},
	}
}

func estimatorConfig() config.EstimatorConfig {
	return config.EstimatorConfig{
		Model:         "test-model",
		TimeoutSecs:   5,
		CacheTTLMins:  60,
		FallbackCrew:  2,
		FallbackHours: 3,
	}
}

func TestEstimator_Estimate(t *testing.T) {
	var calls atomic.Int32
	st := newMemoryStore(t)
	e := New(Options{
		Client:  countingClient(judgmentJSON, &calls),
		Config:  estimatorConfig(),
		Store:   st,
		Metrics: metrics.New(),
	})

	res, err := e.Estimate(context.Background(), crateRequest())
	require.NoError(t, err)

	est := res.Estimate
	require.NotNil(t, est)
	assert.False(t, res.Cached)
	assert.False(t, est.Degraded)
	assert.Equal(t, 3, est.CrewSize)
	assert.InDelta(t, 6.88, est.HoursStandard, 1e-9)
	assert.InDelta(t, 1788.11, est.PostTaxTotal, 1e-6)
	assert.Equal(t, "Standard move.", est.Rationale)
	assert.Len(t, est.Fingerprint, 64)
	require.Len(t, est.DetectedUpsells, 1)
	assert.Equal(t, "crate-handling", est.DetectedUpsells[0].ID)
	assert.Equal(t, 50.0, est.DetectedUpsells[0].Price)
	assert.Equal(t, 1, res.TruckPlan.TrucksNeeded)
	assert.InDelta(t, 500, res.Volume.TotalCubicFeet, 1e-9)
	assert.Empty(t, res.Warnings)
	assert.InDelta(t, 0.003, res.Usage.CostUSD, 1e-9)

	require.NotEmpty(t, res.RunID)
	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, model.RunKindEstimate, run.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEstimator_CacheHit(t *testing.T) {
	var calls atomic.Int32
	e := New(Options{
		Client: countingClient(judgmentJSON, &calls),
		Config: estimatorConfig(),
		Store:  newMemoryStore(t),
	})

	first, err := e.Estimate(context.Background(), crateRequest())
	require.NoError(t, err)
	second, err := e.Estimate(context.Background(), crateRequest())
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Empty(t, second.RunID)
	assert.Equal(t, first.Estimate.PostTaxTotal, second.Estimate.PostTaxTotal)
	assert.Equal(t, first.Estimate.Fingerprint, second.Estimate.Fingerprint)
	assert.Equal(t, int32(1), calls.Load())

	// A different inventory is a different fingerprint.
	req := crateRequest()
	req.Detections[0].Qty = 2
	third, err := e.Estimate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEstimator_CacheDisabled(t *testing.T) {
	var calls atomic.Int32
	cfg := estimatorConfig()
	cfg.CacheTTLMins = 0
	e := New(Options{Client: countingClient(judgmentJSON, &calls), Config: cfg, Store: newMemoryStore(t)})

	for range 2 {
		res, err := e.Estimate(context.Background(), crateRequest())
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestEstimator_ConcurrentIdenticalRequestsShareOneCall(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	client := llm.ClientFunc(func(_ context.Context, _ llm.Request) (*llm.Response, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		return &llm.Response{Text: judgmentJSON}, nil
	})
	e := New(Options{Client: client, Config: estimatorConfig(), Store: newMemoryStore(t)})

	const n = 8
	var wg sync.WaitGroup
	results := make([]*Result, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.Estimate(context.Background(), crateRequest())
		}()
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range n {
		require.NoError(t, errs[i])
		assert.InDelta(t, 1788.11, results[i].Estimate.PostTaxTotal, 1e-6)
	}
}

func TestEstimator_Fallback(t *testing.T) {
	tests := []struct {
		name       string
		client     llm.ClientFunc
		cfg        func(*config.EstimatorConfig)
		wantReason string
	}{
		{
			name: "model error",
			client: func(context.Context, llm.Request) (*llm.Response, error) {
				return nil, errors.New("upstream 500")
			},
			wantReason: "the estimation service failed",
		},
		{
			name: "malformed reply",
			client: func(context.Context, llm.Request) (*llm.Response, error) {
				return &llm.Response{Text: "I think three movers will do."}, nil
			},
			wantReason: "the estimation service returned an unreadable answer",
		},
		{
			name: "timeout",
			client: func(ctx context.Context, _ llm.Request) (*llm.Response, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			cfg:        func(c *config.EstimatorConfig) { c.TimeoutSecs = 1 },
			wantReason: "the estimation service timed out",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := estimatorConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			st := newMemoryStore(t)
			e := New(Options{Client: tt.client, Config: cfg, Store: st, Metrics: metrics.New()})

			res, err := e.Estimate(context.Background(), crateRequest())
			require.NoError(t, err)

			est := res.Estimate
			assert.True(t, est.Degraded)
			assert.Equal(t, tt.wantReason, est.DegradedReason)
			assert.Equal(t, 2, est.CrewSize)
			assert.Empty(t, est.SpecialtyItems)
			assert.GreaterOrEqual(t, est.HoursStandard, 3.0)
			assert.GreaterOrEqual(t, est.HoursConservative, est.HoursStandard)
			assert.Contains(t, res.Warnings, "estimate is degraded: "+tt.wantReason)

			run, err := st.GetRun(context.Background(), res.RunID)
			require.NoError(t, err)
			assert.Equal(t, model.RunStatusDegraded, run.Status)

			// Degraded answers are not cached.
			data, err := st.GetCachedEstimate(context.Background(), est.Fingerprint)
			require.NoError(t, err)
			assert.Nil(t, data)
		})
	}
}

func TestEstimator_AddressLookup(t *testing.T) {
	var calls atomic.Int32
	dist := mocks.NewMockClient(t)
	dist.On("Lookup", mock.Anything, "1 Main St", "9 Elm St").
		Return(&distance.Result{Miles: 12.345, Minutes: 30}, nil).Once()

	e := New(Options{
		Client:   countingClient(judgmentJSON, &calls),
		Config:   estimatorConfig(),
		Distance: dist,
	})

	req := crateRequest()
	req.DistanceMiles, req.TravelMinutes = 0, 0
	req.OriginAddress, req.DestinationAddress = "1 Main St", "9 Elm St"

	res, err := e.Estimate(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 12.35, res.Trip.DistanceMiles, 1e-9)
	assert.InDelta(t, 30, res.Trip.TravelMinutes, 1e-9)
	assert.InDelta(t, 1.0, res.Estimate.Breakdown.Travel, 1e-9)
	assert.Empty(t, res.Warnings)
}

func TestEstimator_AddressLookupFailure(t *testing.T) {
	var calls atomic.Int32
	dist := mocks.NewMockClient(t)
	dist.On("Lookup", mock.Anything, "1 Main St", "Nowhere").
		Return(nil, distance.ErrNotFound)

	st := newMemoryStore(t)
	e := New(Options{
		Client:   countingClient(judgmentJSON, &calls),
		Config:   estimatorConfig(),
		Store:    st,
		Distance: dist,
	})

	req := crateRequest()
	req.DistanceMiles, req.TravelMinutes = 0, 0
	req.OriginAddress, req.DestinationAddress = "1 Main St", "Nowhere"

	for range 2 {
		res, err := e.Estimate(context.Background(), req)
		require.NoError(t, err)
		assert.Contains(t, res.Warnings, "distance lookup failed; travel time counted as 0")
		assert.False(t, res.Cached)
		assert.Zero(t, res.Estimate.Breakdown.Travel)
	}
	// Not cached, so the model is asked again.
	assert.Equal(t, int32(2), calls.Load())
}

func TestEstimator_NoDistanceClient(t *testing.T) {
	var calls atomic.Int32
	e := New(Options{Client: countingClient(judgmentJSON, &calls), Config: estimatorConfig()})

	req := crateRequest()
	req.DistanceMiles, req.TravelMinutes = 0, 0
	req.OriginAddress, req.DestinationAddress = "a", "b"

	res, err := e.Estimate(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, res.Warnings, "distance lookup is not configured; travel time counted as 0")
}

func TestEstimator_RateAmbiguousWarning(t *testing.T) {
	var calls atomic.Int32
	reply := `{"recommendedCrew":5,"rationale":"Big move."}`
	e := New(Options{Client: countingClient(reply, &calls), Config: estimatorConfig()})

	req := crateRequest()
	req.Detections[0].CubicFeet = model.Float(2500)

	res, err := e.Estimate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Estimate.RateAmbiguous)
	assert.Equal(t, 400.0, res.Estimate.CrewRate)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "no multi-truck rate configured for crew of 5 with 2 trucks")
}

func TestEstimator_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		req   func(*Request)
		field string
	}{
		{name: "negative distance", req: func(r *Request) { r.DistanceMiles = -1 }, field: "distance"},
		{name: "NaN travel", req: func(r *Request) { r.TravelMinutes = math.NaN() }, field: "travelTime"},
		{name: "bad building", req: func(r *Request) { r.Origin.Building = "castle" }, field: "origin.building"},
		{name: "bad parking", req: func(r *Request) { r.Destination.Parking = "roof" }, field: "destination.parking"},
		{name: "negative floor", req: func(r *Request) { r.Origin.Floor = floor(-2) }, field: "origin.floor"},
		{name: "negative qty", req: func(r *Request) { r.Detections[0].Qty = -1 }, field: "detections.qty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			e := New(Options{Client: countingClient(judgmentJSON, &calls), Config: estimatorConfig()})
			req := crateRequest()
			tt.req(&req)

			_, err := e.Estimate(context.Background(), req)
			var ve *model.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Zero(t, calls.Load())
		})
	}
}

func TestSanitizeJudgment(t *testing.T) {
	totals := model.VolumeTotals{TotalCubicFeet: 1200}
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name      string
		reply     judgmentReply
		wantCrew  int
		wantHoist int
		wantWaits bool
	}{
		{name: "empty reply", reply: judgmentReply{}, wantCrew: 4, wantWaits: true},
		{name: "valid crew", reply: judgmentReply{RecommendedCrew: f(5)}, wantCrew: 5, wantWaits: true},
		{name: "crew too large", reply: judgmentReply{RecommendedCrew: f(9)}, wantCrew: 4, wantWaits: true},
		{name: "fractional crew", reply: judgmentReply{RecommendedCrew: f(2.5)}, wantCrew: 4, wantWaits: true},
		{name: "infinite crew", reply: judgmentReply{RecommendedCrew: f(math.Inf(1))}, wantCrew: 4, wantWaits: true},
		{name: "hoisting capped", reply: judgmentReply{HoistingFloors: f(40)}, wantCrew: 4, wantHoist: 10, wantWaits: true},
		{name: "negative hoisting", reply: judgmentReply{HoistingFloors: f(-3)}, wantCrew: 4, wantWaits: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := sanitizeJudgment(tt.reply, totals)
			assert.Equal(t, tt.wantCrew, j.RecommendedCrew)
			assert.Equal(t, tt.wantHoist, j.HoistingFloors)
			assert.Equal(t, tt.wantWaits, j.ElevatorWaitsExpected)
		})
	}
}

func TestSanitizeJudgment_NotesAndUpsells(t *testing.T) {
	var reply judgmentReply
	require.NoError(t, llm.DecodeJSON(`{
		"specialtyNotes":[{"label":" Piano ","note":"Baby GRAND"},{"label":"","note":"x"}],
		"upsells":[
			{"id":"","name":"Mattress Bags","price":-5},
			{"id":"!!","name":""},
			{"id":"storage","name":"Storage","price":99.999,"required":true}
		]}`, &reply))

	j := sanitizeJudgment(reply, model.VolumeTotals{})
	assert.Equal(t, map[string]string{"piano": "baby grand"}, j.SpecialtyNotes)
	require.Len(t, j.Upsells, 2)
	assert.Equal(t, "mattress-bags", j.Upsells[0].ID)
	assert.Zero(t, j.Upsells[0].Price)
	assert.Equal(t, "storage", j.Upsells[1].ID)
	assert.Equal(t, 100.0, j.Upsells[1].Price)
	assert.True(t, j.Upsells[1].Required)
}

func TestCrewForVolume(t *testing.T) {
	assert.Equal(t, 2, CrewForVolume(0))
	assert.Equal(t, 2, CrewForVolume(400))
	assert.Equal(t, 3, CrewForVolume(401))
	assert.Equal(t, 4, CrewForVolume(1500))
	assert.Equal(t, 5, CrewForVolume(2500))
	assert.Equal(t, 6, CrewForVolume(2501))
}

func TestFingerprint(t *testing.T) {
	p := DefaultPolicy()
	d := []model.Detection{{Label: "Sofa", Qty: 1}}
	trip := model.Trip{TravelMinutes: 20}

	a, err := Fingerprint(d, trip, p, "m")
	require.NoError(t, err)
	b, err := Fingerprint(model.CloneDetections(d), trip, p, "m")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	resolved := d[0]
	resolved.ResolvedCubicFeet = 35
	c, err := Fingerprint([]model.Detection{resolved}, trip, p, "m")
	require.NoError(t, err)
	assert.Equal(t, a, c, "resolved fields are ignored")

	other, err := Fingerprint(d, trip, p, "other-model")
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	p.TaxRate = 0.05
	taxed, err := Fingerprint(d, trip, p, "m")
	require.NoError(t, err)
	assert.NotEqual(t, a, taxed)
}
