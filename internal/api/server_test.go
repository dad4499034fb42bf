package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owoblo/quote2move/internal/config"
	"github.com/owoblo/quote2move/internal/estimate"
	"github.com/owoblo/quote2move/internal/llm"
	"github.com/owoblo/quote2move/internal/metrics"
	"github.com/owoblo/quote2move/internal/model"
	"github.com/owoblo/quote2move/internal/pipeline"
	"github.com/owoblo/quote2move/internal/store"
	"github.com/owoblo/quote2move/internal/upsell"
)

type detectorFunc func(ctx context.Context, req pipeline.DetectionRequest) (*pipeline.DetectionResult, error)

func (f detectorFunc) Run(ctx context.Context, req pipeline.DetectionRequest) (*pipeline.DetectionResult, error) {
	return f(ctx, req)
}

const judgmentJSON = `{"recommendedCrew":2,"elevatorWaitsExpected":true,"rationale":"Small move."}`

func newMemoryStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

type testEnv struct {
	handler http.Handler
	store   *store.SQLiteStore
}

func newTestEnv(t *testing.T, det Detector) *testEnv {
	t.Helper()
	st := newMemoryStore(t)
	m := metrics.New()

	client := llm.ClientFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: judgmentJSON}, nil
	})
	est := estimate.New(estimate.Options{
		Client:  client,
		Config:  config.EstimatorConfig{Model: "test", TimeoutSecs: 5, CacheTTLMins: 10, FallbackCrew: 2, FallbackHours: 3},
		Store:   st,
		Metrics: m,
	})
	ups, err := upsell.NewEngine(config.UpsellConfig{
		PackingPerItem: 10, UnpackingPerItem: 6, BoxesPerItem: 4, PackingThreshold: 25,
		PremiumThreshold: 1000, DeluxeThreshold: 2500, PremiumPrice: 100, DeluxePrice: 200,
	})
	require.NoError(t, err)

	if det == nil {
		det = detectorFunc(func(context.Context, pipeline.DetectionRequest) (*pipeline.DetectionResult, error) {
			return nil, errors.New("no detector")
		})
	}
	srv := NewServer(config.ServerConfig{AllowedOrigins: []string{"*"}, RequestTimeoutSecs: 30}, Deps{
		Detector:  det,
		Estimator: est,
		Upsells:   ups,
		Store:     st,
		Metrics:   m,
	})
	return &testEnv{handler: srv.Router(), store: st}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rr)["status"])

	require.NoError(t, env.store.Close())
	rr = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpoint_CountsRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).Code)
	env.do(t, http.MethodGet, "/v1/runs/does-not-exist", nil)

	rr := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `quote2move_http_requests_total{code="200",method="GET",route="/health"} 1`)
	assert.Contains(t, body, `quote2move_http_requests_total{code="404",method="GET",route="/v1/runs/{id}"} 1`)
	assert.Contains(t, body, "quote2move_http_request_duration_seconds")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/v1/estimates", nil)
	req.Header.Set("Origin", "https://quotes.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestDetect_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body any
		want string
	}{
		{name: "missing photoUrls", body: map[string]any{}, want: "photoUrls is required"},
		{name: "empty photoUrls", body: map[string]any{"photoUrls": []string{}}, want: "photoUrls is required"},
		{name: "invalid json", body: "{", want: "valid JSON"},
		{name: "empty body", body: nil, want: "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/v1/detections", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			body := decodeBody[errorBody](t, rr)
			assert.Equal(t, "Invalid request", body.Error)
			assert.Contains(t, body.Message, tt.want)
		})
	}
}

func TestDetect_Failure(t *testing.T) {
	env := newTestEnv(t, detectorFunc(func(context.Context, pipeline.DetectionRequest) (*pipeline.DetectionResult, error) {
		return nil, model.NewModelCallError(model.StageDetect, errors.New("room \"Kitchen\": upstream 500"))
	}))

	rr := env.do(t, http.MethodPost, "/v1/detections", map[string]any{"photoUrls": []string{"https://img/1.jpg"}})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeBody[errorBody](t, rr)
	assert.Equal(t, "Detection failed", body.Error)
	assert.Contains(t, body.Message, "Kitchen")
}

func TestDetect_Success(t *testing.T) {
	var got pipeline.DetectionRequest
	env := newTestEnv(t, detectorFunc(func(_ context.Context, req pipeline.DetectionRequest) (*pipeline.DetectionResult, error) {
		got = req
		return &pipeline.DetectionResult{
			Detections: []model.Detection{{Label: "Sofa", Qty: 1, Room: "Living Room"}},
			Validation: model.ValidationResult{Anomalies: []string{}},
			Metadata:   pipeline.DetectionMetadata{TotalRooms: 1, TotalPhotos: 1, PropertyContext: req.PropertyContext},
		}, nil
	}))

	rr := env.do(t, http.MethodPost, "/v1/detections", map[string]any{
		"photoUrls":       []string{"https://img/1.jpg"},
		"propertyContext": map[string]any{"bedrooms": 2, "propertyType": "condo"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeBody[map[string]any](t, rr)
	assert.Len(t, body["detections"], 1)
	assert.Contains(t, body, "validation")
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, 1.0, meta["totalRooms"])
	assert.Equal(t, 1.0, meta["totalPhotos"])

	require.NotNil(t, got.PropertyContext.Bedrooms)
	assert.Equal(t, 2, *got.PropertyContext.Bedrooms)
}

func estimateBody() map[string]any {
	return map[string]any{
		"detections": []map[string]any{
			{"label": "Sofa", "qty": 1},
			{"label": "Upright Piano", "qty": 1},
			{"label": "Flat Screen TV", "qty": 2, "notes": "wall mounted"},
		},
		"distance":            10,
		"travelTime":          20,
		"originType":          "apartment",
		"destinationType":     "house",
		"stairsOrigin":        true,
		"floorOrigin":         2,
		"elevatorDestination": false,
		"parkingOrigin":       "street",
		"parkingDestination":  "driveway",
	}
}

func TestEstimate(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/v1/estimates", estimateBody())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	res := decodeBody[EstimateResponse](t, rr)
	require.NotNil(t, res.Estimate)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Estimate.CrewSize)
	assert.GreaterOrEqual(t, res.Estimate.HoursStandard, 3.0)
	assert.InDelta(t, res.Volume.TotalCubicFeet, res.TruckPlan.TotalCubicFeet, 1e-9)
	assert.True(t, res.Trip.Origin.Stairs)
	assert.Equal(t, model.BuildingApartment, res.Trip.Origin.Building)

	ups := map[string]model.Upsell{}
	for _, u := range res.Upsells {
		ups[u.ID] = u
	}
	assert.True(t, ups["insurance-basic"].Selected)
	assert.True(t, ups["piano-handling"].Selected)
	assert.Equal(t, 70.0, ups["tv-boxes"].Price)
	assert.Equal(t, 150.0, ups["tv-disassembly"].Price)
	assert.False(t, ups["tv-disassembly"].Selected)
	assert.True(t, ups["specialty-piano"].Selected)
	assert.NotNil(t, res.Warnings)

	// Same request again is served from the cache.
	rr = env.do(t, http.MethodPost, "/v1/estimates", estimateBody())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeBody[EstimateResponse](t, rr).Cached)
}

func TestEstimate_CarriesSelections(t *testing.T) {
	env := newTestEnv(t, nil)

	body := estimateBody()
	body["previousUpsells"] = []model.Upsell{
		{ID: "insurance-premium", Selected: true},
		{ID: "piano-handling", Selected: false},
	}
	rr := env.do(t, http.MethodPost, "/v1/estimates", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	ups := map[string]model.Upsell{}
	for _, u := range decodeBody[EstimateResponse](t, rr).Upsells {
		ups[u.ID] = u
	}
	assert.True(t, ups["insurance-premium"].Selected)
	assert.False(t, ups["insurance-basic"].Selected)
	assert.False(t, ups["piano-handling"].Selected)
}

func TestEstimate_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name  string
		patch map[string]any
		want  string
	}{
		{name: "bad building", patch: map[string]any{"originType": "castle"}, want: "origin.building"},
		{name: "bad parking", patch: map[string]any{"parkingDestination": "roof"}, want: "destination.parking"},
		{name: "negative distance", patch: map[string]any{"distance": -3}, want: "distance"},
		{name: "negative floor", patch: map[string]any{"floorDestination": -1}, want: "destination.floor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := estimateBody()
			for k, v := range tt.patch {
				body[k] = v
			}
			rr := env.do(t, http.MethodPost, "/v1/estimates", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, decodeBody[errorBody](t, rr).Message, tt.want)
		})
	}
}

func TestToggle(t *testing.T) {
	env := newTestEnv(t, nil)
	list := []model.Upsell{
		{ID: "insurance-basic", Price: 0, Selected: true},
		{ID: "insurance-premium", Price: 100},
		{ID: "insurance-deluxe", Price: 200},
		{ID: "packing", Price: 50},
	}

	rr := env.do(t, http.MethodPost, "/v1/upsells/toggle", map[string]any{"upsells": list, "id": "insurance-deluxe"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeBody[toggleResponse](t, rr)
	assert.False(t, res.Upsells[0].Selected)
	assert.False(t, res.Upsells[1].Selected)
	assert.True(t, res.Upsells[2].Selected)
	assert.False(t, res.Upsells[3].Selected)
	assert.Equal(t, 200.0, res.SelectedTotal)

	rr = env.do(t, http.MethodPost, "/v1/upsells/toggle", map[string]any{"upsells": res.Upsells, "id": "packing"})
	require.Equal(t, http.StatusOK, rr.Code)
	res = decodeBody[toggleResponse](t, rr)
	assert.True(t, res.Upsells[2].Selected)
	assert.True(t, res.Upsells[3].Selected)
	assert.Equal(t, 250.0, res.SelectedTotal)
}

func TestToggle_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/v1/upsells/toggle", map[string]any{"upsells": []model.Upsell{{ID: "a"}}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/v1/upsells/toggle", map[string]any{"upsells": []model.Upsell{{ID: "a"}}, "id": "b"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody[errorBody](t, rr).Message, "id")
}

func TestTruckPlan(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/v1/trucks/plan", map[string]any{"totalCubicFeet": 2500})
	require.Equal(t, http.StatusOK, rr.Code)
	plan := decodeBody[model.TruckPlan](t, rr)
	assert.Equal(t, 2, plan.TrucksNeeded)
	assert.True(t, plan.ExceedsSingleTruck)
	assert.Equal(t, 1700.0, plan.CapacityPerTruck)

	rr = env.do(t, http.MethodPost, "/v1/trucks/plan", map[string]any{"totalCubicFeet": 1700})
	plan = decodeBody[model.TruckPlan](t, rr)
	assert.Equal(t, 1, plan.TrucksNeeded)
	assert.False(t, plan.ExceedsSingleTruck)

	rr = env.do(t, http.MethodPost, "/v1/trucks/plan", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/v1/trucks/plan", map[string]any{"totalCubicFeet": -1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRuns(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/v1/estimates", estimateBody())
	require.Equal(t, http.StatusOK, rr.Code)
	runID := decodeBody[EstimateResponse](t, rr).RunID

	rr = env.do(t, http.MethodGet, "/v1/runs?kind=estimate&limit=10", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody[struct {
		Runs []runView `json:"runs"`
	}](t, rr)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, runID, list.Runs[0].ID)
	assert.Equal(t, model.RunStatusComplete, list.Runs[0].Status)

	rr = env.do(t, http.MethodGet, "/v1/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	run := decodeBody[map[string]any](t, rr)
	result, ok := run["result"].(map[string]any)
	require.True(t, ok, "result is rendered as JSON")
	assert.Equal(t, 2.0, result["crewSize"])

	rr = env.do(t, http.MethodGet, "/v1/runs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/v1/runs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEstimateRequest_ToEstimate(t *testing.T) {
	floor := 3
	req := EstimateRequest{
		Distance:           5,
		TravelTime:         15,
		OriginType:         model.BuildingCondo,
		ElevatorOrigin:     true,
		FloorOrigin:        &floor,
		ParkingDestination: model.ParkingDifficult,
		StairsDestination:  true,
		OriginAddress:      "1 Main St",
	}
	got := req.ToEstimate()
	assert.Equal(t, 5.0, got.DistanceMiles)
	assert.Equal(t, 15.0, got.TravelMinutes)
	assert.Equal(t, model.BuildingCondo, got.Origin.Building)
	assert.True(t, got.Origin.Elevator)
	assert.Equal(t, 3, got.Origin.FloorNumber())
	assert.Equal(t, model.ParkingDifficult, got.Destination.Parking)
	assert.True(t, got.Destination.Stairs)
	assert.Equal(t, "1 Main St", got.OriginAddress)
}
