package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/owoblo/quote2move/internal/model"
	"github.com/owoblo/quote2move/internal/pipeline"
	"github.com/owoblo/quote2move/internal/store"
	"github.com/owoblo/quote2move/internal/truck"
	"github.com/owoblo/quote2move/internal/upsell"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(r.Context()); err != nil {
			zap.L().Warn("api: health check store ping failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req pipeline.DetectionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		validationError(w, err)
		return
	}

	res, err := s.deps.Detector.Run(r.Context(), req)
	if err != nil {
		if validationError(w, err) {
			return
		}
		zap.L().Error("api: detection failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Detection failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := s.deps.Estimator.Estimate(r.Context(), req.ToEstimate())
	if err != nil {
		if validationError(w, err) {
			return
		}
		zap.L().Error("api: estimate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Estimate failed", err.Error())
		return
	}

	var ups []model.Upsell
	if s.deps.Upsells != nil {
		ups = s.deps.Upsells.Build(upsell.Input{Detections: res.Volume.Detections, Estimate: res.Estimate})
		ups = upsell.ApplySelections(ups, req.PreviousUpsells)
	}
	if ups == nil {
		ups = []model.Upsell{}
	}

	writeJSON(w, http.StatusOK, EstimateResponse{
		RunID:     res.RunID,
		Volume:    res.Volume,
		TruckPlan: res.TruckPlan,
		Estimate:  res.Estimate,
		Trip:      res.Trip,
		Upsells:   ups,
		Warnings:  res.Warnings,
		Cached:    res.Cached,
	})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "id is required")
		return
	}

	list, err := upsell.Toggle(req.Upsells, req.ID)
	if err != nil {
		if validationError(w, err) {
			return
		}
		writeError(w, http.StatusInternalServerError, "Toggle failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Upsells: list, SelectedTotal: upsell.SelectedTotal(list)})
}

func (s *Server) handleTruckPlan(w http.ResponseWriter, r *http.Request) {
	var req truckPlanRequest
	if !decode(w, r, &req) {
		return
	}
	if req.TotalCubicFeet == nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "totalCubicFeet is required")
		return
	}
	v := *req.TotalCubicFeet
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", "totalCubicFeet must be a non-negative number")
		return
	}

	capacity := truck.DefaultCapacity
	if s.deps.Estimator != nil {
		capacity = s.deps.Estimator.Policy().TruckCapacity
	}
	writeJSON(w, http.StatusOK, truck.NewPlanner(capacity).Plan(v))
}

// runView renders stored JSON payloads inline instead of base64.
type runView struct {
	ID        string          `json:"id"`
	Kind      model.RunKind   `json:"kind"`
	Status    model.RunStatus `json:"status"`
	Input     json.RawMessage `json:"input,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
}

func newRunView(r model.Run) runView {
	v := runView{
		ID:        r.ID,
		Kind:      r.Kind,
		Status:    r.Status,
		Error:     r.Error,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if json.Valid(r.Input) {
		v.Input = r.Input
	}
	if json.Valid(r.Result) {
		v.Result = r.Result
	}
	return v
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "run log is not configured")
		return
	}

	q := r.URL.Query()
	filter := store.RunFilter{
		Kind:   model.RunKind(q.Get("kind")),
		Status: model.RunStatus(q.Get("status")),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid request", name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	runs, err := s.deps.Store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "List runs failed", err.Error())
		return
	}
	views := make([]runView, len(runs))
	for i, run := range runs {
		views[i] = newRunView(run)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": views})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "run log is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.deps.Store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not found", "run "+id+" not found")
			return
		}
		zap.L().Error("api: get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Get run failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newRunView(*run))
}
