// Package pipeline runs inventory detection: room classification, per-room
// detection and anomaly validation.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/owoblo/quote2move/internal/config"
	"github.com/owoblo/quote2move/internal/llm"
	"github.com/owoblo/quote2move/internal/metrics"
	"github.com/owoblo/quote2move/internal/model"
	"github.com/owoblo/quote2move/internal/store"
)

// Phase names recorded in the run log.
const (
	PhaseClassify = "classify"
	PhaseDetect   = "detect"
	PhaseValidate = "validate"
)

// DetectionRequest is the input to a detection run.
type DetectionRequest struct {
	PhotoURLs       []string              `json:"photoUrls"`
	PropertyContext model.PropertyContext `json:"propertyContext"`
}

// Validate checks the request shape.
func (r DetectionRequest) Validate() error {
	if len(r.PhotoURLs) == 0 {
		return model.NewValidationError("photoUrls", "is required")
	}
	for _, u := range r.PhotoURLs {
		if strings.TrimSpace(u) == "" {
			return model.NewValidationError("photoUrls", "must not contain empty entries")
		}
	}
	pc := r.PropertyContext
	if pc.PropertyType != "" && !pc.PropertyType.Valid() {
		return model.NewValidationError("propertyContext.propertyType", "is not a known property type")
	}
	if pc.Bedrooms != nil && *pc.Bedrooms < 0 {
		return model.NewValidationError("propertyContext.bedrooms", "must not be negative")
	}
	if pc.Bathrooms != nil && *pc.Bathrooms < 0 {
		return model.NewValidationError("propertyContext.bathrooms", "must not be negative")
	}
	if pc.Sqft != nil && *pc.Sqft < 0 {
		return model.NewValidationError("propertyContext.sqft", "must not be negative")
	}
	return nil
}

// DetectionMetadata summarizes how the photos were grouped.
type DetectionMetadata struct {
	TotalRooms      int                      `json:"totalRooms"`
	TotalPhotos     int                      `json:"totalPhotos"`
	PropertyContext model.PropertyContext    `json:"propertyContext"`
	Rooms           model.RoomClassification `json:"rooms"`
}

// DetectionResult is the output of a detection run.
type DetectionResult struct {
	RunID      string                 `json:"runId,omitempty"`
	Detections []model.Detection      `json:"detections"`
	Validation model.ValidationResult `json:"validation"`
	Metadata   DetectionMetadata      `json:"metadata"`
	Phases     []model.PhaseResult    `json:"phases,omitempty"`
	Usage      model.TokenUsage       `json:"usage"`
}

// Pipeline orchestrates the three detection phases.
type Pipeline struct {
	store      store.Store
	classifier *RoomClassifier
	detector   *RoomDetector
	metrics    *metrics.Metrics
}

// New creates a detection Pipeline. st and m may be nil.
func New(cfg config.VisionConfig, client llm.Client, st store.Store, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		store:      st,
		classifier: NewRoomClassifier(client, cfg),
		detector:   NewRoomDetector(client, cfg),
		metrics:    m,
	}
}

// Run classifies, detects and validates. Any phase failure fails the run;
// there is no partial result.
func (p *Pipeline) Run(ctx context.Context, req DetectionRequest) (*DetectionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.Int("photos", len(req.PhotoURLs)))
	result := &DetectionResult{
		Detections: []model.Detection{},
		Validation: model.ValidationResult{Anomalies: []string{}},
	}

	runID := p.startRun(ctx, req)
	result.RunID = runID
	if runID != "" {
		log = log.With(zap.String("run_id", runID))
	}

	trackPhase := func(name string, fn func() (*model.PhaseResult, error)) error {
		var phase *model.RunPhase
		if p.store != nil && runID != "" {
			var phaseErr error
			phase, phaseErr = p.store.CreatePhase(ctx, runID, name)
			if phaseErr != nil {
				log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(phaseErr))
			}
		}

		start := time.Now()
		phaseResult, fnErr := fn()
		elapsed := time.Since(start)

		if phaseResult == nil {
			phaseResult = &model.PhaseResult{}
		}
		phaseResult.Name = name
		phaseResult.Duration = elapsed.Milliseconds()

		if fnErr != nil {
			phaseResult.Status = model.PhaseStatusFailed
			phaseResult.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", phaseResult.Duration),
				zap.Error(fnErr),
			)
		} else {
			phaseResult.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", phaseResult.Duration),
			)
		}
		p.metrics.ObservePhase(name, string(phaseResult.Status), elapsed)

		if phase != nil {
			if err := p.store.CompletePhase(ctx, phase.ID, phaseResult); err != nil {
				log.Warn("pipeline: failed to complete phase", zap.String("phase", name), zap.Error(err))
			}
		}
		result.Phases = append(result.Phases, *phaseResult)
		result.Usage.Add(phaseResult.TokenUsage)
		return fnErr
	}

	// Phase 1: group photos into rooms.
	var rooms model.RoomClassification
	err := trackPhase(PhaseClassify, func() (*model.PhaseResult, error) {
		rc, usage, err := p.classifier.Classify(ctx, req.PhotoURLs, req.PropertyContext)
		if err != nil {
			return &model.PhaseResult{TokenUsage: usage}, err
		}
		rooms = rc
		return &model.PhaseResult{
			TokenUsage: usage,
			Metadata:   map[string]any{"rooms": len(rc)},
		}, nil
	})
	if err != nil {
		return nil, p.failRun(ctx, runID, err)
	}

	// Phase 2: per-room detection.
	err = trackPhase(PhaseDetect, func() (*model.PhaseResult, error) {
		dets, usage, err := p.detector.DetectAll(ctx, rooms, req.PropertyContext)
		if err != nil {
			return &model.PhaseResult{TokenUsage: usage}, err
		}
		result.Detections = dets
		return &model.PhaseResult{
			TokenUsage: usage,
			Metadata:   map[string]any{"items": len(dets)},
		}, nil
	})
	if err != nil {
		return nil, p.failRun(ctx, runID, err)
	}

	// Phase 3: advisory validation.
	_ = trackPhase(PhaseValidate, func() (*model.PhaseResult, error) {
		result.Validation = ValidateInventory(result.Detections, req.PropertyContext)
		return &model.PhaseResult{
			Metadata: map[string]any{"anomalies": len(result.Validation.Anomalies)},
		}, nil
	})
	p.metrics.Anomalies(len(result.Validation.Anomalies))

	result.Metadata = DetectionMetadata{
		TotalRooms:      len(rooms),
		TotalPhotos:     rooms.PhotoCount(),
		PropertyContext: req.PropertyContext,
		Rooms:           rooms,
	}

	p.finishRun(ctx, runID, model.RunStatusComplete, result, "")
	log.Info("pipeline: detection complete",
		zap.Int("rooms", len(rooms)),
		zap.Int("items", len(result.Detections)),
		zap.Int("anomalies", len(result.Validation.Anomalies)),
		zap.Float64("cost_usd", result.Usage.CostUSD),
	)
	return result, nil
}

func (p *Pipeline) startRun(ctx context.Context, req DetectionRequest) string {
	if p.store == nil {
		return ""
	}
	input, err := json.Marshal(req)
	if err != nil {
		zap.L().Warn("pipeline: marshal run input", zap.Error(err))
		return ""
	}
	run, err := p.store.CreateRun(ctx, model.RunKindDetection, input)
	if err != nil {
		zap.L().Warn("pipeline: failed to create run", zap.Error(err))
		return ""
	}
	return run.ID
}

func (p *Pipeline) failRun(ctx context.Context, runID string, err error) error {
	p.finishRun(ctx, runID, model.RunStatusFailed, nil, err.Error())
	return eris.Wrap(err, "pipeline: detection")
}

func (p *Pipeline) finishRun(ctx context.Context, runID string, status model.RunStatus, result *DetectionResult, errMsg string) {
	if p.store == nil || runID == "" {
		return
	}
	var data []byte
	if result != nil {
		var err error
		if data, err = json.Marshal(result); err != nil {
			zap.L().Warn("pipeline: marshal run result", zap.Error(err))
		}
	}
	if err := p.store.FinishRun(ctx, runID, status, data, errMsg); err != nil {
		zap.L().Warn("pipeline: failed to finish run", zap.String("run_id", runID), zap.Error(err))
	}
}
