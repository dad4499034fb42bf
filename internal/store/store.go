// Package store persists the run log and the estimate fingerprint cache.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/owoblo/quote2move/internal/model"
)

// ErrNotFound is returned when a run or phase does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Kind   model.RunKind   `json:"kind,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for detection and estimate runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, kind model.RunKind, input []byte) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, result []byte, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error

	// Estimate cache, keyed by request fingerprint. A miss returns nil, nil.
	GetCachedEstimate(ctx context.Context, fingerprint string) ([]byte, error)
	SetCachedEstimate(ctx context.Context, fingerprint string, data []byte, ttl time.Duration) error
	DeleteExpiredEstimates(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(f RunFilter) int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}
