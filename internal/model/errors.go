package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Pipeline stage names used to tag model-call failures.
const (
	StageClassify = "classify"
	StageDetect   = "detect"
	StageEstimate = "estimate"
)

// ValidationError reports a malformed or missing request field. It maps to
// a client-facing 400 and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ModelCallError reports a failed or unparsable AI call, tagged with the
// pipeline stage it originated from.
type ModelCallError struct {
	Stage string
	Err   error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("%s: model call failed: %v", e.Stage, e.Err)
}

func (e *ModelCallError) Unwrap() error {
	return e.Err
}

// NewModelCallError wraps err with the stage it came from.
func NewModelCallError(stage string, err error) *ModelCallError {
	return &ModelCallError{Stage: stage, Err: err}
}

// ErrMalformedOutput is wrapped when a model reply cannot be parsed.
var ErrMalformedOutput = eris.New("malformed model output")

// EstimationFallbackError signals that the primary estimate could not be
// produced and the deterministic fallback was used instead.
type EstimationFallbackError struct {
	Err error
}

func (e *EstimationFallbackError) Error() string {
	return fmt.Sprintf("estimate: using fallback: %v", e.Err)
}

func (e *EstimationFallbackError) Unwrap() error {
	return e.Err
}
