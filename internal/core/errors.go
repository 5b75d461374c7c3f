package core

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Predefined Error Values
// =============================================================================

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrStageTimeout         = errors.New("stage timed out")
	ErrStageProvider        = errors.New("stage provider error")
	ErrStageInvalidOutput   = errors.New("stage produced invalid output")
	ErrPlanExecutionFailure = errors.New("plan execution failed")
	ErrAllStrategiesFailed  = errors.New("all strategies failed")
	ErrQueueFull            = errors.New("admission queue full")
)

// =============================================================================
// Core Error Types
// =============================================================================

// StageError describes a single failed stage invocation. Kind is one of the
// stage sentinels above and Cause is the backend error, if any.
type StageError struct {
	Stage       StageName
	Kind        error
	Cause       error
	Attempt     int
	Recoverable bool
	Timestamp   time.Time
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stage %s: %v (attempt %d): %v", e.Stage, e.Kind, e.Attempt, e.Cause)
	}
	return fmt.Sprintf("stage %s: %v (attempt %d)", e.Stage, e.Kind, e.Attempt)
}

func (e *StageError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Condition maps the error kind onto the fallback rule key.
func (e *StageError) Condition() FailureCondition {
	switch {
	case errors.Is(e.Kind, ErrStageTimeout):
		return ConditionTimeout
	case errors.Is(e.Kind, ErrStageInvalidOutput):
		return ConditionInvalidOutput
	default:
		return ConditionProviderError
	}
}

// PlanError is the terminal error of a plan whose generate stage could not be
// recovered.
type PlanError struct {
	PlanID string
	Stage  StageName
	Cause  error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan %s failed at %s: %v", e.PlanID, e.Stage, e.Cause)
}

func (e *PlanError) Unwrap() []error {
	return []error{ErrPlanExecutionFailure, e.Cause}
}

// RequestError reports a malformed request. It is returned before any plan
// is built.
type RequestError struct {
	Field   string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Message)
}

func (e *RequestError) Unwrap() error {
	return ErrInvalidRequest
}

// =============================================================================
// Error Creation Helpers
// =============================================================================

// NewStageError builds a StageError. Only generate failures start out
// unrecoverable.
func NewStageError(stage StageName, kind error, attempt int, cause error) *StageError {
	return &StageError{
		Stage:       stage,
		Kind:        kind,
		Cause:       cause,
		Attempt:     attempt,
		Recoverable: stage != StageGenerate,
		Timestamp:   time.Now(),
	}
}

func invalidRequest(field, message string) error {
	return &RequestError{Field: field, Message: message}
}

// =============================================================================
// Error Classification Functions
// =============================================================================

// IsTimeout reports whether err is a stage timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrStageTimeout)
}

// IsRecoverable reports whether a stage error may be absorbed without failing
// the plan.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Recoverable
	}
	return !errors.Is(err, ErrPlanExecutionFailure) && !errors.Is(err, ErrInvalidRequest)
}
