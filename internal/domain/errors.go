package domain

import (
	"errors"
	"fmt"
)

// Common domain errors surfaced by the evaluation pipeline.
var (
	// ErrEvaluationUnavailable indicates that every dimension evaluator
	// failed terminally and no composite score could be produced.
	ErrEvaluationUnavailable = errors.New("evaluation unavailable: all dimensions failed")

	// ErrQuestionNotFound indicates that an answer references a
	// question not present in the job's question set.
	ErrQuestionNotFound = errors.New("question not found in question set")

	// ErrFrameworkNotFound indicates that no competency framework
	// exists for the requested job context.
	ErrFrameworkNotFound = errors.New("competency framework not found")

	// ErrNotFound indicates that a requested entity does not exist in
	// the store.
	ErrNotFound = errors.New("entity not found")
)

// ValidationError collects one or more validation failures for an
// entity. It is returned by framework and question-set validation.
type ValidationError struct {
	// Entity names the entity that failed validation.
	Entity string

	// Errors lists the individual validation failures.
	Errors []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError appends a validation failure message.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors reports whether any failures were recorded.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates an empty ValidationError for the entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity}
}

// FrameworkValidationError indicates that a generated competency
// framework failed structural validation even after the corrective
// retry. The invalid framework is attached for caller inspection.
type FrameworkValidationError struct {
	// JobContextID references the job the framework was generated for.
	JobContextID string

	// Reason describes what made the framework invalid.
	Reason error
}

// Error implements the error interface.
func (e *FrameworkValidationError) Error() string {
	return fmt.Sprintf("framework validation failed for job %s: %v", e.JobContextID, e.Reason)
}

// Unwrap returns the underlying validation failure.
func (e *FrameworkValidationError) Unwrap() error { return e.Reason }

// CoverageError indicates that one or more competencies remained
// uncovered by questions after the corrective generation pass. The
// partial question set is attached so the caller can decide whether to
// proceed with partial coverage or abort.
type CoverageError struct {
	// UncoveredCompetencyIDs lists competencies without questions.
	UncoveredCompetencyIDs []string

	// Partial is the question set that was generated, covering the
	// remaining competencies.
	Partial *QuestionSet
}

// Error implements the error interface.
func (e *CoverageError) Error() string {
	return fmt.Sprintf("question coverage incomplete: %d competencies uncovered: %v",
		len(e.UncoveredCompetencyIDs), e.UncoveredCompetencyIDs)
}

// ScoringError indicates a non-fatal percentile computation problem,
// such as an insufficient pool size. Reports downgrade the affected
// percentile to provisional rather than failing.
type ScoringError struct {
	// CohortKey identifies the affected scoring pool.
	CohortKey string

	// PoolSize is the pool size at computation time.
	PoolSize int

	// MinimumSize is the configured reliability threshold.
	MinimumSize int
}

// Error implements the error interface.
func (e *ScoringError) Error() string {
	return fmt.Sprintf("pool %s has %d samples, below minimum %d: percentile is provisional",
		e.CohortKey, e.PoolSize, e.MinimumSize)
}
