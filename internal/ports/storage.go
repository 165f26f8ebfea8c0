package ports

import (
	"context"

	"github.com/hireloop/interview-engine/internal/domain"
)

// EvaluationStore is the durable storage contract for evaluation
// entities. The engine never assumes a specific schema engine, only
// that writes are durable before being reported successful and that
// reads reflect the latest committed write for a given id.
type EvaluationStore interface {
	// SaveJobContext persists a job context.
	SaveJobContext(ctx context.Context, job domain.JobContext) error

	// GetJobContext loads a job context by ID.
	// Returns domain.ErrNotFound when absent.
	GetJobContext(ctx context.Context, id string) (domain.JobContext, error)

	// SaveFramework persists a competency framework.
	SaveFramework(ctx context.Context, framework domain.CompetencyFramework) error

	// GetFramework loads the framework for a job context.
	// Returns domain.ErrNotFound when absent.
	GetFramework(ctx context.Context, jobContextID string) (domain.CompetencyFramework, error)

	// SaveQuestionSet persists a question set.
	SaveQuestionSet(ctx context.Context, set domain.QuestionSet) error

	// GetQuestionSet loads the question set for a job context.
	// Returns domain.ErrNotFound when absent.
	GetQuestionSet(ctx context.Context, jobContextID string) (domain.QuestionSet, error)

	// SaveAnswer persists a candidate answer.
	SaveAnswer(ctx context.Context, answer domain.Answer) error

	// GetAnswer loads an answer by ID.
	// Returns domain.ErrNotFound when absent.
	GetAnswer(ctx context.Context, id string) (domain.Answer, error)

	// SaveReport persists a completed evaluation report, including its
	// composite score, percentiles, and explanation.
	SaveReport(ctx context.Context, report domain.EvaluationReport) error

	// GetReport loads a report by ID.
	// Returns domain.ErrNotFound when absent.
	GetReport(ctx context.Context, id string) (domain.EvaluationReport, error)
}

// ReportPublisher receives completed evaluation reports. The live-update
// transport behind it is outside the engine; this is a plain event
// emission contract.
type ReportPublisher interface {
	// PublishReport announces a completed report to observers.
	// Publication failures must not fail the evaluation itself.
	PublishReport(ctx context.Context, report domain.EvaluationReport) error
}
