package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hireloop/interview-engine/internal/cache"
	"github.com/hireloop/interview-engine/internal/domain"
	"github.com/hireloop/interview-engine/internal/evaluation"
	"github.com/hireloop/interview-engine/internal/explain"
	"github.com/hireloop/interview-engine/internal/generation"
	"github.com/hireloop/interview-engine/internal/ports"
	"github.com/hireloop/interview-engine/internal/prompt"
	"github.com/hireloop/interview-engine/internal/scoring"
)

// Dependencies carries the external adapters the engine runs against.
// Gateway and Store are required; the rest are optional.
type Dependencies struct {
	// Gateway provides AI completions.
	Gateway ports.CompletionGateway

	// Store persists evaluation entities.
	Store ports.EvaluationStore

	// SharedCache optionally backs the response cache's shared tier and
	// the scoring pools' persisted snapshots.
	SharedCache ports.CacheStore

	// Publisher optionally receives completed reports.
	Publisher ports.ReportPublisher

	// Metrics optionally records operational metrics.
	Metrics ports.MetricsCollector

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Engine is the consumer-facing entry point of the evaluation system.
// It owns the prompt registry, response cache, generators, evaluation
// orchestrator, scoring pools, and explainability composer.
type Engine struct {
	store     ports.EvaluationStore
	publisher ports.ReportPublisher
	logger    *zap.Logger

	registry      *prompt.Registry
	responseCache *cache.ResponseCache
	frameworks    *generation.FrameworkGenerator
	questions     *generation.QuestionGenerator
	orchestrator  *evaluation.Orchestrator
	pools         *scoring.Arena
	composer      *explain.Composer

	acceptPartialCoverage bool
}

// NewEngine assembles an engine from configuration and adapters.
func NewEngine(cfg EngineConfig, deps Dependencies) (*Engine, error) {
	if deps.Gateway == nil {
		return nil, fmt.Errorf("engine requires a completion gateway")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("engine requires an evaluation store")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prompt.NewRegistry()

	responseCache := cache.NewResponseCache(cache.Options{
		Capacity:      cfg.Cache.Capacity,
		TTL:           cfg.Cache.TTL,
		SweepInterval: cfg.Cache.SweepInterval,
		Shared:        deps.SharedCache,
		Metrics:       deps.Metrics,
		Logger:        logger,
	})

	pools := scoring.NewArena(scoring.Config{
		OutlierSigma:        cfg.Scoring.OutlierSigma,
		MinimumPoolSize:     cfg.Scoring.MinimumPoolSize,
		RecalibrationEvery:  cfg.Scoring.RecalibrationEvery,
		RecalibrationPeriod: cfg.Scoring.RecalibrationPeriod,
		DecayFactor:         cfg.Scoring.DecayFactor,
		SampleCapacity:      cfg.Scoring.SampleCapacity,
		Snapshots:           deps.SharedCache,
		Metrics:             deps.Metrics,
		Logger:              logger,
	})

	hint := cfg.Evaluation.ModelHint

	return &Engine{
		store:         deps.Store,
		publisher:     deps.Publisher,
		logger:        logger.Named("engine"),
		registry:      registry,
		responseCache: responseCache,
		frameworks:    generation.NewFrameworkGenerator(deps.Gateway, registry, responseCache, hint, logger),
		questions:     generation.NewQuestionGenerator(deps.Gateway, registry, responseCache, hint, logger),
		orchestrator:  evaluation.NewOrchestrator(deps.Gateway, registry, responseCache, deps.Metrics, hint, logger),
		pools:         pools,
		composer:      explain.NewComposer(cfg.Evaluation.ConfidenceThreshold, logger),

		acceptPartialCoverage: cfg.Evaluation.AcceptPartialCoverage,
	}, nil
}

// Close releases the engine's background resources.
func (e *Engine) Close() {
	e.responseCache.Stop()
}

// Registry exposes the prompt registry for template registration.
func (e *Engine) Registry() *prompt.Registry { return e.registry }

// Framework derives and persists the competency framework for a job
// context. Resubmitting an identical job context within the cache
// window returns the same framework without a provider call.
func (e *Engine) Framework(ctx context.Context, job domain.JobContext) (domain.CompetencyFramework, error) {
	if job.ID == "" {
		return domain.CompetencyFramework{}, fmt.Errorf("job context ID cannot be empty")
	}
	if job.Description == "" {
		return domain.CompetencyFramework{}, fmt.Errorf("job context description cannot be empty")
	}
	if !job.Seniority.IsValid() {
		return domain.CompetencyFramework{}, fmt.Errorf("invalid seniority level: %q", job.Seniority)
	}

	if err := e.store.SaveJobContext(ctx, job); err != nil {
		return domain.CompetencyFramework{}, fmt.Errorf("failed to save job context: %w", err)
	}

	framework, err := e.frameworks.Generate(ctx, job)
	if err != nil {
		return domain.CompetencyFramework{}, err
	}

	if err := e.store.SaveFramework(ctx, framework); err != nil {
		return domain.CompetencyFramework{}, fmt.Errorf("failed to save framework: %w", err)
	}

	e.logger.Info("framework generated",
		zap.String("job_context_id", job.ID),
		zap.Int("competencies", len(framework.Competencies)))

	return framework, nil
}

// Questions generates and persists the question set for a previously
// submitted job context. When the corrective pass still leaves
// competencies uncovered, behavior follows the configured partial
// coverage policy: proceed with the flagged partial set, or surface
// the CoverageError to the caller.
func (e *Engine) Questions(ctx context.Context, jobContextID string) (domain.QuestionSet, error) {
	job, err := e.store.GetJobContext(ctx, jobContextID)
	if err != nil {
		return domain.QuestionSet{}, err
	}
	framework, err := e.store.GetFramework(ctx, jobContextID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.QuestionSet{}, fmt.Errorf("%w: generate the framework first", domain.ErrFrameworkNotFound)
		}
		return domain.QuestionSet{}, err
	}

	set, err := e.questions.Generate(ctx, job, framework)
	if err != nil {
		var coverageErr *domain.CoverageError
		if errors.As(err, &coverageErr) && e.acceptPartialCoverage && coverageErr.Partial != nil {
			e.logger.Warn("proceeding with partial question coverage",
				zap.String("job_context_id", jobContextID),
				zap.Strings("uncovered", coverageErr.UncoveredCompetencyIDs))
			set = *coverageErr.Partial
		} else {
			return domain.QuestionSet{}, err
		}
	}

	if err := e.store.SaveQuestionSet(ctx, set); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("failed to save question set: %w", err)
	}

	e.logger.Info("question set generated",
		zap.String("job_context_id", jobContextID),
		zap.Int("questions", len(set.Questions)),
		zap.Bool("partial_coverage", set.Metadata.PartialCoverage))

	return set, nil
}

// Evaluate scores an answer and assembles the full evaluation report:
// composite score, cohort percentiles, and explanation. The report is
// persisted and then announced to the publisher; publication failures
// are logged, never fatal.
func (e *Engine) Evaluate(ctx context.Context, jobContextID string, answer domain.Answer) (domain.EvaluationReport, error) {
	if answer.ID == "" {
		answer.ID = uuid.NewString()
	}

	job, err := e.store.GetJobContext(ctx, jobContextID)
	if err != nil {
		return domain.EvaluationReport{}, err
	}
	framework, err := e.store.GetFramework(ctx, jobContextID)
	if err != nil {
		return domain.EvaluationReport{}, err
	}
	questions, err := e.store.GetQuestionSet(ctx, jobContextID)
	if err != nil {
		return domain.EvaluationReport{}, err
	}

	if err := e.store.SaveAnswer(ctx, answer); err != nil {
		return domain.EvaluationReport{}, fmt.Errorf("failed to save answer: %w", err)
	}

	composite, err := e.orchestrator.Evaluate(ctx, job, framework, questions, answer)
	if err != nil {
		return domain.EvaluationReport{}, err
	}

	percentiles := e.rank(ctx, job, answer, composite)

	report := domain.EvaluationReport{
		ID:          uuid.NewString(),
		Composite:   composite,
		Percentiles: percentiles,
		Explanation: e.composer.Compose(framework, composite, percentiles),
		CreatedAt:   time.Now().UTC(),
	}

	if err := e.store.SaveReport(ctx, report); err != nil {
		return domain.EvaluationReport{}, fmt.Errorf("failed to save report: %w", err)
	}

	if e.publisher != nil {
		if err := e.publisher.PublishReport(ctx, report); err != nil {
			e.logger.Warn("report publication failed",
				zap.String("report_id", report.ID), zap.Error(err))
		}
	}

	e.logger.Info("evaluation completed",
		zap.String("report_id", report.ID),
		zap.String("answer_id", answer.ID),
		zap.Float64("composite", composite.Raw),
		zap.Bool("partial", composite.Partial),
		zap.Int("calls", composite.Usage.Calls))

	return report, nil
}

// Report loads a persisted evaluation report by ID.
func (e *Engine) Report(ctx context.Context, id string) (domain.EvaluationReport, error) {
	return e.store.GetReport(ctx, id)
}

// rank records each dimension score in its cohort pool and ranks it
// against the cohort's history. Insufficient pools downgrade the
// percentile to provisional rather than failing the report.
func (e *Engine) rank(
	ctx context.Context,
	job domain.JobContext,
	answer domain.Answer,
	composite domain.CompositeScore,
) []domain.PercentileResult {
	percentiles := make([]domain.PercentileResult, 0, len(composite.Dimensions))
	for _, d := range composite.Dimensions {
		cohortKey := job.CohortKey(d.CompetencyID)

		recorded := e.pools.Record(ctx, cohortKey, d.RawScore)
		query := e.pools.Percentile(cohortKey, d.RawScore)

		if query.Provisional {
			e.logger.Debug("percentile is provisional",
				zap.String("cohort", cohortKey),
				zap.Int("pool_size", query.PoolSize))
		}

		percentiles = append(percentiles, domain.PercentileResult{
			AnswerID:        answer.ID,
			CompetencyID:    d.CompetencyID,
			Percentile:      query.Percentile,
			PoolSize:        query.PoolSize,
			OutlierExcluded: recorded.OutlierExcluded,
			Provisional:     query.Provisional,
		})
	}
	return percentiles
}
