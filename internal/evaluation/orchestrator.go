// Package evaluation contains the orchestrator that fans one answer out
// to concurrent per-competency evaluators and fans the results back in
// to a weighted composite score.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hireloop/interview-engine/internal/cache"
	"github.com/hireloop/interview-engine/internal/domain"
	"github.com/hireloop/interview-engine/internal/ports"
	"github.com/hireloop/interview-engine/internal/prompt"
)

// evaluationTemperature keeps dimension scoring near-deterministic.
const evaluationTemperature = 0.1

// dimensionScoreTTL caches dimension scores longer than the cache
// default: the key covers the answer fingerprint and rubric version,
// so an entry only goes stale when the model changes behavior.
const dimensionScoreTTL = time.Hour

// seniorityBars annotate the evaluator prompt with the expectation bar
// for the job's seniority level. The rubric text itself is unchanged.
var seniorityBars = map[domain.SeniorityLevel]string{
	domain.SeniorityJunior: "This is a junior role. Expect solid fundamentals and reasoning; " +
		"do not penalize missing breadth, production war stories, or architectural depth.",
	domain.SeniorityMid: "This is a mid-level role. Expect independent execution and awareness " +
		"of tradeoffs; depth in one area outweighs shallow breadth.",
	domain.SenioritySenior: "This is a senior role. Expect depth, tradeoff analysis, failure-mode " +
		"awareness, and evidence of having owned systems in production.",
	domain.SeniorityStaff: "This is a staff-level role. Expect organization-wide framing, " +
		"cross-system tradeoffs, and judgment about what not to build.",
}

func seniorityBar(level domain.SeniorityLevel) string {
	if bar, ok := seniorityBars[level]; ok {
		return bar
	}
	return seniorityBars[domain.SeniorityMid]
}

// Orchestrator evaluates answers. For each answer it launches one
// evaluator per targeted competency concurrently, joins on completion
// or deadline, and aggregates the surviving dimensions into a
// composite score with proportional weight redistribution for any
// failed dimension.
type Orchestrator struct {
	gateway  ports.CompletionGateway
	registry *prompt.Registry
	cache    *cache.ResponseCache
	metrics  ports.MetricsCollector
	logger   *zap.Logger
	tracer   trace.Tracer

	modelHint string
}

// NewOrchestrator builds an evaluation orchestrator. Cache and metrics
// are optional.
func NewOrchestrator(
	gateway ports.CompletionGateway,
	registry *prompt.Registry,
	responseCache *cache.ResponseCache,
	metrics ports.MetricsCollector,
	modelHint string,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		gateway:   gateway,
		registry:  registry,
		cache:     responseCache,
		metrics:   metrics,
		modelHint: modelHint,
		logger:    logger.Named("orchestrator"),
		tracer:    otel.Tracer("evaluation-orchestrator"),
	}
}

// dimensionPayload is the wire shape expected from a dimension
// evaluator.
type dimensionPayload struct {
	RawScore      float64 `json:"raw_score"`
	Confidence    float64 `json:"confidence"`
	Justification string  `json:"justification"`
	Spans         []struct {
		Text     string `json:"text"`
		Polarity string `json:"polarity"`
	} `json:"spans"`
}

// dimensionOutcome is one evaluator's result or failure.
type dimensionOutcome struct {
	competencyID string
	score        domain.DimensionScore
	err          error
}

// Evaluate scores an answer against every competency its question
// targets and aggregates the results. The caller's deadline propagates
// to all evaluators; evaluators unfinished at the deadline are
// cancelled and their weight redistributed. When every dimension fails
// the error wraps domain.ErrEvaluationUnavailable.
func (o *Orchestrator) Evaluate(
	ctx context.Context,
	job domain.JobContext,
	framework domain.CompetencyFramework,
	questions domain.QuestionSet,
	answer domain.Answer,
) (domain.CompositeScore, error) {
	question, ok := questions.Question(answer.QuestionID)
	if !ok {
		return domain.CompositeScore{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, answer.QuestionID)
	}

	var targets []domain.Competency
	for _, id := range question.CompetencyIDs {
		if c, ok := framework.Competency(id); ok {
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		return domain.CompositeScore{}, fmt.Errorf(
			"question %s targets no competency present in the framework", question.ID)
	}

	ctx, span := o.tracer.Start(ctx, "evaluation.fan_out",
		trace.WithAttributes(
			attribute.String("answer.id", answer.ID),
			attribute.Int("evaluation.dimensions", len(targets)),
		),
	)
	defer span.End()

	var usage domain.UsageSummary
	var usageMu sync.Mutex
	recordUsage := func(result ports.CompletionResult) {
		usageMu.Lock()
		usage.Add(result.TokensIn, result.TokensOut)
		usageMu.Unlock()
	}

	// Dimension results are order-independent; each goroutine writes
	// its own slot and the join reassembles by competency.
	outcomes := make([]dimensionOutcome, len(targets))
	var wg sync.WaitGroup
	for i, competency := range targets {
		wg.Add(1)
		go func(i int, competency domain.Competency) {
			defer wg.Done()
			score, err := o.evaluateDimension(ctx, job, question, answer, competency, recordUsage)
			outcomes[i] = dimensionOutcome{competencyID: competency.ID, score: score, err: err}
		}(i, competency)
	}
	wg.Wait()

	composite, err := o.aggregate(answer, targets, outcomes, usage)
	if err != nil {
		span.RecordError(err)
		return domain.CompositeScore{}, err
	}
	span.SetAttributes(
		attribute.Float64("evaluation.composite", composite.Raw),
		attribute.Bool("evaluation.partial", composite.Partial),
	)
	return composite, nil
}

// aggregate fans the dimension outcomes in: failed dimensions lose
// their weight to the survivors proportionally, and the composite is
// flagged partial.
func (o *Orchestrator) aggregate(
	answer domain.Answer,
	targets []domain.Competency,
	outcomes []dimensionOutcome,
	usage domain.UsageSummary,
) (domain.CompositeScore, error) {
	composite := domain.CompositeScore{AnswerID: answer.ID, Usage: usage}

	var weightSum, weightedScore float64
	for i, outcome := range outcomes {
		if outcome.err != nil {
			o.logger.Warn("dimension evaluation failed",
				zap.String("answer_id", answer.ID),
				zap.String("competency_id", outcome.competencyID),
				zap.Error(outcome.err))
			o.count("evaluation_dimensions_failed_total", map[string]string{
				"competency_id": outcome.competencyID,
			})
			composite.FailedCompetencyIDs = append(composite.FailedCompetencyIDs, outcome.competencyID)
			continue
		}
		composite.Dimensions = append(composite.Dimensions, outcome.score)
		weightSum += targets[i].Weight
		weightedScore += targets[i].Weight * outcome.score.RawScore
	}

	if len(composite.Dimensions) == 0 {
		lastErr := outcomes[len(outcomes)-1].err
		return domain.CompositeScore{}, fmt.Errorf("%w: %v", domain.ErrEvaluationUnavailable, lastErr)
	}

	sort.Slice(composite.Dimensions, func(a, b int) bool {
		return composite.Dimensions[a].CompetencyID < composite.Dimensions[b].CompetencyID
	})

	if weightSum > 0 {
		composite.Raw = weightedScore / weightSum
	}
	composite.Partial = len(composite.FailedCompetencyIDs) > 0

	return composite, nil
}

// evaluateDimension scores the answer against one competency's rubric.
// Scores are cached by (answer fingerprint, competency, rubric version)
// so re-evaluations of unchanged answers are free.
func (o *Orchestrator) evaluateDimension(
	ctx context.Context,
	job domain.JobContext,
	question domain.Question,
	answer domain.Answer,
	competency domain.Competency,
	recordUsage func(ports.CompletionResult),
) (domain.DimensionScore, error) {
	generate := func(ctx context.Context) ([]byte, error) {
		score, err := o.callEvaluator(ctx, job, question, answer, competency, recordUsage)
		if err != nil {
			return nil, err
		}
		return json.Marshal(score)
	}

	var raw []byte
	var err error
	if o.cache != nil {
		key := cache.Key("dimension_score", answer.Fingerprint(), competency.ID, question.Rubric.Version, o.modelHint)
		raw, _, err = o.cache.GetOrGenerate(ctx, key, dimensionScoreTTL, generate)
	} else {
		raw, err = generate(ctx)
	}
	if err != nil {
		return domain.DimensionScore{}, err
	}

	var score domain.DimensionScore
	if err := json.Unmarshal(raw, &score); err != nil {
		return domain.DimensionScore{}, fmt.Errorf("failed to decode cached dimension score: %w", err)
	}
	return score, nil
}

func (o *Orchestrator) callEvaluator(
	ctx context.Context,
	job domain.JobContext,
	question domain.Question,
	answer domain.Answer,
	competency domain.Competency,
	recordUsage func(ports.CompletionResult),
) (domain.DimensionScore, error) {
	resolved, err := o.registry.Resolve(prompt.TemplateDimensionEvaluation, answer.CandidateID)
	if err != nil {
		return domain.DimensionScore{}, fmt.Errorf("failed to resolve evaluation template: %w", err)
	}

	rendered, err := resolved.Render(map[string]any{
		"CompetencyName":     competency.Name,
		"CompetencyKind":     string(competency.Kind),
		"Question":           question.Text,
		"ExpectedComponents": strings.Join(question.Rubric.ExpectedComponents, "; "),
		"Anchors":            formatAnchors(question.Rubric.Anchors),
		"SeniorityBar":       seniorityBar(job.Seniority),
		"Answer":             answer.Text,
	})
	if err != nil {
		return domain.DimensionScore{}, err
	}

	temperature := evaluationTemperature
	var payload dimensionPayload
	result, err := o.gateway.CompleteJSON(ctx, ports.CompletionRequest{
		Prompt:      rendered,
		ModelHint:   o.modelHint,
		Temperature: &temperature,
	}, &payload)
	if err != nil {
		return domain.DimensionScore{}, fmt.Errorf("dimension evaluator failed for %s: %w", competency.ID, err)
	}
	recordUsage(result)

	score := domain.DimensionScore{
		AnswerID:      answer.ID,
		CompetencyID:  competency.ID,
		RubricVersion: question.Rubric.Version,
		RawScore:      clampUnit(payload.RawScore),
		Confidence:    clampUnit(payload.Confidence),
		Justification: payload.Justification,
	}
	for _, s := range payload.Spans {
		score.Spans = append(score.Spans, domain.ContributingSpan{
			Text:     s.Text,
			Polarity: parsePolarity(s.Polarity),
		})
	}

	o.histogram("evaluation_dimension_score", score.RawScore, map[string]string{
		"competency_id": competency.ID,
	})
	o.logger.Debug("dimension evaluated",
		zap.String("answer_id", answer.ID),
		zap.String("competency_id", competency.ID),
		zap.Float64("raw_score", score.RawScore),
		zap.Float64("confidence", score.Confidence),
		zap.String("provider", result.Provider))

	return score, nil
}

func formatAnchors(anchors []domain.ScoringAnchor) string {
	var b strings.Builder
	for _, a := range anchors {
		fmt.Fprintf(&b, "- %s: %s\n", a.Band, a.Description)
	}
	return b.String()
}

func parsePolarity(s string) domain.SpanPolarity {
	switch domain.SpanPolarity(strings.ToLower(strings.TrimSpace(s))) {
	case domain.PolarityPositive:
		return domain.PolarityPositive
	case domain.PolarityNegative:
		return domain.PolarityNegative
	default:
		return domain.PolarityNeutral
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (o *Orchestrator) count(metric string, labels map[string]string) {
	if o.metrics != nil {
		o.metrics.RecordCounter(metric, 1, labels)
	}
}

func (o *Orchestrator) histogram(metric string, value float64, labels map[string]string) {
	if o.metrics != nil {
		o.metrics.RecordHistogram(metric, value, labels)
	}
}
