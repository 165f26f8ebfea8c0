package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/interview-engine/infrastructure/storage"
	"github.com/hireloop/interview-engine/internal/domain"
	"github.com/hireloop/interview-engine/internal/ports"
	"github.com/hireloop/interview-engine/internal/testutils"
)

const frameworkJSON = `{
  "competencies": [
    {"id": "systems", "name": "Systems design", "kind": "technical", "weight": 0.6, "rationale": "Core"},
    {"id": "communication", "name": "Communication", "kind": "soft_skill", "weight": 0.4, "rationale": "Team"}
  ]
}`

const questionsJSON = `{
  "questions": [
    {
      "competency_ids": ["systems", "communication"],
      "text": "Walk me through a system you designed and how you explained it to stakeholders.",
      "follow_ups": ["What would you change today?"],
      "rubric": {
        "expected_components": ["architecture", "tradeoffs"],
        "anchors": [
          {"band": "0.0-0.4", "description": "Vague"},
          {"band": "0.7-1.0", "description": "Excellent"}
        ]
      }
    }
  ]
}`

const dimensionJSON = `{
  "raw_score": 0.8,
  "confidence": 0.9,
  "justification": "Clear architecture with explicit tradeoffs.",
  "spans": [{"text": "we chose eventual consistency", "polarity": "positive"}]
}`

// routingGateway answers each pipeline stage with the right payload.
func routingGateway() *testutils.MockGateway {
	g := testutils.NewMockGateway()
	g.SetHandler(func(req ports.CompletionRequest) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "evaluation framework") ||
			strings.Contains(req.Prompt, "structurally invalid"):
			return frameworkJSON, nil
		case strings.Contains(req.Prompt, "structured interview") ||
			strings.Contains(req.Prompt, "failed to cover"):
			return questionsJSON, nil
		default:
			return dimensionJSON, nil
		}
	})
	return g
}

func newTestEngine(t *testing.T, gateway ports.CompletionGateway) (*Engine, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	engine, err := NewEngine(EngineConfig{}, Dependencies{
		Gateway: gateway,
		Store:   store,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, store
}

func submitJob() domain.JobContext {
	return domain.JobContext{
		ID:          "job-1",
		Description: "Senior backend engineer for a payments platform.",
		Seniority:   domain.SenioritySenior,
		Domain:      "fintech",
	}
}

func TestEngineRequiresGatewayAndStore(t *testing.T) {
	_, err := NewEngine(EngineConfig{}, Dependencies{Store: storage.NewMemoryStore()})
	require.Error(t, err)

	_, err = NewEngine(EngineConfig{}, Dependencies{Gateway: testutils.NewMockGateway("x")})
	require.Error(t, err)
}

func TestEngineEndToEnd(t *testing.T) {
	engine, store := newTestEngine(t, routingGateway())
	ctx := context.Background()

	framework, err := engine.Framework(ctx, submitJob())
	require.NoError(t, err)
	require.NoError(t, framework.Validate())

	set, err := engine.Questions(ctx, "job-1")
	require.NoError(t, err)
	require.NotEmpty(t, set.Questions)
	assert.Empty(t, set.UncoveredCompetencies(framework))

	answer := domain.Answer{
		QuestionID:  set.Questions[0].ID,
		CandidateID: "cand-1",
		Text:        "We chose eventual consistency and presented the tradeoffs to the team.",
	}
	report, err := engine.Evaluate(ctx, "job-1", answer)
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.InDelta(t, 0.8, report.Composite.Raw, 1e-9)
	assert.Len(t, report.Percentiles, 2)
	for _, p := range report.Percentiles {
		assert.True(t, p.Provisional, "first scores in a cohort must be provisional")
	}
	assert.Equal(t, domain.ConfidenceLow, report.Explanation.Confidence,
		"provisional percentiles flag the explanation")
	assert.NotEmpty(t, report.Explanation.Highlights)

	// Everything is persisted.
	stored, err := store.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, stored.ID)

	_, err = store.GetAnswer(ctx, report.Composite.AnswerID)
	require.NoError(t, err)
}

func TestEngineValidatesJobContext(t *testing.T) {
	engine, _ := newTestEngine(t, routingGateway())
	ctx := context.Background()

	_, err := engine.Framework(ctx, domain.JobContext{Description: "x", Seniority: domain.SeniorityMid})
	assert.Error(t, err, "missing ID")

	_, err = engine.Framework(ctx, domain.JobContext{ID: "j", Seniority: domain.SeniorityMid})
	assert.Error(t, err, "missing description")

	_, err = engine.Framework(ctx, domain.JobContext{ID: "j", Description: "x", Seniority: "principal"})
	assert.Error(t, err, "unknown seniority")
}

func TestEngineQuestionsRequireFramework(t *testing.T) {
	engine, store := newTestEngine(t, routingGateway())
	ctx := context.Background()

	require.NoError(t, store.SaveJobContext(ctx, submitJob()))

	_, err := engine.Questions(ctx, "job-1")
	assert.ErrorIs(t, err, domain.ErrFrameworkNotFound)
}

func TestEnginePartialCoveragePolicy(t *testing.T) {
	// The model never produces a communication question, so the
	// corrective pass also fails.
	gapGateway := testutils.NewMockGateway()
	gapGateway.SetHandler(func(req ports.CompletionRequest) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "evaluation framework"):
			return frameworkJSON, nil
		case strings.Contains(req.Prompt, "failed to cover"):
			return `{"questions": []}`, nil
		default:
			return `{"questions": [{
			  "competency_ids": ["systems"],
			  "text": "Describe a system you designed.",
			  "rubric": {"expected_components": ["architecture"], "anchors": [{"band": "0.7-1.0", "description": "Strong"}]}
			}]}`, nil
		}
	})

	t.Run("rejected by default", func(t *testing.T) {
		engine, _ := newTestEngine(t, gapGateway)
		ctx := context.Background()

		_, err := engine.Framework(ctx, submitJob())
		require.NoError(t, err)

		_, err = engine.Questions(ctx, "job-1")
		var coverageErr *domain.CoverageError
		require.ErrorAs(t, err, &coverageErr)
	})

	t.Run("accepted when configured", func(t *testing.T) {
		store := storage.NewMemoryStore()
		engine, err := NewEngine(EngineConfig{
			Evaluation: EvaluationConfig{AcceptPartialCoverage: true},
		}, Dependencies{Gateway: gapGateway, Store: store})
		require.NoError(t, err)
		t.Cleanup(engine.Close)
		ctx := context.Background()

		_, err = engine.Framework(ctx, submitJob())
		require.NoError(t, err)

		set, err := engine.Questions(ctx, "job-1")
		require.NoError(t, err)
		assert.True(t, set.Metadata.PartialCoverage, "accepted partial set keeps its flag")
		assert.Equal(t, []string{"communication"}, set.Metadata.UncoveredCompetencyIDs)
	})
}

func TestEngineEvaluationUnavailablePropagates(t *testing.T) {
	gateway := routingGateway()
	engine, _ := newTestEngine(t, gateway)
	ctx := context.Background()

	_, err := engine.Framework(ctx, submitJob())
	require.NoError(t, err)
	set, err := engine.Questions(ctx, "job-1")
	require.NoError(t, err)

	gateway.SetError(errors.New("all providers exhausted"))

	_, err = engine.Evaluate(ctx, "job-1", domain.Answer{
		QuestionID:  set.Questions[0].ID,
		CandidateID: "cand-1",
		Text:        "answer",
	})
	assert.ErrorIs(t, err, domain.ErrEvaluationUnavailable)
}

func TestEnginePublishesReports(t *testing.T) {
	pub := &capturingPublisher{}
	store := storage.NewMemoryStore()
	engine, err := NewEngine(EngineConfig{}, Dependencies{
		Gateway:   routingGateway(),
		Store:     store,
		Publisher: pub,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	ctx := context.Background()

	_, err = engine.Framework(ctx, submitJob())
	require.NoError(t, err)
	set, err := engine.Questions(ctx, "job-1")
	require.NoError(t, err)

	report, err := engine.Evaluate(ctx, "job-1", domain.Answer{
		QuestionID:  set.Questions[0].ID,
		CandidateID: "cand-1",
		Text:        "answer text",
	})
	require.NoError(t, err)

	require.Len(t, pub.published, 1)
	assert.Equal(t, report.ID, pub.published[0].ID)
}

func TestEnginePublicationFailureIsNotFatal(t *testing.T) {
	pub := &capturingPublisher{err: errors.New("transport down")}
	store := storage.NewMemoryStore()
	engine, err := NewEngine(EngineConfig{}, Dependencies{
		Gateway:   routingGateway(),
		Store:     store,
		Publisher: pub,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	ctx := context.Background()

	_, err = engine.Framework(ctx, submitJob())
	require.NoError(t, err)
	set, err := engine.Questions(ctx, "job-1")
	require.NoError(t, err)

	_, err = engine.Evaluate(ctx, "job-1", domain.Answer{
		QuestionID:  set.Questions[0].ID,
		CandidateID: "cand-1",
		Text:        "answer text",
	})
	assert.NoError(t, err, "publisher failure must not fail the evaluation")
}

func TestEnginePercentilesBecomeReliableAsPoolGrows(t *testing.T) {
	store := storage.NewMemoryStore()
	engine, err := NewEngine(EngineConfig{
		Scoring: ScoringConfig{MinimumPoolSize: 3},
	}, Dependencies{Gateway: routingGateway(), Store: store})
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	ctx := context.Background()

	_, err = engine.Framework(ctx, submitJob())
	require.NoError(t, err)
	set, err := engine.Questions(ctx, "job-1")
	require.NoError(t, err)

	var last domain.EvaluationReport
	answers := []string{
		"First answer about architecture.",
		"Second answer about tradeoffs.",
		"Third answer about consistency.",
		"Fourth answer about sharding.",
	}
	for i, text := range answers {
		last, err = engine.Evaluate(ctx, "job-1", domain.Answer{
			QuestionID:  set.Questions[0].ID,
			CandidateID: "cand",
			Text:        text,
		})
		require.NoError(t, err, "evaluation %d", i)
	}

	for _, p := range last.Percentiles {
		assert.False(t, p.Provisional, "pool of %d should be reliable", p.PoolSize)
		assert.GreaterOrEqual(t, p.PoolSize, 3)
	}
}

// capturingPublisher records published reports.
type capturingPublisher struct {
	mu        sync.Mutex
	published []domain.EvaluationReport
	err       error
}

func (p *capturingPublisher) PublishReport(_ context.Context, report domain.EvaluationReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, report)
	return nil
}

var _ ports.ReportPublisher = (*capturingPublisher)(nil)
