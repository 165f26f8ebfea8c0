package generation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/interview-engine/internal/cache"
	"github.com/hireloop/interview-engine/internal/domain"
	"github.com/hireloop/interview-engine/internal/ports"
	"github.com/hireloop/interview-engine/internal/prompt"
	"github.com/hireloop/interview-engine/internal/testutils"
)

const validFrameworkJSON = `{
  "competencies": [
    {"id": "distributed_systems", "name": "Distributed systems design", "kind": "technical", "weight": 0.4, "rationale": "Core of the role"},
    {"id": "go_proficiency", "name": "Go proficiency", "kind": "technical", "weight": 0.3, "rationale": "Primary language"},
    {"id": "communication", "name": "Communication", "kind": "soft_skill", "weight": 0.2, "rationale": "Cross-team work"},
    {"id": "ownership", "name": "Ownership", "kind": "culture", "weight": 0.1, "rationale": "Small team"}
  ]
}`

func testJob() domain.JobContext {
	return domain.JobContext{
		ID:          "job-1",
		Description: "Senior backend engineer building distributed systems in Go.",
		Seniority:   domain.SenioritySenior,
		Domain:      "infrastructure",
	}
}

func TestFrameworkGeneration(t *testing.T) {
	gateway := testutils.NewMockGateway(validFrameworkJSON)
	g := NewFrameworkGenerator(gateway, prompt.NewRegistry(), nil, "", nil)

	framework, err := g.Generate(context.Background(), testJob())
	require.NoError(t, err)

	assert.Equal(t, "job-1", framework.JobContextID)
	assert.Len(t, framework.Competencies, 4)
	assert.NotEmpty(t, framework.PromptVersion)
	require.NoError(t, framework.Validate())
}

func TestFrameworkWeightsSumToOne(t *testing.T) {
	// Weights arrive unnormalized; generation must normalize them.
	gateway := testutils.NewMockGateway(`{
	  "competencies": [
	    {"id": "a", "name": "A", "kind": "technical", "weight": 2.0},
	    {"id": "b", "name": "B", "kind": "technical", "weight": 1.0},
	    {"id": "c", "name": "C", "kind": "soft_skill", "weight": 1.0}
	  ]
	}`)
	g := NewFrameworkGenerator(gateway, prompt.NewRegistry(), nil, "", nil)

	framework, err := g.Generate(context.Background(), testJob())
	require.NoError(t, err)

	var sum float64
	for _, c := range framework.Competencies {
		sum += c.Weight
	}
	assert.InDelta(t, 1.0, sum, domain.WeightEpsilon,
		"normalized weights must sum to 1 within epsilon")
	assert.True(t, math.Abs(framework.Competencies[0].Weight-0.5) < 1e-9)
}

func TestFrameworkMissingWeightsGetUniform(t *testing.T) {
	gateway := testutils.NewMockGateway(`{
	  "competencies": [
	    {"id": "a", "name": "A", "kind": "technical"},
	    {"id": "b", "name": "B", "kind": "soft_skill"}
	  ]
	}`)
	g := NewFrameworkGenerator(gateway, prompt.NewRegistry(), nil, "", nil)

	framework, err := g.Generate(context.Background(), testJob())
	require.NoError(t, err)

	for _, c := range framework.Competencies {
		assert.InDelta(t, 0.5, c.Weight, 1e-9)
	}
}

func TestFrameworkCorrectiveRetryRecovers(t *testing.T) {
	// First attempt has no non-technical competency; the corrective
	// pass returns a valid framework.
	gateway := testutils.NewMockGateway(
		`{"competencies": [{"id": "a", "name": "A", "kind": "technical", "weight": 1.0}]}`,
		validFrameworkJSON,
	)
	g := NewFrameworkGenerator(gateway, prompt.NewRegistry(), nil, "", nil)

	framework, err := g.Generate(context.Background(), testJob())
	require.NoError(t, err)
	require.NoError(t, framework.Validate())

	require.Equal(t, 2, gateway.CallCount())
	prompts := gateway.Prompts()
	assert.Contains(t, prompts[1], "structurally invalid",
		"corrective prompt should name the violation")
}

func TestFrameworkInvalidAfterCorrectiveRetryFails(t *testing.T) {
	invalid := `{"competencies": [{"id": "a", "name": "A", "kind": "technical", "weight": 1.0}]}`
	gateway := testutils.NewMockGateway(invalid, invalid)
	g := NewFrameworkGenerator(gateway, prompt.NewRegistry(), nil, "", nil)

	_, err := g.Generate(context.Background(), testJob())
	require.Error(t, err)

	var fve *domain.FrameworkValidationError
	require.ErrorAs(t, err, &fve)
	assert.Equal(t, "job-1", fve.JobContextID)
	assert.Equal(t, 2, gateway.CallCount(), "exactly one corrective retry")
}

func TestFrameworkCacheIdempotence(t *testing.T) {
	gateway := testutils.NewMockGateway(validFrameworkJSON)
	responseCache := cache.NewResponseCache(cache.Options{Capacity: 16, TTL: time.Minute})
	defer responseCache.Stop()

	g := NewFrameworkGenerator(gateway, prompt.NewRegistry(), responseCache, "", nil)

	first, err := g.Generate(context.Background(), testJob())
	require.NoError(t, err)

	second, err := g.Generate(context.Background(), testJob())
	require.NoError(t, err)

	assert.Equal(t, first, second, "cached framework must be identical")
	assert.Equal(t, 1, gateway.CallCount(), "second generation should not call the gateway")
}

func TestFrameworkGatewayErrorPropagates(t *testing.T) {
	gateway := testutils.NewMockGateway()
	gateway.SetError(context.DeadlineExceeded)
	g := NewFrameworkGenerator(gateway, prompt.NewRegistry(), nil, "", nil)

	_, err := g.Generate(context.Background(), testJob())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFrameworkModelHintForwarded(t *testing.T) {
	gateway := testutils.NewMockGateway()
	var seen ports.CompletionRequest
	gateway.SetHandler(func(req ports.CompletionRequest) (string, error) {
		seen = req
		return validFrameworkJSON, nil
	})

	g := NewFrameworkGenerator(gateway, prompt.NewRegistry(), nil, "anthropic/claude-3-5-sonnet-20241022", nil)

	_, err := g.Generate(context.Background(), testJob())
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3-5-sonnet-20241022", seen.ModelHint)
}
