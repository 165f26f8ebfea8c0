package generation

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/interview-engine/internal/cache"
	"github.com/hireloop/interview-engine/internal/domain"
	"github.com/hireloop/interview-engine/internal/prompt"
	"github.com/hireloop/interview-engine/internal/testutils"
)

func testFramework() domain.CompetencyFramework {
	return domain.CompetencyFramework{
		JobContextID:  "job-1",
		PromptVersion: "1.0.0",
		Competencies: []domain.Competency{
			{ID: "distributed_systems", Name: "Distributed systems design", Kind: domain.CompetencyTechnical, Weight: 0.5},
			{ID: "go_proficiency", Name: "Go proficiency", Kind: domain.CompetencyTechnical, Weight: 0.3},
			{ID: "communication", Name: "Communication", Kind: domain.CompetencySoftSkill, Weight: 0.2},
		},
	}
}

func questionJSON(text string, competencyIDs ...string) string {
	quoted := make([]string, len(competencyIDs))
	for i, id := range competencyIDs {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return fmt.Sprintf(`{
	  "competency_ids": [%s],
	  "text": %q,
	  "follow_ups": ["Can you go deeper?"],
	  "rubric": {
	    "expected_components": ["tradeoffs", "failure modes"],
	    "anchors": [
	      {"band": "0.0-0.4", "description": "Vague"},
	      {"band": "0.4-0.7", "description": "Adequate"},
	      {"band": "0.7-1.0", "description": "Excellent"}
	    ]
	  }
	}`, strings.Join(quoted, ", "), text)
}

func questionSetJSON(questions ...string) string {
	return fmt.Sprintf(`{"questions": [%s]}`, strings.Join(questions, ", "))
}

func fullCoverageJSON() string {
	return questionSetJSON(
		questionJSON("Describe a distributed system you designed and its failure modes.", "distributed_systems"),
		questionJSON("How do goroutines and channels interact in a worker pool?", "go_proficiency"),
		questionJSON("Tell me about a time you disagreed with a teammate.", "communication"),
	)
}

func TestQuestionGenerationFullCoverage(t *testing.T) {
	gateway := testutils.NewMockGateway(fullCoverageJSON())
	g := NewQuestionGenerator(gateway, prompt.NewRegistry(), nil, "", nil)

	set, err := g.Generate(context.Background(), testJob(), testFramework())
	require.NoError(t, err)

	assert.Equal(t, "job-1", set.JobContextID)
	assert.Empty(t, set.UncoveredCompetencies(testFramework()),
		"every competency must be targeted by at least one question")
	assert.False(t, set.Metadata.PartialCoverage)

	for _, q := range set.Questions {
		assert.NotEmpty(t, q.ID)
		assert.NotEmpty(t, q.Rubric.ExpectedComponents, "every question carries a rubric")
		assert.NotEmpty(t, q.Rubric.Anchors)
		assert.Equal(t, set.Metadata.PromptVersion, q.Rubric.Version)
	}
}

func TestQuestionCoverageCorrectivePass(t *testing.T) {
	// First pass misses "communication"; the corrective pass fills it.
	gateway := testutils.NewMockGateway(
		questionSetJSON(
			questionJSON("Describe a distributed system you designed.", "distributed_systems"),
			questionJSON("How does the Go scheduler work?", "go_proficiency"),
		),
		questionSetJSON(
			questionJSON("Tell me about a difficult stakeholder conversation.", "communication"),
		),
	)
	g := NewQuestionGenerator(gateway, prompt.NewRegistry(), nil, "", nil)

	set, err := g.Generate(context.Background(), testJob(), testFramework())
	require.NoError(t, err)

	assert.Empty(t, set.UncoveredCompetencies(testFramework()))
	require.Equal(t, 2, gateway.CallCount())
	assert.Contains(t, gateway.Prompts()[1], "communication",
		"corrective prompt should name the uncovered competency")
}

func TestQuestionCoverageErrorCarriesPartialSet(t *testing.T) {
	missing := questionSetJSON(
		questionJSON("Describe a distributed system you designed.", "distributed_systems"),
		questionJSON("How does the Go scheduler work?", "go_proficiency"),
	)
	gateway := testutils.NewMockGateway(missing, `{"questions": []}`)
	g := NewQuestionGenerator(gateway, prompt.NewRegistry(), nil, "", nil)

	_, err := g.Generate(context.Background(), testJob(), testFramework())
	require.Error(t, err)

	var coverageErr *domain.CoverageError
	require.ErrorAs(t, err, &coverageErr)
	assert.Equal(t, []string{"communication"}, coverageErr.UncoveredCompetencyIDs)

	require.NotNil(t, coverageErr.Partial)
	assert.Len(t, coverageErr.Partial.Questions, 2)
	assert.True(t, coverageErr.Partial.Metadata.PartialCoverage)
	assert.Equal(t, []string{"communication"}, coverageErr.Partial.Metadata.UncoveredCompetencyIDs)
}

func TestNearDuplicateQuestionsFiltered(t *testing.T) {
	gateway := testutils.NewMockGateway(questionSetJSON(
		questionJSON("Describe a distributed system you designed and why.", "distributed_systems"),
		questionJSON("describe a distributed system you designed and how.", "distributed_systems"),
		questionJSON("How does the Go scheduler work?", "go_proficiency"),
		questionJSON("Tell me about a time you disagreed with a teammate.", "communication"),
	))
	g := NewQuestionGenerator(gateway, prompt.NewRegistry(), nil, "", nil)

	set, err := g.Generate(context.Background(), testJob(), testFramework())
	require.NoError(t, err)

	assert.Len(t, set.Questions, 3, "near-duplicate should be dropped")
	assert.Empty(t, set.UncoveredCompetencies(testFramework()))
}

func TestNearDuplicateKeptWhenCoverageWouldBreak(t *testing.T) {
	// The second question is a near-duplicate but is the only question
	// covering go_proficiency, so it survives the filter.
	gateway := testutils.NewMockGateway(questionSetJSON(
		questionJSON("Walk me through a production incident you debugged.", "distributed_systems"),
		questionJSON("Walk me through a production incident you debugged!", "go_proficiency"),
		questionJSON("Tell me about a time you disagreed with a teammate.", "communication"),
	))
	g := NewQuestionGenerator(gateway, prompt.NewRegistry(), nil, "", nil)

	set, err := g.Generate(context.Background(), testJob(), testFramework())
	require.NoError(t, err)

	assert.Len(t, set.Questions, 3)
	assert.Empty(t, set.UncoveredCompetencies(testFramework()))
}

func TestPerCompetencyQuestionCap(t *testing.T) {
	questions := []string{
		questionJSON("How does the Go scheduler handle blocking syscalls in practice?", "go_proficiency"),
		questionJSON("Explain escape analysis and when values move to the heap.", "go_proficiency"),
		questionJSON("What are the tradeoffs between channels and mutexes for shared state?", "go_proficiency"),
		questionJSON("Describe how you would profile a Go service with high tail latency.", "go_proficiency"),
		questionJSON("Describe a distributed system you designed and its failure modes.", "distributed_systems"),
		questionJSON("Tell me about a time you disagreed with a teammate.", "communication"),
	}
	gateway := testutils.NewMockGateway(questionSetJSON(questions...))
	g := NewQuestionGenerator(gateway, prompt.NewRegistry(), nil, "", nil)

	set, err := g.Generate(context.Background(), testJob(), testFramework())
	require.NoError(t, err)

	var goQuestions int
	for _, q := range set.Questions {
		if q.Targets("go_proficiency") {
			goQuestions++
		}
	}
	assert.LessOrEqual(t, goQuestions, maxQuestionsPerCompetency)
	assert.Empty(t, set.UncoveredCompetencies(testFramework()))
}

func TestUnknownCompetencyTargetsDropped(t *testing.T) {
	gateway := testutils.NewMockGateway(questionSetJSON(
		questionJSON("Describe a distributed system you designed.", "distributed_systems", "invented_competency"),
		questionJSON("How does the Go scheduler work?", "go_proficiency"),
		questionJSON("Tell me about a time you disagreed with a teammate.", "communication"),
	))
	g := NewQuestionGenerator(gateway, prompt.NewRegistry(), nil, "", nil)

	set, err := g.Generate(context.Background(), testJob(), testFramework())
	require.NoError(t, err)

	for _, q := range set.Questions {
		assert.NotContains(t, q.CompetencyIDs, "invented_competency")
	}
}

func TestQuestionSetCacheIdempotence(t *testing.T) {
	gateway := testutils.NewMockGateway(fullCoverageJSON())
	responseCache := cache.NewResponseCache(cache.Options{Capacity: 16, TTL: time.Minute})
	defer responseCache.Stop()

	g := NewQuestionGenerator(gateway, prompt.NewRegistry(), responseCache, "", nil)

	first, err := g.Generate(context.Background(), testJob(), testFramework())
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), testJob(), testFramework())
	require.NoError(t, err)

	assert.Equal(t, first, second, "cached question set must replay with identical IDs")
	assert.Equal(t, 1, gateway.CallCount())
}
