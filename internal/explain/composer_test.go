package explain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/interview-engine/internal/domain"
)

func framework() domain.CompetencyFramework {
	return domain.CompetencyFramework{
		JobContextID: "job-1",
		Competencies: []domain.Competency{
			{ID: "systems", Name: "Systems design", Kind: domain.CompetencyTechnical, Weight: 0.5},
			{ID: "coding", Name: "Coding", Kind: domain.CompetencyTechnical, Weight: 0.3},
			{ID: "communication", Name: "Communication", Kind: domain.CompetencySoftSkill, Weight: 0.2},
		},
	}
}

func composite() domain.CompositeScore {
	return domain.CompositeScore{
		AnswerID: "ans-1",
		Raw:      0.61,
		Dimensions: []domain.DimensionScore{
			{CompetencyID: "coding", RawScore: 0.9, Confidence: 0.9, Justification: "Idiomatic, tested code."},
			{CompetencyID: "systems", RawScore: 0.5, Confidence: 0.8, Justification: "Reasonable design, thin on failure modes.",
				Spans: []domain.ContributingSpan{{Text: "we just retry", Polarity: domain.PolarityNegative}}},
			{CompetencyID: "communication", RawScore: 0.6, Confidence: 0.7, Justification: "Clear but verbose."},
		},
	}
}

func TestHighlightsOrderedByAbsoluteContribution(t *testing.T) {
	c := NewComposer(0, nil)

	artifact := c.Compose(framework(), composite(), nil)

	require.Len(t, artifact.Highlights, 3)
	// Contributions: coding 0.27, systems 0.25, communication 0.12.
	assert.Equal(t, "coding", artifact.Highlights[0].CompetencyID)
	assert.Equal(t, "systems", artifact.Highlights[1].CompetencyID)
	assert.Equal(t, "communication", artifact.Highlights[2].CompetencyID)

	for i := 1; i < len(artifact.Highlights); i++ {
		assert.GreaterOrEqual(t,
			math.Abs(artifact.Highlights[i-1].Contribution),
			math.Abs(artifact.Highlights[i].Contribution))
	}
	assert.Equal(t, "Systems design", artifact.Highlights[1].CompetencyName)
	assert.NotEmpty(t, artifact.Highlights[1].Spans)
}

func TestConfidenceHighWhenAllSignalsStrong(t *testing.T) {
	c := NewComposer(0.5, nil)
	percentiles := []domain.PercentileResult{
		{CompetencyID: "systems", Percentile: 60, PoolSize: 40},
	}

	artifact := c.Compose(framework(), composite(), percentiles)
	assert.Equal(t, domain.ConfidenceHigh, artifact.Confidence)
}

func TestLowDimensionConfidenceFlagsExplanation(t *testing.T) {
	c := NewComposer(0.5, nil)

	weak := composite()
	weak.Dimensions[2].Confidence = 0.3

	artifact := c.Compose(framework(), weak, nil)
	assert.Equal(t, domain.ConfidenceLow, artifact.Confidence)
}

func TestProvisionalPercentileFlagsExplanation(t *testing.T) {
	c := NewComposer(0.5, nil)
	percentiles := []domain.PercentileResult{
		{CompetencyID: "systems", Percentile: 50, PoolSize: 3, Provisional: true},
	}

	artifact := c.Compose(framework(), composite(), percentiles)
	assert.Equal(t, domain.ConfidenceLow, artifact.Confidence)
	assert.Contains(t, artifact.Narrative, "provisional",
		"degraded percentiles must be surfaced in the narrative")
}

func TestPartialCompositeSurfacedInNarrative(t *testing.T) {
	c := NewComposer(0.5, nil)

	partial := composite()
	partial.Partial = true
	partial.FailedCompetencyIDs = []string{"communication"}
	partial.Dimensions = partial.Dimensions[:2]

	artifact := c.Compose(framework(), partial, nil)
	assert.Contains(t, artifact.Narrative, "partial")
	assert.Contains(t, artifact.Narrative, "communication")
}

func TestNarrativeLeadsWithMostDecisiveFactor(t *testing.T) {
	c := NewComposer(0.5, nil)

	artifact := c.Compose(framework(), composite(), nil)
	assert.Contains(t, artifact.Narrative, "Most decisive: Coding")
}
