// Package explain derives the human-readable justification artifact
// from raw dimension evaluations, ordered so the most decisive factors
// appear first.
package explain

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hireloop/interview-engine/internal/domain"
)

// DefaultConfidenceThreshold is the dimension confidence below which
// an explanation is flagged low-confidence.
const DefaultConfidenceThreshold = 0.5

// Composer assembles explanation artifacts from composite scores and
// their percentile results.
type Composer struct {
	confidenceThreshold float64
	logger              *zap.Logger
}

// NewComposer builds a composer. A non-positive threshold takes the
// default.
func NewComposer(confidenceThreshold float64, logger *zap.Logger) *Composer {
	if confidenceThreshold <= 0 {
		confidenceThreshold = DefaultConfidenceThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		confidenceThreshold: confidenceThreshold,
		logger:              logger.Named("explain"),
	}
}

// Compose merges per-dimension justifications and contributing spans
// into one artifact. Highlights are ordered by absolute contribution
// to the weighted score, descending. The confidence flag is low when
// any included dimension scored below the confidence threshold or any
// percentile came from an undersized pool; degradations are surfaced,
// never hidden.
func (c *Composer) Compose(
	framework domain.CompetencyFramework,
	composite domain.CompositeScore,
	percentiles []domain.PercentileResult,
) domain.ExplanationArtifact {
	weights := framework.Weights()

	highlights := make([]domain.DimensionHighlight, 0, len(composite.Dimensions))
	confidence := domain.ConfidenceHigh

	for _, d := range composite.Dimensions {
		name := d.CompetencyID
		if competency, ok := framework.Competency(d.CompetencyID); ok {
			name = competency.Name
		}
		highlights = append(highlights, domain.DimensionHighlight{
			CompetencyID:   d.CompetencyID,
			CompetencyName: name,
			Contribution:   weights[d.CompetencyID] * d.RawScore,
			Justification:  d.Justification,
			Spans:          d.Spans,
		})
		if d.Confidence < c.confidenceThreshold {
			confidence = domain.ConfidenceLow
		}
	}

	sort.SliceStable(highlights, func(a, b int) bool {
		return math.Abs(highlights[a].Contribution) > math.Abs(highlights[b].Contribution)
	})

	for _, p := range percentiles {
		if p.Provisional {
			confidence = domain.ConfidenceLow
			break
		}
	}

	artifact := domain.ExplanationArtifact{
		AnswerID:   composite.AnswerID,
		Highlights: highlights,
		Narrative:  c.narrative(composite, highlights, percentiles),
		Confidence: confidence,
	}

	c.logger.Debug("explanation composed",
		zap.String("answer_id", composite.AnswerID),
		zap.Int("highlights", len(highlights)),
		zap.String("confidence", string(confidence)))

	return artifact
}

// narrative renders the ordered highlights as prose, with every
// degradation stated explicitly.
func (c *Composer) narrative(
	composite domain.CompositeScore,
	highlights []domain.DimensionHighlight,
	percentiles []domain.PercentileResult,
) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Weighted composite score %.2f across %d evaluated dimensions.",
		composite.Raw, len(highlights))

	for i, h := range highlights {
		label := "Also weighed"
		if i == 0 {
			label = "Most decisive"
		}
		fmt.Fprintf(&b, " %s: %s (contribution %.2f). %s",
			label, h.CompetencyName, h.Contribution, strings.TrimSpace(h.Justification))
		if !strings.HasSuffix(b.String(), ".") {
			b.WriteString(".")
		}
	}

	if composite.Partial {
		fmt.Fprintf(&b, " Evaluation was partial: dimensions %s failed and their weight was redistributed.",
			strings.Join(composite.FailedCompetencyIDs, ", "))
	}

	var provisional []string
	for _, p := range percentiles {
		if p.Provisional {
			provisional = append(provisional, p.CompetencyID)
		}
	}
	if len(provisional) > 0 {
		fmt.Fprintf(&b, " Percentiles for %s are provisional: the comparison pool is below the minimum size.",
			strings.Join(provisional, ", "))
	}

	return b.String()
}
