package domain

import "time"

// Answer is a candidate's free-text response to one question.
// Answers are supplied externally and immutable.
type Answer struct {
	// ID uniquely identifies the answer.
	ID string `json:"id"`

	// QuestionID references the question being answered.
	QuestionID string `json:"question_id"`

	// CandidateID identifies the candidate who submitted the answer.
	CandidateID string `json:"candidate_id"`

	// Text is the raw answer text.
	Text string `json:"text"`

	// SubmittedAt is when the candidate submitted the answer.
	SubmittedAt time.Time `json:"submitted_at"`
}

// Fingerprint returns the stable content fingerprint of the answer
// text, used for evaluation-result cache keying.
func (a Answer) Fingerprint() string { return FingerprintText(a.Text) }

// SpanPolarity classifies how a quoted answer span contributed to a
// dimension score.
type SpanPolarity string

// Supported span polarities.
const (
	PolarityPositive SpanPolarity = "positive"
	PolarityNegative SpanPolarity = "negative"
	PolarityNeutral  SpanPolarity = "neutral"
)

// ContributingSpan quotes a fragment of the answer that influenced the
// evaluator's score, with the direction of its influence.
type ContributingSpan struct {
	// Text is the quoted fragment from the answer.
	Text string `json:"text"`

	// Polarity is the direction of the fragment's influence.
	Polarity SpanPolarity `json:"polarity"`
}

// DimensionScore is one evaluator's assessment of an answer against a
// single competency's rubric. It is immutable once computed and cached
// by (answer fingerprint, competency, rubric version).
type DimensionScore struct {
	// AnswerID references the scored answer.
	AnswerID string `json:"answer_id"`

	// CompetencyID references the competency dimension evaluated.
	CompetencyID string `json:"competency_id"`

	// RubricVersion records the rubric version the score was produced
	// against.
	RubricVersion string `json:"rubric_version"`

	// RawScore is the evaluator's score in [0,1].
	RawScore float64 `json:"raw_score"`

	// Confidence is the evaluator's confidence in the score, in [0,1].
	Confidence float64 `json:"confidence"`

	// Justification is the evaluator's reasoning for the score.
	Justification string `json:"justification"`

	// Spans quote answer fragments that influenced the score.
	Spans []ContributingSpan `json:"spans,omitempty"`
}

// UsageSummary aggregates provider resource consumption for one
// evaluation: tokens in and out and the number of completion calls.
type UsageSummary struct {
	// TokensIn is the cumulative prompt token count.
	TokensIn int `json:"tokens_in"`

	// TokensOut is the cumulative completion token count.
	TokensOut int `json:"tokens_out"`

	// Calls counts completion requests made.
	Calls int `json:"calls"`
}

// Add accumulates another usage sample into the summary.
func (u *UsageSummary) Add(tokensIn, tokensOut int) {
	u.TokensIn += tokensIn
	u.TokensOut += tokensOut
	u.Calls++
}

// CompositeScore is the weighted aggregate of an answer's dimension
// scores. It is derived state, recomputed whenever a constituent
// DimensionScore is produced.
type CompositeScore struct {
	// AnswerID references the scored answer.
	AnswerID string `json:"answer_id"`

	// Raw is the weighted sum of dimension raw scores, in [0,1].
	Raw float64 `json:"raw"`

	// Dimensions holds the constituent dimension scores.
	Dimensions []DimensionScore `json:"dimensions"`

	// Partial is set when one or more dimension evaluators failed and
	// their weight was redistributed across the remaining dimensions.
	Partial bool `json:"partial,omitempty"`

	// FailedCompetencyIDs lists dimensions that failed terminally when
	// Partial is set.
	FailedCompetencyIDs []string `json:"failed_competency_ids,omitempty"`

	// Usage aggregates provider resource consumption.
	Usage UsageSummary `json:"usage"`
}

// Dimension returns the dimension score for the given competency, or
// false when the composite does not contain it.
func (c CompositeScore) Dimension(competencyID string) (DimensionScore, bool) {
	for _, d := range c.Dimensions {
		if d.CompetencyID == competencyID {
			return d, true
		}
	}
	return DimensionScore{}, false
}

// PercentileResult ranks one dimension raw score against its cohort's
// recorded history.
type PercentileResult struct {
	// AnswerID references the ranked answer.
	AnswerID string `json:"answer_id"`

	// CompetencyID references the competency dimension ranked.
	CompetencyID string `json:"competency_id"`

	// Percentile is the cohort-relative rank in [0,100].
	Percentile float64 `json:"percentile"`

	// PoolSize is the cohort pool size at computation time.
	PoolSize int `json:"pool_size"`

	// OutlierExcluded is set when the score was flagged as an outlier
	// and excluded from recalibration statistics. The score is still
	// ranked against history.
	OutlierExcluded bool `json:"outlier_excluded,omitempty"`

	// Provisional is set when the pool was below the minimum size for
	// a statistically reliable percentile.
	Provisional bool `json:"provisional,omitempty"`
}

// ConfidenceFlag summarizes how trustworthy an explanation is.
type ConfidenceFlag string

// Explanation confidence flags.
const (
	ConfidenceHigh ConfidenceFlag = "high"
	ConfidenceLow  ConfidenceFlag = "low"
)

// DimensionHighlight is one ordered entry in an explanation: the
// dimension, its contribution to the weighted score, and the evidence
// behind it.
type DimensionHighlight struct {
	// CompetencyID references the highlighted dimension.
	CompetencyID string `json:"competency_id"`

	// CompetencyName is the human-readable dimension name.
	CompetencyName string `json:"competency_name"`

	// Contribution is weight multiplied by raw score, the dimension's
	// share of the composite.
	Contribution float64 `json:"contribution"`

	// Justification is the evaluator's reasoning.
	Justification string `json:"justification"`

	// Spans quote the decisive answer fragments.
	Spans []ContributingSpan `json:"spans,omitempty"`
}

// ExplanationArtifact is the human-readable justification for an
// evaluation, ordered so the most decisive factors appear first.
type ExplanationArtifact struct {
	// AnswerID references the explained answer.
	AnswerID string `json:"answer_id"`

	// Narrative is the merged, ordered explanation text.
	Narrative string `json:"narrative"`

	// Highlights are per-dimension entries ordered by absolute
	// contribution, descending.
	Highlights []DimensionHighlight `json:"highlights"`

	// Confidence flags explanations built from low-confidence
	// evaluations or small cohort pools. Never silently hidden.
	Confidence ConfidenceFlag `json:"confidence"`
}

// EvaluationReport is the consumer-facing result of evaluating one
// answer: the composite score, cohort percentiles, and explanation.
type EvaluationReport struct {
	// ID uniquely identifies the report.
	ID string `json:"id"`

	// Composite is the weighted aggregate score.
	Composite CompositeScore `json:"composite"`

	// Percentiles ranks each dimension against its cohort.
	Percentiles []PercentileResult `json:"percentiles"`

	// Explanation is the human-readable justification.
	Explanation ExplanationArtifact `json:"explanation"`

	// CreatedAt is when the report was assembled.
	CreatedAt time.Time `json:"created_at"`
}
