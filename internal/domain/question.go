package domain

import "time"

// ScoringAnchor describes one band of a question's rubric: the score
// range it represents and what an answer in that band looks like.
type ScoringAnchor struct {
	// Band labels the score band, such as "0.0-0.4" or "exceeds".
	Band string `json:"band"`

	// Description explains what qualifies an answer for this band.
	Description string `json:"description"`
}

// Rubric defines how answers to a question are scored.
// Each DimensionScore references the rubric version of the question it
// scored so that cached evaluations stay consistent with their rubric.
type Rubric struct {
	// ExpectedComponents lists the ideas a complete answer covers.
	ExpectedComponents []string `json:"expected_components"`

	// Anchors are ordered score bands from lowest to highest.
	Anchors []ScoringAnchor `json:"anchors"`

	// Version ties the rubric to the prompt template version that
	// produced it.
	Version string `json:"version"`
}

// Question is a single interview question targeting one or more
// competencies. Questions are immutable after generation.
type Question struct {
	// ID uniquely identifies the question.
	ID string `json:"id"`

	// CompetencyIDs lists the competencies this question probes.
	CompetencyIDs []string `json:"competency_ids"`

	// Text is the question presented to the candidate.
	Text string `json:"text"`

	// Rubric defines how answers are scored.
	Rubric Rubric `json:"rubric"`

	// FollowUps are optional probing questions an interviewer may use
	// when the initial answer is shallow.
	FollowUps []string `json:"follow_ups,omitempty"`
}

// Targets reports whether the question probes the given competency.
func (q Question) Targets(competencyID string) bool {
	for _, id := range q.CompetencyIDs {
		if id == competencyID {
			return true
		}
	}
	return false
}

// GenerationMetadata records provenance for a generated question set.
type GenerationMetadata struct {
	// PromptVersion is the template version used for generation.
	PromptVersion string `json:"prompt_version"`

	// GeneratedAt is when generation completed.
	GeneratedAt time.Time `json:"generated_at"`

	// PartialCoverage is set when a competency remained uncovered
	// after the corrective pass and the caller chose to proceed.
	PartialCoverage bool `json:"partial_coverage,omitempty"`

	// UncoveredCompetencyIDs lists competencies without questions when
	// PartialCoverage is set.
	UncoveredCompetencyIDs []string `json:"uncovered_competency_ids,omitempty"`
}

// QuestionSet is the ordered collection of questions generated for a
// job context. Absent an explicit partial-coverage flag, every
// competency in the source framework is targeted by at least one
// question.
type QuestionSet struct {
	// JobContextID references the job context questions were generated for.
	JobContextID string `json:"job_context_id"`

	// Questions is the ordered question list.
	Questions []Question `json:"questions"`

	// Metadata records generation provenance.
	Metadata GenerationMetadata `json:"metadata"`
}

// Question returns the question with the given ID, or false when the
// set does not contain it.
func (qs QuestionSet) Question(id string) (Question, bool) {
	for _, q := range qs.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// UncoveredCompetencies returns the IDs of competencies in the
// framework that no question in the set targets.
func (qs QuestionSet) UncoveredCompetencies(framework CompetencyFramework) []string {
	var uncovered []string
	for _, c := range framework.Competencies {
		covered := false
		for _, q := range qs.Questions {
			if q.Targets(c.ID) {
				covered = true
				break
			}
		}
		if !covered {
			uncovered = append(uncovered, c.ID)
		}
	}
	return uncovered
}
