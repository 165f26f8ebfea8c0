// Package domain contains the core entities of the interview-evaluation
// engine: job contexts, competency frameworks, question sets, dimension
// scores, and the reports derived from them. The package has no
// infrastructure dependencies and defines the invariants the rest of
// the system must uphold.
package domain

// SeniorityLevel classifies the expectation bar for a job context.
// Evaluators adjust their scoring instructions based on this level.
type SeniorityLevel string

// Supported seniority levels, ordered by increasing expectation bar.
const (
	SeniorityJunior SeniorityLevel = "junior"
	SeniorityMid    SeniorityLevel = "mid"
	SenioritySenior SeniorityLevel = "senior"
	SeniorityStaff  SeniorityLevel = "staff"
)

// IsValid reports whether the seniority level is one of the supported values.
func (s SeniorityLevel) IsValid() bool {
	switch s {
	case SeniorityJunior, SeniorityMid, SenioritySenior, SeniorityStaff:
		return true
	}
	return false
}

// JobContext describes the position candidates are evaluated against.
// It is immutable once created; its identity for cache keying is derived
// from a content fingerprint of the description text.
type JobContext struct {
	// ID uniquely identifies this job context.
	ID string `json:"id"`

	// Description is the raw job description text.
	Description string `json:"description"`

	// Seniority is the expectation bar for the role.
	Seniority SeniorityLevel `json:"seniority"`

	// Domain is the business or technical domain of the role,
	// such as "fintech" or "infrastructure".
	Domain string `json:"domain,omitempty"`

	// CultureTags capture company size and culture signals that
	// influence team-fit competencies.
	CultureTags []string `json:"culture_tags,omitempty"`
}

// Fingerprint returns the stable content fingerprint of the job
// description. Two job contexts with identical description text share
// a fingerprint regardless of their IDs.
func (j JobContext) Fingerprint() string {
	return FingerprintText(j.Description)
}

// CohortKey returns the scoring-pool cohort key for this job context
// combined with a competency. Candidates for the same job family and
// competency are ranked against each other.
func (j JobContext) CohortKey(competencyID string) string {
	return j.Fingerprint()[:16] + ":" + competencyID
}
