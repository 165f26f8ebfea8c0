package domain

import (
	"fmt"
	"math"
)

// WeightEpsilon is the tolerance within which competency weights must
// sum to 1.0 for a framework to be considered valid.
const WeightEpsilon = 1e-6

// CompetencyKind distinguishes technical competencies from soft-skill
// and culture-fit competencies. A valid framework contains at least one
// of each broad category.
type CompetencyKind string

// Supported competency kinds.
const (
	CompetencyTechnical CompetencyKind = "technical"
	CompetencySoftSkill CompetencyKind = "soft_skill"
	CompetencyCulture   CompetencyKind = "culture"
)

// IsTechnical reports whether the kind counts toward the framework's
// technical coverage requirement.
func (k CompetencyKind) IsTechnical() bool { return k == CompetencyTechnical }

// Competency is a single evaluation dimension extracted from a job
// description, such as "distributed systems design" or "mentorship".
type Competency struct {
	// ID uniquely identifies the competency within its framework.
	ID string `json:"id"`

	// Name is the human-readable competency name.
	Name string `json:"name"`

	// Kind classifies the competency as technical, soft-skill, or culture.
	Kind CompetencyKind `json:"kind"`

	// Weight is this competency's share of the composite score, in [0,1].
	// Weights across a framework sum to 1 within WeightEpsilon.
	Weight float64 `json:"weight"`

	// Rationale explains why this competency matters for the role.
	Rationale string `json:"rationale,omitempty"`
}

// CompetencyFramework is the structured "thought chain" derived from a
// job description: an ordered, weighted set of competencies. It is
// immutable after creation and versioned by the prompt template that
// produced it.
type CompetencyFramework struct {
	// JobContextID references the job context this framework was
	// generated for.
	JobContextID string `json:"job_context_id"`

	// Competencies is the ordered list of evaluation dimensions.
	Competencies []Competency `json:"competencies"`

	// PromptVersion records the prompt template version used for
	// generation, establishing the rubric version lineage.
	PromptVersion string `json:"prompt_version"`
}

// Competency returns the competency with the given ID, or false when
// the framework does not contain it.
func (f CompetencyFramework) Competency(id string) (Competency, bool) {
	for _, c := range f.Competencies {
		if c.ID == id {
			return c, true
		}
	}
	return Competency{}, false
}

// Weights returns the competency weights keyed by competency ID.
func (f CompetencyFramework) Weights() map[string]float64 {
	weights := make(map[string]float64, len(f.Competencies))
	for _, c := range f.Competencies {
		weights[c.ID] = c.Weight
	}
	return weights
}

// Validate checks the framework invariants: a non-empty competency
// list, weights summing to 1 within WeightEpsilon, and at least one
// technical and one non-technical competency.
func (f CompetencyFramework) Validate() error {
	verr := NewValidationError("competency framework")

	if len(f.Competencies) == 0 {
		verr.AddError("framework has no competencies")
		return verr
	}

	var sum float64
	var technical, nonTechnical int
	for i, c := range f.Competencies {
		if c.ID == "" {
			verr.AddError(fmt.Sprintf("competency %d has an empty ID", i))
		}
		if c.Weight < 0 || c.Weight > 1 {
			verr.AddError(fmt.Sprintf("competency %q weight %.4f outside [0,1]", c.Name, c.Weight))
		}
		sum += c.Weight
		if c.Kind.IsTechnical() {
			technical++
		} else {
			nonTechnical++
		}
	}

	if math.Abs(sum-1.0) > WeightEpsilon {
		verr.AddError(fmt.Sprintf("competency weights sum to %.6f, expected 1.0", sum))
	}
	if technical == 0 {
		verr.AddError("framework has no technical competency")
	}
	if nonTechnical == 0 {
		verr.AddError("framework has no soft-skill or culture competency")
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// NormalizeWeights returns a copy of the framework with weights scaled
// to sum to exactly 1.0. Competencies with missing weights (all zero)
// receive uniform weights. Negative weights are clamped to zero before
// normalization.
func (f CompetencyFramework) NormalizeWeights() CompetencyFramework {
	out := f
	out.Competencies = make([]Competency, len(f.Competencies))
	copy(out.Competencies, f.Competencies)

	var sum float64
	for i := range out.Competencies {
		if out.Competencies[i].Weight < 0 {
			out.Competencies[i].Weight = 0
		}
		sum += out.Competencies[i].Weight
	}

	if sum == 0 {
		uniform := 1.0 / float64(len(out.Competencies))
		for i := range out.Competencies {
			out.Competencies[i].Weight = uniform
		}
		return out
	}

	for i := range out.Competencies {
		out.Competencies[i].Weight /= sum
	}
	return out
}
