package prompt

// Template names used by the generation and evaluation pipelines.
const (
	// TemplateFrameworkExtraction derives a competency framework from a
	// job description.
	TemplateFrameworkExtraction = "framework_extraction"

	// TemplateFrameworkCorrective re-asks for a framework after a
	// structurally invalid first attempt, naming the violation.
	TemplateFrameworkCorrective = "framework_corrective"

	// TemplateQuestionGeneration produces interview questions with
	// rubrics for a competency framework.
	TemplateQuestionGeneration = "question_generation"

	// TemplateQuestionCoverage targets competencies missed by the first
	// question generation pass.
	TemplateQuestionCoverage = "question_coverage_corrective"

	// TemplateDimensionEvaluation scores one answer against one
	// competency's rubric.
	TemplateDimensionEvaluation = "dimension_evaluation"
)

var builtinTemplates = []Template{
	{
		Name:     TemplateFrameworkExtraction,
		Version:  "1.0.0",
		Variants: []string{frameworkExtractionV1},
	},
	{
		Name:     TemplateFrameworkCorrective,
		Version:  "1.0.0",
		Variants: []string{frameworkCorrectiveV1},
	},
	{
		Name:     TemplateQuestionGeneration,
		Version:  "1.0.0",
		Variants: []string{questionGenerationV1},
	},
	{
		Name:     TemplateQuestionCoverage,
		Version:  "1.0.0",
		Variants: []string{questionCoverageV1},
	},
	{
		Name:     TemplateDimensionEvaluation,
		Version:  "1.1.0",
		Variants: []string{dimensionEvaluationV1, dimensionEvaluationV1Concise},
	},
}

const frameworkExtractionV1 = `You are an experienced technical recruiter building a structured evaluation framework for a role.

Job description:
{{.Description}}

Seniority level: {{.Seniority}}
Domain: {{.Domain}}

Extract the competencies a strong candidate must demonstrate. Include technical requirements, soft skills, and culture signals. Assign each competency a weight reflecting its importance to the role; weights must sum to 1.0.

Respond with JSON only, using this exact structure:
{
  "competencies": [
    {
      "id": "short_snake_case_id",
      "name": "Competency name",
      "kind": "technical|soft_skill|culture",
      "weight": 0.25,
      "rationale": "Why this competency matters for the role"
    }
  ]
}

Rules:
- Between 4 and 10 competencies.
- At least one "technical" and at least one "soft_skill" or "culture" competency.
- Weights are decimals in (0, 1] and sum to exactly 1.0.
- No text outside the JSON object.`

const frameworkCorrectiveV1 = `Your previous competency framework was structurally invalid: {{.Violation}}

Regenerate the framework for this role, correcting the violation.

Job description:
{{.Description}}

Seniority level: {{.Seniority}}

Respond with JSON only, using this exact structure:
{
  "competencies": [
    {
      "id": "short_snake_case_id",
      "name": "Competency name",
      "kind": "technical|soft_skill|culture",
      "weight": 0.25,
      "rationale": "Why this competency matters for the role"
    }
  ]
}

Weights must sum to exactly 1.0, and the framework must contain at least one "technical" and at least one non-technical competency.`

const questionGenerationV1 = `You are designing a structured interview for a {{.Seniority}} {{.Domain}} role.

Competency framework:
{{.Competencies}}

Generate interview questions covering every competency above. Each question targets one or more competencies and carries a scoring rubric.

Respond with JSON only:
{
  "questions": [
    {
      "competency_ids": ["id_from_framework"],
      "text": "The question to ask the candidate",
      "follow_ups": ["Optional probing follow-up"],
      "rubric": {
        "expected_components": ["What a complete answer mentions"],
        "anchors": [
          {"band": "0.0-0.4", "description": "What a weak answer looks like"},
          {"band": "0.4-0.7", "description": "What an adequate answer looks like"},
          {"band": "0.7-1.0", "description": "What an excellent answer looks like"}
        ]
      }
    }
  ]
}

Rules:
- Between 1 and 3 questions per competency.
- Every competency id in the framework appears in at least one question's competency_ids.
- Rubric anchor bands cover the full [0, 1] score range from weakest to strongest.
- No text outside the JSON object.`

const questionCoverageV1 = `Your previous question set failed to cover these competencies: {{.Uncovered}}

Generate additional interview questions for a {{.Seniority}} role covering ONLY the competencies listed above.

Competency details:
{{.Competencies}}

Respond with JSON only, in the same structure as before:
{
  "questions": [
    {
      "competency_ids": ["id_from_framework"],
      "text": "The question to ask the candidate",
      "follow_ups": [],
      "rubric": {
        "expected_components": ["What a complete answer mentions"],
        "anchors": [
          {"band": "0.0-0.4", "description": "Weak answer"},
          {"band": "0.4-0.7", "description": "Adequate answer"},
          {"band": "0.7-1.0", "description": "Excellent answer"}
        ]
      }
    }
  ]
}`

const dimensionEvaluationV1 = `You are evaluating a candidate's interview answer against a single competency.

Competency: {{.CompetencyName}} ({{.CompetencyKind}})
Question: {{.Question}}

Rubric:
Expected components: {{.ExpectedComponents}}
Scoring anchors:
{{.Anchors}}

Seniority expectation: {{.SeniorityBar}}

Candidate's answer:
{{.Answer}}

Score the answer on this competency only. Identify the specific spans of the answer that raised or lowered the score.

Respond with JSON only:
{
  "raw_score": 0.0,
  "confidence": 0.0,
  "justification": "One paragraph explaining the score against the rubric",
  "spans": [
    {"text": "quoted excerpt from the answer", "polarity": "positive|negative"}
  ]
}

Rules:
- raw_score and confidence are decimals in [0, 1].
- Judge the answer against the stated seniority expectation, not an absolute bar.
- Quote spans verbatim from the answer.
- No text outside the JSON object.`

const dimensionEvaluationV1Concise = `Evaluate this interview answer on one competency.

Competency: {{.CompetencyName}} ({{.CompetencyKind}})
Question: {{.Question}}
Expected components: {{.ExpectedComponents}}
Anchors:
{{.Anchors}}
Seniority expectation: {{.SeniorityBar}}

Answer:
{{.Answer}}

Return JSON only:
{
  "raw_score": 0.0,
  "confidence": 0.0,
  "justification": "Why this score, per the rubric",
  "spans": [
    {"text": "verbatim excerpt", "polarity": "positive|negative"}
  ]
}

Scores are in [0, 1]. Judge against the seniority expectation. No text outside the JSON.`
