package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/hireloop/interview-engine/internal/cache"
	"github.com/hireloop/interview-engine/internal/domain"
	"github.com/hireloop/interview-engine/internal/ports"
	"github.com/hireloop/interview-engine/internal/prompt"
)

const (
	// questionTemperature allows some variety in question phrasing.
	questionTemperature = 0.7

	// maxQuestionsPerCompetency caps how many questions may target one
	// competency after trimming.
	maxQuestionsPerCompetency = 3

	// nearDuplicateThreshold is the normalized edit distance below
	// which two questions count as near-duplicates.
	nearDuplicateThreshold = 0.25
)

// QuestionGenerator produces the interview question set for a
// competency framework, guaranteeing coverage of every competency or
// reporting exactly which ones could not be covered.
type QuestionGenerator struct {
	gateway  ports.CompletionGateway
	registry *prompt.Registry
	cache    *cache.ResponseCache
	logger   *zap.Logger

	modelHint string
	folder    cases.Caser
}

// NewQuestionGenerator builds a question generator. The cache is
// optional.
func NewQuestionGenerator(
	gateway ports.CompletionGateway,
	registry *prompt.Registry,
	responseCache *cache.ResponseCache,
	modelHint string,
	logger *zap.Logger,
) *QuestionGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionGenerator{
		gateway:   gateway,
		registry:  registry,
		cache:     responseCache,
		modelHint: modelHint,
		logger:    logger.Named("question_generator"),
		folder:    cases.Fold(),
	}
}

// questionsPayload is the wire shape expected from the model.
type questionsPayload struct {
	Questions []struct {
		CompetencyIDs []string `json:"competency_ids"`
		Text          string   `json:"text"`
		FollowUps     []string `json:"follow_ups"`
		Rubric        struct {
			ExpectedComponents []string `json:"expected_components"`
			Anchors            []struct {
				Band        string `json:"band"`
				Description string `json:"description"`
			} `json:"anchors"`
		} `json:"rubric"`
	} `json:"questions"`
}

func (p questionsPayload) toDomain(rubricVersion string) []domain.Question {
	var questions []domain.Question
	for _, q := range p.Questions {
		if strings.TrimSpace(q.Text) == "" {
			continue
		}
		question := domain.Question{
			ID:            uuid.NewString(),
			CompetencyIDs: q.CompetencyIDs,
			Text:          q.Text,
			FollowUps:     q.FollowUps,
			Rubric: domain.Rubric{
				ExpectedComponents: q.Rubric.ExpectedComponents,
				Version:            rubricVersion,
			},
		}
		for _, a := range q.Rubric.Anchors {
			question.Rubric.Anchors = append(question.Rubric.Anchors, domain.ScoringAnchor{
				Band:        a.Band,
				Description: a.Description,
			})
		}
		questions = append(questions, question)
	}
	return questions
}

// Generate produces the question set for a framework. When the first
// pass leaves competencies uncovered, one corrective pass targets the
// gaps; competencies still uncovered after that surface as a
// CoverageError carrying the partial set, and the caller decides
// whether to proceed.
func (g *QuestionGenerator) Generate(
	ctx context.Context,
	job domain.JobContext,
	framework domain.CompetencyFramework,
) (domain.QuestionSet, error) {
	resolved, err := g.registry.Resolve(prompt.TemplateQuestionGeneration, job.ID)
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("failed to resolve question template: %w", err)
	}

	competencies := formatCompetencies(framework)
	rendered, err := resolved.Render(map[string]any{
		"Seniority":    string(job.Seniority),
		"Domain":       job.Domain,
		"Competencies": competencies,
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}

	generate := func(ctx context.Context) ([]byte, error) {
		set, err := g.generateCovered(ctx, job, framework, resolved.Version, rendered, competencies)
		if err != nil {
			return nil, err
		}
		return json.Marshal(set)
	}

	var raw []byte
	if g.cache != nil {
		key := cache.Key(resolved.Name, resolved.Version, rendered, g.modelHint)
		var cached bool
		raw, cached, err = g.cache.GetOrGenerate(ctx, key, 0, generate)
		if err == nil && cached {
			g.logger.Debug("question set served from cache", zap.String("job_context_id", job.ID))
		}
	} else {
		raw, err = generate(ctx)
	}
	if err != nil {
		return domain.QuestionSet{}, err
	}

	var set domain.QuestionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("failed to decode cached question set: %w", err)
	}
	return set, nil
}

func (g *QuestionGenerator) generateCovered(
	ctx context.Context,
	job domain.JobContext,
	framework domain.CompetencyFramework,
	promptVersion string,
	rendered string,
	competencies string,
) (domain.QuestionSet, error) {
	questions, err := g.ask(ctx, job, promptVersion, rendered)
	if err != nil {
		return domain.QuestionSet{}, err
	}

	set := domain.QuestionSet{
		JobContextID: job.ID,
		Questions:    g.refine(questions, framework),
		Metadata: domain.GenerationMetadata{
			PromptVersion: promptVersion,
			GeneratedAt:   time.Now().UTC(),
		},
	}

	uncovered := set.UncoveredCompetencies(framework)
	if len(uncovered) == 0 {
		return set, nil
	}

	g.logger.Warn("question set left competencies uncovered, running corrective pass",
		zap.String("job_context_id", job.ID),
		zap.Strings("uncovered", uncovered))

	corrective, err := g.registry.Resolve(prompt.TemplateQuestionCoverage, job.ID)
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("failed to resolve coverage template: %w", err)
	}
	correctiveRendered, err := corrective.Render(map[string]any{
		"Uncovered":    strings.Join(uncovered, ", "),
		"Seniority":    string(job.Seniority),
		"Competencies": competencies,
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}

	extra, err := g.ask(ctx, job, promptVersion, correctiveRendered)
	if err != nil {
		return domain.QuestionSet{}, err
	}

	set.Questions = g.refine(append(set.Questions, extra...), framework)

	uncovered = set.UncoveredCompetencies(framework)
	if len(uncovered) == 0 {
		return set, nil
	}

	// Hand the partial set back through the error so the caller can
	// choose partial coverage deliberately.
	set.Metadata.PartialCoverage = true
	set.Metadata.UncoveredCompetencyIDs = uncovered
	return domain.QuestionSet{}, &domain.CoverageError{
		UncoveredCompetencyIDs: uncovered,
		Partial:                &set,
	}
}

func (g *QuestionGenerator) ask(
	ctx context.Context,
	job domain.JobContext,
	promptVersion string,
	rendered string,
) ([]domain.Question, error) {
	temperature := questionTemperature

	var payload questionsPayload
	result, err := g.gateway.CompleteJSON(ctx, ports.CompletionRequest{
		Prompt:      rendered,
		ModelHint:   g.modelHint,
		Temperature: &temperature,
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("question generation failed: %w", err)
	}

	g.logger.Debug("questions generated",
		zap.String("job_context_id", job.ID),
		zap.String("provider", result.Provider),
		zap.Int("questions", len(payload.Questions)),
		zap.Int("tokens_out", result.TokensOut))

	return payload.toDomain(promptVersion), nil
}

// refine drops questions targeting unknown competencies, filters
// near-duplicates, and trims per-competency overflow. A question is
// never dropped when dropping it would break coverage.
func (g *QuestionGenerator) refine(questions []domain.Question, framework domain.CompetencyFramework) []domain.Question {
	known := make(map[string]bool, len(framework.Competencies))
	for _, c := range framework.Competencies {
		known[c.ID] = true
	}

	var kept []domain.Question
	perCompetency := make(map[string]int)

	for _, q := range questions {
		var targets []string
		for _, id := range q.CompetencyIDs {
			if known[id] {
				targets = append(targets, id)
			}
		}
		if len(targets) == 0 {
			g.logger.Debug("dropping question with no known competency targets",
				zap.String("text", q.Text))
			continue
		}
		q.CompetencyIDs = targets

		if g.isNearDuplicate(q, kept) && g.coversOnlyCoveredCompetencies(q, perCompetency) {
			g.logger.Debug("dropping near-duplicate question", zap.String("text", q.Text))
			continue
		}

		if !g.underCap(q, perCompetency) && g.coversOnlyCoveredCompetencies(q, perCompetency) {
			continue
		}

		kept = append(kept, q)
		for _, id := range q.CompetencyIDs {
			perCompetency[id]++
		}
	}
	return kept
}

// isNearDuplicate reports whether q's text is within the edit-distance
// threshold of any kept question, compared case-folded.
func (g *QuestionGenerator) isNearDuplicate(q domain.Question, kept []domain.Question) bool {
	folded := g.folder.String(strings.TrimSpace(q.Text))
	for _, other := range kept {
		otherFolded := g.folder.String(strings.TrimSpace(other.Text))
		longest := max(len([]rune(folded)), len([]rune(otherFolded)))
		if longest == 0 {
			continue
		}
		distance := levenshtein.ComputeDistance(folded, otherFolded)
		if float64(distance)/float64(longest) < nearDuplicateThreshold {
			return true
		}
	}
	return false
}

// coversOnlyCoveredCompetencies reports whether every competency q
// targets already has at least one kept question.
func (g *QuestionGenerator) coversOnlyCoveredCompetencies(q domain.Question, perCompetency map[string]int) bool {
	for _, id := range q.CompetencyIDs {
		if perCompetency[id] == 0 {
			return false
		}
	}
	return true
}

// underCap reports whether any of q's targets still has room below the
// per-competency question cap.
func (g *QuestionGenerator) underCap(q domain.Question, perCompetency map[string]int) bool {
	for _, id := range q.CompetencyIDs {
		if perCompetency[id] < maxQuestionsPerCompetency {
			return true
		}
	}
	return false
}
