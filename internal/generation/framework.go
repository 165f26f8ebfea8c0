// Package generation turns job descriptions into evaluation artifacts:
// a weighted competency framework and a rubric-bearing question set.
// Both generators render versioned prompts, call the completion gateway
// for structured JSON, validate the result, and retry once with a
// corrective instruction before giving up.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hireloop/interview-engine/internal/cache"
	"github.com/hireloop/interview-engine/internal/domain"
	"github.com/hireloop/interview-engine/internal/ports"
	"github.com/hireloop/interview-engine/internal/prompt"
)

// frameworkTemperature keeps framework extraction near-deterministic.
const frameworkTemperature = 0.2

// FrameworkGenerator derives a competency framework, the structured
// chain of evaluation dimensions, from a job context.
type FrameworkGenerator struct {
	gateway  ports.CompletionGateway
	registry *prompt.Registry
	cache    *cache.ResponseCache
	logger   *zap.Logger

	// modelHint optionally pins generation to a "provider/model" pair.
	modelHint string
}

// NewFrameworkGenerator builds a framework generator. The cache is
// optional; without it every call generates fresh.
func NewFrameworkGenerator(
	gateway ports.CompletionGateway,
	registry *prompt.Registry,
	responseCache *cache.ResponseCache,
	modelHint string,
	logger *zap.Logger,
) *FrameworkGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrameworkGenerator{
		gateway:   gateway,
		registry:  registry,
		cache:     responseCache,
		modelHint: modelHint,
		logger:    logger.Named("framework_generator"),
	}
}

// frameworkPayload is the wire shape expected from the model.
type frameworkPayload struct {
	Competencies []struct {
		ID        string  `json:"id"`
		Name      string  `json:"name"`
		Kind      string  `json:"kind"`
		Weight    float64 `json:"weight"`
		Rationale string  `json:"rationale"`
	} `json:"competencies"`
}

func (p frameworkPayload) toDomain(jobContextID, promptVersion string) domain.CompetencyFramework {
	framework := domain.CompetencyFramework{
		JobContextID:  jobContextID,
		PromptVersion: promptVersion,
	}
	for _, c := range p.Competencies {
		framework.Competencies = append(framework.Competencies, domain.Competency{
			ID:        c.ID,
			Name:      c.Name,
			Kind:      domain.CompetencyKind(c.Kind),
			Weight:    c.Weight,
			Rationale: c.Rationale,
		})
	}
	return framework
}

// Generate derives the competency framework for a job context. An
// identical job context within the cache freshness window returns the
// cached framework without a provider call. A structurally invalid
// first attempt triggers one corrective regeneration; a second invalid
// result fails with FrameworkValidationError.
func (g *FrameworkGenerator) Generate(ctx context.Context, job domain.JobContext) (domain.CompetencyFramework, error) {
	resolved, err := g.registry.Resolve(prompt.TemplateFrameworkExtraction, job.ID)
	if err != nil {
		return domain.CompetencyFramework{}, fmt.Errorf("failed to resolve extraction template: %w", err)
	}

	rendered, err := resolved.Render(map[string]any{
		"Description": job.Description,
		"Seniority":   string(job.Seniority),
		"Domain":      job.Domain,
	})
	if err != nil {
		return domain.CompetencyFramework{}, err
	}

	generate := func(ctx context.Context) ([]byte, error) {
		framework, err := g.generateValidated(ctx, job, resolved.Version, rendered)
		if err != nil {
			return nil, err
		}
		return json.Marshal(framework)
	}

	var raw []byte
	if g.cache != nil {
		key := cache.Key(resolved.Name, resolved.Version, rendered, g.modelHint)
		var cached bool
		raw, cached, err = g.cache.GetOrGenerate(ctx, key, 0, generate)
		if err == nil && cached {
			g.logger.Debug("framework served from cache", zap.String("job_context_id", job.ID))
		}
	} else {
		raw, err = generate(ctx)
	}
	if err != nil {
		return domain.CompetencyFramework{}, err
	}

	var framework domain.CompetencyFramework
	if err := json.Unmarshal(raw, &framework); err != nil {
		return domain.CompetencyFramework{}, fmt.Errorf("failed to decode cached framework: %w", err)
	}
	return framework, nil
}

// generateValidated runs the extraction call, normalizes weights, and
// validates. On validation failure it re-prompts once with the
// violation named; a second failure surfaces FrameworkValidationError.
func (g *FrameworkGenerator) generateValidated(
	ctx context.Context,
	job domain.JobContext,
	promptVersion string,
	rendered string,
) (domain.CompetencyFramework, error) {
	framework, err := g.extract(ctx, job, promptVersion, rendered)
	if err != nil {
		return domain.CompetencyFramework{}, err
	}

	framework = framework.NormalizeWeights()
	validationErr := framework.Validate()
	if validationErr == nil {
		return framework, nil
	}

	g.logger.Warn("generated framework failed validation, retrying with corrective instruction",
		zap.String("job_context_id", job.ID),
		zap.Error(validationErr))

	corrective, err := g.registry.Resolve(prompt.TemplateFrameworkCorrective, job.ID)
	if err != nil {
		return domain.CompetencyFramework{}, fmt.Errorf("failed to resolve corrective template: %w", err)
	}
	correctiveRendered, err := corrective.Render(map[string]any{
		"Violation":   validationErr.Error(),
		"Description": job.Description,
		"Seniority":   string(job.Seniority),
	})
	if err != nil {
		return domain.CompetencyFramework{}, err
	}

	framework, err = g.extract(ctx, job, promptVersion, correctiveRendered)
	if err != nil {
		return domain.CompetencyFramework{}, err
	}

	framework = framework.NormalizeWeights()
	if validationErr = framework.Validate(); validationErr != nil {
		return domain.CompetencyFramework{}, &domain.FrameworkValidationError{
			JobContextID: job.ID,
			Reason:       validationErr,
		}
	}
	return framework, nil
}

func (g *FrameworkGenerator) extract(
	ctx context.Context,
	job domain.JobContext,
	promptVersion string,
	rendered string,
) (domain.CompetencyFramework, error) {
	temperature := frameworkTemperature

	var payload frameworkPayload
	result, err := g.gateway.CompleteJSON(ctx, ports.CompletionRequest{
		Prompt:      rendered,
		ModelHint:   g.modelHint,
		Temperature: &temperature,
	}, &payload)
	if err != nil {
		return domain.CompetencyFramework{}, fmt.Errorf("framework extraction failed: %w", err)
	}

	g.logger.Debug("framework extracted",
		zap.String("job_context_id", job.ID),
		zap.String("provider", result.Provider),
		zap.Int("competencies", len(payload.Competencies)),
		zap.Int("tokens_out", result.TokensOut))

	return payload.toDomain(job.ID, promptVersion), nil
}

// formatCompetencies renders a framework as a compact list for prompt
// interpolation.
func formatCompetencies(framework domain.CompetencyFramework) string {
	var b strings.Builder
	for _, c := range framework.Competencies {
		fmt.Fprintf(&b, "- %s (%s, kind=%s, weight=%.2f): %s\n",
			c.Name, c.ID, c.Kind, c.Weight, c.Rationale)
	}
	return b.String()
}
