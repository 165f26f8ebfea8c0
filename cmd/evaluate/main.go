// Command evaluate runs the interview evaluation pipeline from the
// command line: derive a competency framework from a job description,
// generate the interview questions, and optionally score a candidate
// answer against them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hireloop/interview-engine/infrastructure/llm"
	"github.com/hireloop/interview-engine/infrastructure/middleware"
	"github.com/hireloop/interview-engine/infrastructure/storage"
	"github.com/hireloop/interview-engine/internal/application"
	"github.com/hireloop/interview-engine/internal/domain"
)

func main() {
	var (
		configPath  = flag.String("config", "engine.yaml", "Engine configuration file")
		jobPath     = flag.String("job", "", "Job description text file (required)")
		seniority   = flag.String("seniority", "mid", "Target seniority: junior, mid, senior, staff")
		jobDomain   = flag.String("domain", "general", "Job domain, e.g. backend, fintech")
		answerPath  = flag.String("answer", "", "Candidate answer text file; when set, the answer is scored against the first question")
		candidateID = flag.String("candidate", "cli-candidate", "Candidate identifier for scoring")
		timeout     = flag.Duration("timeout", 2*time.Minute, "Overall deadline for the run")
	)
	flag.Parse()

	if *jobPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	configData, err := os.ReadFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}
	cfg, err := application.LoadEngineConfig(configData)
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	description, err := os.ReadFile(*jobPath)
	if err != nil {
		log.Fatalf("Failed to read job description: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := middleware.NewPrometheusMetrics(nil)
	gateway, err := llm.NewGateway(cfg.Gateway, logger, metrics)
	if err != nil {
		log.Fatalf("Failed to build gateway: %v", err)
	}

	engine, err := application.NewEngine(cfg, application.Dependencies{
		Gateway: gateway,
		Store:   storage.NewMemoryStore(),
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	job := domain.JobContext{
		ID:          "cli-job",
		Description: strings.TrimSpace(string(description)),
		Seniority:   domain.SeniorityLevel(*seniority),
		Domain:      *jobDomain,
	}

	framework, err := engine.Framework(ctx, job)
	if err != nil {
		log.Fatalf("Framework generation failed: %v", err)
	}
	fmt.Printf("Competency framework (%d competencies):\n", len(framework.Competencies))
	for _, c := range framework.Competencies {
		fmt.Printf("- %s (%s, weight %.2f): %s\n", c.Name, c.Kind, c.Weight, c.Rationale)
	}

	set, err := engine.Questions(ctx, job.ID)
	if err != nil {
		log.Fatalf("Question generation failed: %v", err)
	}
	fmt.Printf("\nInterview questions (%d):\n", len(set.Questions))
	for i, q := range set.Questions {
		fmt.Printf("%d. %s\n   targets: %v\n", i+1, q.Text, q.CompetencyIDs)
	}
	if set.Metadata.PartialCoverage {
		fmt.Printf("\nWarning: uncovered competencies: %v\n", set.Metadata.UncoveredCompetencyIDs)
	}

	if *answerPath == "" {
		return
	}

	answerText, err := os.ReadFile(*answerPath)
	if err != nil {
		log.Fatalf("Failed to read answer: %v", err)
	}
	report, err := engine.Evaluate(ctx, job.ID, domain.Answer{
		QuestionID:  set.Questions[0].ID,
		CandidateID: *candidateID,
		Text:        strings.TrimSpace(string(answerText)),
	})
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}
	fmt.Printf("\nEvaluation report:\n%s\n", out)
}
