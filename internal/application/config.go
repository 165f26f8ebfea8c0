// Package application wires the engine's components together behind
// the consumer-facing API: job context in, framework, question set,
// and evaluation reports out.
package application

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hireloop/interview-engine/infrastructure/llm"
)

// modelHintPattern matches "provider/model" hints such as
// "anthropic/claude-3-5-sonnet-20241022".
var modelHintPattern = regexp.MustCompile(`^[a-z0-9]+/[A-Za-z0-9\-_.]+$`)

// EngineConfig is the full configuration surface of the evaluation
// engine, loadable from YAML.
type EngineConfig struct {
	// Gateway configures providers and resilience parameters.
	Gateway llm.GatewayConfig `yaml:"gateway" validate:"required"`

	// Cache configures the response cache.
	Cache CacheConfig `yaml:"cache"`

	// Scoring configures the cohort scoring pools.
	Scoring ScoringConfig `yaml:"scoring"`

	// Evaluation configures generation and evaluation behavior.
	Evaluation EvaluationConfig `yaml:"evaluation"`
}

// CacheConfig tunes the response cache. Zero values take the cache
// package defaults.
type CacheConfig struct {
	// Capacity bounds the number of cached entries.
	Capacity int `yaml:"capacity" validate:"omitempty,min=1,max=1000000"`

	// TTL is the freshness window for cached responses.
	TTL time.Duration `yaml:"ttl"`

	// SweepInterval controls background eviction of expired entries.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ScoringConfig tunes the cohort scoring pools. Zero values take the
// scoring package defaults.
type ScoringConfig struct {
	// OutlierSigma flags scores further than this many standard
	// deviations from the cohort mean.
	OutlierSigma float64 `yaml:"outlier_sigma" validate:"omitempty,gt=0,max=10"`

	// MinimumPoolSize is the smallest pool yielding non-provisional
	// percentiles.
	MinimumPoolSize int `yaml:"minimum_pool_size" validate:"omitempty,min=1,max=10000"`

	// RecalibrationEvery triggers recalibration after this many
	// insertions.
	RecalibrationEvery int `yaml:"recalibration_every" validate:"omitempty,min=1"`

	// RecalibrationPeriod triggers recalibration after this much
	// elapsed time, whichever comes first.
	RecalibrationPeriod time.Duration `yaml:"recalibration_period"`

	// DecayFactor down-weights older samples during recalibration.
	DecayFactor float64 `yaml:"decay_factor" validate:"omitempty,gt=0,lt=1"`

	// SampleCapacity bounds the per-pool sample buffer.
	SampleCapacity int `yaml:"sample_capacity" validate:"omitempty,min=1,max=100000"`
}

// EvaluationConfig tunes generation and evaluation behavior.
type EvaluationConfig struct {
	// ModelHint pins generation and evaluation calls to a
	// "provider/model" pair when set.
	ModelHint string `yaml:"model_hint" validate:"omitempty,modelhint"`

	// ConfidenceThreshold is the dimension confidence below which
	// explanations are flagged low-confidence.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" validate:"omitempty,gt=0,lte=1"`

	// AcceptPartialCoverage proceeds with a partially covering question
	// set instead of failing when the corrective pass leaves gaps. The
	// gap is always recorded on the set's metadata.
	AcceptPartialCoverage bool `yaml:"accept_partial_coverage"`
}

// newConfigValidator builds the validator used for engine
// configuration, with the modelhint format check registered.
func newConfigValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.RegisterValidation("modelhint", func(fl validator.FieldLevel) bool {
		return modelHintPattern.MatchString(fl.Field().String())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register modelhint validator: %w", err)
	}
	return v, nil
}

// LoadEngineConfig parses and validates a YAML engine configuration.
func LoadEngineConfig(data []byte) (EngineConfig, error) {
	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("failed to parse engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

// Validate checks the configuration's structural constraints.
func (c EngineConfig) Validate() error {
	v, err := newConfigValidator()
	if err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	return nil
}
