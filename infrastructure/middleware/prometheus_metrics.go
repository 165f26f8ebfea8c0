// Package middleware provides cross-cutting adapters for the
// evaluation engine, currently the Prometheus metrics collector.
package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hireloop/interview-engine/internal/ports"
)

// PrometheusMetrics implements ports.MetricsCollector on Prometheus.
// It covers provider gateway traffic, cache effectiveness, evaluation
// outcomes, and scoring pool state.
type PrometheusMetrics struct {
	llmRequests      *prometheus.CounterVec
	llmTokens        *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
	cacheEvents      *prometheus.CounterVec
	dimensionFailed  *prometheus.CounterVec
	dimensionScore   *prometheus.HistogramVec
	poolSize         *prometheus.GaugeVec
	poolOutliers     *prometheus.CounterVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
	genericHistogram *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a collector and registers its metrics
// with reg. A nil registerer uses the default global registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Completion requests by provider, model, and outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Token usage by provider, model, and direction.",
			},
			[]string{"provider", "model", "token_type"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_latency_seconds",
				Help:    "Completion request latency by provider and outcome.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model", "status"},
		),
		cacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "response_cache_events_total",
				Help: "Response cache hits and misses.",
			},
			[]string{"event"},
		),
		dimensionFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evaluation_dimensions_failed_total",
				Help: "Dimension evaluators that failed terminally.",
			},
			[]string{"competency_id"},
		),
		dimensionScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evaluation_dimension_score",
				Help:    "Distribution of raw dimension scores.",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"competency_id"},
		),
		poolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scoring_pool_size",
				Help: "Current sample count per scoring cohort.",
			},
			[]string{"cohort"},
		),
		poolOutliers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scoring_pool_outliers_total",
				Help: "Scores flagged as outliers per scoring cohort.",
			},
			[]string{"cohort"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_operations_total",
				Help: "Engine operations not covered by a dedicated metric.",
			},
			[]string{"operation"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "engine_system_state",
				Help: "Engine state values not covered by a dedicated metric.",
			},
			[]string{"metric"},
		),
		genericHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_observations",
				Help:    "Engine observations not covered by a dedicated metric.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
	}
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "llm_requests_total":
		pm.llmRequests.WithLabelValues(
			labels["provider"], labels["model"], labels["status"],
		).Add(value)
	case "llm_tokens_total":
		pm.llmTokens.WithLabelValues(
			labels["provider"], labels["model"], labels["token_type"],
		).Add(value)
	case "cache_hits_total":
		pm.cacheEvents.WithLabelValues("hit").Add(value)
	case "cache_misses_total":
		pm.cacheEvents.WithLabelValues("miss").Add(value)
	case "evaluation_dimensions_failed_total":
		pm.dimensionFailed.WithLabelValues(labels["competency_id"]).Add(value)
	case "scoring_pool_outliers_total":
		pm.poolOutliers.WithLabelValues(labels["cohort"]).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case "scoring_pool_size":
		pm.poolSize.WithLabelValues(labels["cohort"]).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric).Set(value)
	}
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "llm_latency_seconds":
		pm.llmLatency.WithLabelValues(
			labels["provider"], labels["model"], labels["status"],
		).Observe(value)
	case "evaluation_dimension_score":
		pm.dimensionScore.WithLabelValues(labels["competency_id"]).Observe(value)
	default:
		pm.genericHistogram.WithLabelValues(metric).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements
// MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
