// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the trial-matching
// pipeline.
//
// # Description
//
// Metrics cover each pipeline stage:
//   - Search counters by outcome (success, rejected, degraded)
//   - Rate-limit rejections
//   - Registry request latency
//   - Eligibility cache hits/misses/errors
//   - Scoring batch latency and scored-trial counts
//
// Exposed via the /metrics endpoint; use with Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "trialscout"

// Subsystem for pipeline metrics
const pipelineSubsystem = "pipeline"

// Search outcomes used as counter labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeDegraded = "degraded"
)

// Cache operation outcomes used as counter labels.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
	CacheError   = "error"
)

// PipelineMetrics holds all Prometheus metrics for the matching pipeline.
//
// Initialize once at startup via InitMetrics(); double registration panics.
type PipelineMetrics struct {
	// SearchesTotal counts completed searches by mode and outcome.
	// Labels: mode (form, chat), outcome (success, rejected, degraded)
	SearchesTotal *prometheus.CounterVec

	// RateLimitRejectionsTotal counts requests rejected at admission.
	RateLimitRejectionsTotal prometheus.Counter

	// RegistryRequestSeconds measures registry call latency.
	// Labels: operation (list_search, eligibility)
	RegistryRequestSeconds *prometheus.HistogramVec

	// CacheOpsTotal counts eligibility cache lookups by outcome.
	// Labels: outcome (hit, miss, expired, error)
	CacheOpsTotal *prometheus.CounterVec

	// TrialsScoredTotal counts trials submitted for scoring.
	TrialsScoredTotal prometheus.Counter

	// ScoringBatchSeconds measures LLM scoring batch duration.
	ScoringBatchSeconds prometheus.Histogram

	// ActiveSearches tracks searches currently in flight.
	ActiveSearches prometheus.Gauge
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *PipelineMetrics

var initOnce sync.Once

// InitMetrics creates and registers all pipeline metrics on the default
// Prometheus registry. Registration happens once; repeat calls return
// the existing singleton.
func InitMetrics() *PipelineMetrics {
	initOnce.Do(registerMetrics)
	return DefaultMetrics
}

func registerMetrics() {
	DefaultMetrics = &PipelineMetrics{
		SearchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "searches_total",
				Help:      "Completed trial searches by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),

		RateLimitRejectionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "rate_limit_rejections_total",
				Help:      "Requests rejected by admission control",
			},
		),

		RegistryRequestSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "registry_request_seconds",
				Help:      "Registry API call latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 15.0},
			},
			[]string{"operation"},
		),

		CacheOpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "eligibility_cache_ops_total",
				Help:      "Eligibility cache lookups by outcome",
			},
			[]string{"outcome"},
		),

		TrialsScoredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "trials_scored_total",
				Help:      "Trials submitted to the scorer",
			},
		),

		ScoringBatchSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "scoring_batch_seconds",
				Help:      "LLM scoring batch duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		ActiveSearches: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "active_searches",
				Help:      "Searches currently in flight",
			},
		),
	}
}

// RecordSearch records a completed search. No-op when metrics are disabled.
func RecordSearch(mode, outcome string) {
	if DefaultMetrics != nil {
		DefaultMetrics.SearchesTotal.WithLabelValues(mode, outcome).Inc()
	}
}

// RecordCacheOp records one eligibility cache lookup outcome.
func RecordCacheOp(outcome string) {
	if DefaultMetrics != nil {
		DefaultMetrics.CacheOpsTotal.WithLabelValues(outcome).Inc()
	}
}

// RecordRegistryRequest records the latency of one registry call.
func RecordRegistryRequest(operation string, seconds float64) {
	if DefaultMetrics != nil {
		DefaultMetrics.RegistryRequestSeconds.WithLabelValues(operation).Observe(seconds)
	}
}

// RecordRateLimitRejection counts one 429 response.
func RecordRateLimitRejection() {
	if DefaultMetrics != nil {
		DefaultMetrics.RateLimitRejectionsTotal.Inc()
	}
}

// RecordScoringBatch records one scoring batch: its size and duration.
func RecordScoringBatch(trials int, seconds float64) {
	if DefaultMetrics != nil {
		DefaultMetrics.TrialsScoredTotal.Add(float64(trials))
		DefaultMetrics.ScoringBatchSeconds.Observe(seconds)
	}
}
