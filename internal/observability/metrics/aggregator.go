// Package metrics provides combination pipeline metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AggregatorMetrics contains Prometheus metrics for the combination pipeline
type AggregatorMetrics struct {
	registry *prometheus.Registry

	// Analysis request metrics
	analyzeRequestsTotal *prometheus.CounterVec
	analyzeErrorsTotal   *prometheus.CounterVec
	analyzeDuration      prometheus.Histogram

	// Expansion metrics
	combinationsExpandedTotal prometheus.Counter
	partsRejectedTotal        prometheus.Counter

	// Per-part lookup outcome metrics
	partOutcomesTotal *prometheus.CounterVec
}

// NewAggregatorMetrics creates and registers new combination pipeline metrics
func NewAggregatorMetrics(registry *prometheus.Registry) (*AggregatorMetrics, error) {
	m := &AggregatorMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *AggregatorMetrics) initMetrics() error {
	m.analyzeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nameatlas_analyze_requests_total",
			Help: "Total number of analysis requests",
		},
		[]string{"status"}, // status: success, error
	)

	m.analyzeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nameatlas_analyze_errors_total",
			Help: "Total number of failed analysis requests by error category",
		},
		[]string{"category"},
	)

	m.analyzeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "nameatlas_analyze_duration_seconds",
			Help: "Time taken to run one analysis request",
			// Buckets cover pipeline latencies from cached sub-10ms runs to
			// requests waiting on slow upstream lookups
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		},
	)

	m.combinationsExpandedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nameatlas_combinations_expanded_total",
		Help: "Total number of name combinations expanded across all requests",
	})

	m.partsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nameatlas_parts_rejected_total",
		Help: "Total number of name parts rejected by input validation",
	})

	m.partOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nameatlas_part_outcomes_total",
			Help: "Total number of distinct-part lookups by outcome",
		},
		[]string{"outcome"}, // outcome: resolved, not_found, failed
	)

	return nil
}

// Describe implements the Collector interface
func (m *AggregatorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.analyzeRequestsTotal.Describe(ch)
	m.analyzeErrorsTotal.Describe(ch)
	m.analyzeDuration.Describe(ch)
	m.combinationsExpandedTotal.Describe(ch)
	m.partsRejectedTotal.Describe(ch)
	m.partOutcomesTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *AggregatorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.analyzeRequestsTotal.Collect(ch)
	m.analyzeErrorsTotal.Collect(ch)
	m.analyzeDuration.Collect(ch)
	m.combinationsExpandedTotal.Collect(ch)
	m.partsRejectedTotal.Collect(ch)
	m.partOutcomesTotal.Collect(ch)
}

// RecordAnalyze records one analysis request with its final status
func (m *AggregatorMetrics) RecordAnalyze(status string) {
	m.analyzeRequestsTotal.WithLabelValues(status).Inc()
}

// RecordAnalyzeError records a failed analysis request by error category
func (m *AggregatorMetrics) RecordAnalyzeError(category string) {
	m.analyzeErrorsTotal.WithLabelValues(category).Inc()
}

// RecordAnalyzeDuration records the duration of one analysis request
func (m *AggregatorMetrics) RecordAnalyzeDuration(seconds float64) {
	m.analyzeDuration.Observe(seconds)
}

// RecordCombinations records the number of combinations one request expanded
func (m *AggregatorMetrics) RecordCombinations(count int) {
	m.combinationsExpandedTotal.Add(float64(count))
}

// RecordRejectedParts records the number of parts validation rejected
func (m *AggregatorMetrics) RecordRejectedParts(count int) {
	m.partsRejectedTotal.Add(float64(count))
}

// RecordPartOutcome records the outcome of one distinct-part lookup
func (m *AggregatorMetrics) RecordPartOutcome(outcome string) {
	m.partOutcomesTotal.WithLabelValues(outcome).Inc()
}
