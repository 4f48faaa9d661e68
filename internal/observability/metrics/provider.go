// Package metrics provides name-data provider metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics contains Prometheus metrics for the provider adapters.
// It satisfies the Recorder interface with the provider name as the
// operation label, so adapters can depend on the abstraction.
type ProviderMetrics struct {
	registry *prometheus.Registry

	// Upstream request metrics
	requestsTotal   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
}

// NewProviderMetrics creates and registers new provider metrics
func NewProviderMetrics(registry *prometheus.Registry) (*ProviderMetrics, error) {
	m := &ProviderMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *ProviderMetrics) initMetrics() error {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nameatlas_provider_requests_total",
			Help: "Total number of lookups per provider adapter",
		},
		[]string{"provider", "status"}, // status: success, error
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nameatlas_provider_errors_total",
			Help: "Total number of provider lookup errors by category",
		},
		[]string{"provider", "category"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "nameatlas_provider_request_duration_seconds",
			Help: "Time taken for one provider lookup",
			// Buckets cover typical name API response times: 100ms to ~100s,
			// the top end capturing retry loops against slow upstreams
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount10),
		},
		[]string{"provider"},
	)

	m.retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nameatlas_provider_retries_total",
			Help: "Total number of retried provider requests",
		},
		[]string{"provider"},
	)

	return nil
}

// Describe implements the Collector interface
func (m *ProviderMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.errorsTotal.Describe(ch)
	m.requestDuration.Describe(ch)
	m.retriesTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *ProviderMetrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.errorsTotal.Collect(ch)
	m.requestDuration.Collect(ch)
	m.retriesTotal.Collect(ch)
}

// RecordOperation records one provider lookup with its status
func (m *ProviderMetrics) RecordOperation(provider, status string) {
	m.requestsTotal.WithLabelValues(provider, status).Inc()
}

// RecordDuration records the duration of one provider lookup in seconds
func (m *ProviderMetrics) RecordDuration(provider string, seconds float64) {
	m.requestDuration.WithLabelValues(provider).Observe(seconds)
}

// RecordError records a provider lookup error with its category
func (m *ProviderMetrics) RecordError(provider, category string) {
	m.errorsTotal.WithLabelValues(provider, category).Inc()
}

// RecordRetry records one retried provider request
func (m *ProviderMetrics) RecordRetry(provider string) {
	m.retriesTotal.WithLabelValues(provider).Inc()
}
