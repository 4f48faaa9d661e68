// Package metrics provides provider gateway metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics contains Prometheus metrics for the provider gateway
type GatewayMetrics struct {
	registry *prometheus.Registry

	// Cache metrics
	cacheRequestsTotal *prometheus.CounterVec
	cachedPartsGauge   prometheus.Gauge

	// Upstream lookup metrics
	lookupsTotal        *prometheus.CounterVec
	lookupDuration      prometheus.Histogram
	coalescedWaitsTotal prometheus.Counter
}

// NewGatewayMetrics creates and registers new gateway metrics
func NewGatewayMetrics(registry *prometheus.Registry) (*GatewayMetrics, error) {
	m := &GatewayMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *GatewayMetrics) initMetrics() error {
	m.cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nameatlas_gateway_cache_requests_total",
			Help: "Total number of gateway cache reads",
		},
		[]string{"result"}, // result: hit, miss
	)

	m.cachedPartsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nameatlas_gateway_cached_parts",
		Help: "Current number of name parts held in the gateway cache",
	})

	m.lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nameatlas_gateway_lookups_total",
			Help: "Total number of upstream fetches by outcome",
		},
		[]string{"outcome"}, // outcome: resolved, not_found, failed
	)

	m.lookupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "nameatlas_gateway_lookup_duration_seconds",
			Help: "Time taken to fetch and merge one part across providers",
			// Buckets cover typical upstream API response times: 100ms to ~100s
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount10),
		},
	)

	m.coalescedWaitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nameatlas_gateway_coalesced_waits_total",
		Help: "Total number of lookups that waited on an in-flight fetch of the same part",
	})

	return nil
}

// Describe implements the Collector interface
func (m *GatewayMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.cacheRequestsTotal.Describe(ch)
	m.cachedPartsGauge.Describe(ch)
	m.lookupsTotal.Describe(ch)
	m.lookupDuration.Describe(ch)
	m.coalescedWaitsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *GatewayMetrics) Collect(ch chan<- prometheus.Metric) {
	m.cacheRequestsTotal.Collect(ch)
	m.cachedPartsGauge.Collect(ch)
	m.lookupsTotal.Collect(ch)
	m.lookupDuration.Collect(ch)
	m.coalescedWaitsTotal.Collect(ch)
}

// RecordCacheRequest records one cache read with its result
func (m *GatewayMetrics) RecordCacheRequest(result string) {
	m.cacheRequestsTotal.WithLabelValues(result).Inc()
}

// SetCachedParts updates the gauge of currently cached parts
func (m *GatewayMetrics) SetCachedParts(count int) {
	m.cachedPartsGauge.Set(float64(count))
}

// RecordLookup records one upstream fetch with its outcome
func (m *GatewayMetrics) RecordLookup(outcome string) {
	m.lookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordLookupDuration records the duration of one upstream fetch
func (m *GatewayMetrics) RecordLookupDuration(seconds float64) {
	m.lookupDuration.Observe(seconds)
}

// RecordCoalescedWait records a lookup that piggybacked on an in-flight fetch
func (m *GatewayMetrics) RecordCoalescedWait() {
	m.coalescedWaitsTotal.Inc()
}
