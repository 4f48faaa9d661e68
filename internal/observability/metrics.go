// Package observability provides Prometheus metrics for monitoring the
// nameatlas application. Sentry-related error telemetry is handled in the
// telemetry package.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nameatlas/nameatlas/internal/aggregator"
	"github.com/nameatlas/nameatlas/internal/gateway"
	"github.com/nameatlas/nameatlas/internal/observability/metrics"
	"github.com/nameatlas/nameatlas/internal/provider"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Aggregator *metrics.AggregatorMetrics
	Gateway    *metrics.GatewayMetrics
	Provider   *metrics.ProviderMetrics
	HTTP       *metrics.HTTPMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	aggregatorMetrics, err := metrics.NewAggregatorMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregator metrics: %w", err)
	}

	gatewayMetrics, err := metrics.NewGatewayMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway metrics: %w", err)
	}

	providerMetrics, err := metrics.NewProviderMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	m := &Metrics{
		registry:   registry,
		Aggregator: aggregatorMetrics,
		Gateway:    gatewayMetrics,
		Provider:   providerMetrics,
		HTTP:       httpMetrics,
	}

	initializeInstrumentation(m)

	return m, nil
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
}

// Handler returns the HTTP handler serving the Prometheus registry. The API
// router mounts it to expose /metrics on the main listener.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// initializeInstrumentation hands the collectors to the packages that record
// into them. Each SetMetrics is guarded by sync.Once, so the first Metrics
// instance wins and later calls are no-ops.
func initializeInstrumentation(m *Metrics) {
	aggregator.SetMetrics(m.Aggregator)
	gateway.SetMetrics(m.Gateway)
	provider.SetMetrics(m.Provider)
}
