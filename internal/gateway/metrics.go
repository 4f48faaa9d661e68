package gateway

import (
	"sync"

	"github.com/nameatlas/nameatlas/internal/observability/metrics"
)

var (
	globalMetrics *metrics.GatewayMetrics
	metricsMutex  sync.RWMutex
	metricsOnce   sync.Once
)

// SetMetrics sets the global gateway collectors. It is safe for concurrent
// use and only the first call takes effect.
func SetMetrics(m *metrics.GatewayMetrics) {
	metricsOnce.Do(func() {
		metricsMutex.Lock()
		defer metricsMutex.Unlock()
		globalMetrics = m
	})
}

// getMetrics returns the current collectors in a thread-safe manner
func getMetrics() *metrics.GatewayMetrics {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	return globalMetrics
}
