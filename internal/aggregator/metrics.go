package aggregator

import (
	"sync"
	"time"

	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/observability/metrics"
)

var (
	globalMetrics *metrics.AggregatorMetrics
	metricsMutex  sync.RWMutex
	metricsOnce   sync.Once
)

// SetMetrics sets the global aggregator collectors. It is safe for concurrent
// use and only the first call takes effect.
func SetMetrics(m *metrics.AggregatorMetrics) {
	metricsOnce.Do(func() {
		metricsMutex.Lock()
		defer metricsMutex.Unlock()
		globalMetrics = m
	})
}

// getMetrics returns the current collectors in a thread-safe manner
func getMetrics() *metrics.AggregatorMetrics {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	return globalMetrics
}

// recordAnalyzeError mirrors a failed analysis into the collectors.
func recordAnalyzeError(category errors.ErrorCategory) {
	if m := getMetrics(); m != nil {
		m.RecordAnalyze(metrics.LabelError)
		m.RecordAnalyzeError(string(category))
	}
}

// recordAnalyzeSuccess mirrors a completed analysis into the collectors.
func recordAnalyzeSuccess(stats Stats, elapsed time.Duration) {
	m := getMetrics()
	if m == nil {
		return
	}
	m.RecordAnalyze(metrics.LabelSuccess)
	m.RecordAnalyzeDuration(elapsed.Seconds())
	m.RecordCombinations(stats.Combinations)
	if stats.Rejected > 0 {
		m.RecordRejectedParts(stats.Rejected)
	}
}

// recordPartOutcome mirrors one distinct-part lookup outcome into the collectors.
func recordPartOutcome(status PartStatus) {
	m := getMetrics()
	if m == nil {
		return
	}
	switch status {
	case StatusProviderFailed:
		m.RecordPartOutcome(metrics.OutcomeFailed)
	case StatusNotFound:
		m.RecordPartOutcome(metrics.OutcomeNotFound)
	default:
		m.RecordPartOutcome(metrics.OutcomeResolved)
	}
}
