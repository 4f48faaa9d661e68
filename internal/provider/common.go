package provider

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/logging"
	"github.com/nameatlas/nameatlas/internal/observability/metrics"
	"github.com/nameatlas/nameatlas/internal/privacy"
)

const (
	// UserAgent identifies nameatlas to upstream name-data services.
	UserAgent = "NameAtlas https://github.com/nameatlas/nameatlas"

	maxBodyPreviewSize = 200 // Maximum characters to show in error logs

	maxRetries = 3
)

// Package-level logger shared by every provider adapter, following the
// service-specific file logger pattern.
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "providers.log")
	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "provider", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize provider file logger at %s: %v. Using fallback.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "provider")
		closeLogger = func() error { return nil }
	}
}

var (
	globalMetrics metrics.Recorder
	metricsMutex  sync.RWMutex
	metricsOnce   sync.Once
)

// SetMetrics sets the Prometheus recorder shared by all provider adapters.
// It is safe for concurrent use and only the first call takes effect.
func SetMetrics(m metrics.Recorder) {
	metricsOnce.Do(func() {
		metricsMutex.Lock()
		defer metricsMutex.Unlock()
		globalMetrics = m
	})
}

// getMetrics returns the current recorder in a thread-safe manner
func getMetrics() metrics.Recorder {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	return globalMetrics
}

// errorCategory extracts the category label for error metrics.
func errorCategory(err error) string {
	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) {
		return enhanced.GetCategory()
	}
	return "unknown"
}

// newProviderError creates a standardized provider error with common fields.
// The cause is sanitized first: transport errors embed the full request URL,
// query parameters included, in their message.
func newProviderError(err error, category errors.ErrorCategory, operation, providerName string) error {
	return errors.New(privacy.WrapError(err)).
		Component("provider." + providerName).
		Category(category).
		Context("operation", operation).
		Context("provider", providerName).
		Build()
}

// newProviderErrorWithRetries creates a provider error that includes retry
// information.
func newProviderErrorWithRetries(err error, category errors.ErrorCategory, operation, providerName string) error {
	return errors.New(privacy.WrapError(err)).
		Component("provider." + providerName).
		Category(category).
		Context("operation", operation).
		Context("provider", providerName).
		Context("max_retries", fmt.Sprintf("%d", maxRetries)).
		Build()
}

// httpStatusCategory maps an upstream HTTP status code to an error category.
// Auth failures point at configuration because they almost always mean a bad
// or missing API key rather than a transient fault.
func httpStatusCategory(statusCode int) errors.ErrorCategory {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.CategoryConfiguration
	case http.StatusTooManyRequests:
		return errors.CategoryRateLimit
	case http.StatusNotFound:
		return errors.CategoryNotFound
	default:
		if statusCode >= 500 {
			return errors.CategoryNetwork
		}
		return errors.CategoryProviderFetch
	}
}

// retryableCategory reports whether a failed request is worth retrying.
// Configuration problems and definitive not-found answers never improve on
// retry, and client errors other than rate limiting are equally permanent.
func retryableCategory(category errors.ErrorCategory, statusCode int) bool {
	switch category {
	case errors.CategoryConfiguration, errors.CategoryNotFound, errors.CategoryValidation:
		return false
	}
	if statusCode >= 400 && statusCode < 500 && statusCode != http.StatusTooManyRequests {
		return false
	}
	return true
}

// cancellationCategory distinguishes a caller-initiated cancel from a
// deadline that ran out.
func cancellationCategory(ctx context.Context) errors.ErrorCategory {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.CategoryTimeout
	}
	return errors.CategoryCancellation
}

// bodyPreview truncates a response body for safe inclusion in error logs.
func bodyPreview(body []byte) string {
	if len(body) > maxBodyPreviewSize {
		return string(body[:maxBodyPreviewSize]) + "..."
	}
	return string(body)
}

// Metrics captures request statistics for one provider adapter.
type Metrics struct {
	RequestCount    int64
	ErrorCount      int64
	LastRequestTime time.Time
	AverageLatency  time.Duration
}

// metricsRecorder accumulates request statistics behind a mutex so adapters
// can record from concurrent lookups. When a Prometheus recorder has been
// set it mirrors every request there, labeled with the adapter name.
type metricsRecorder struct {
	name string

	mu            sync.Mutex
	requestCount  int64
	errorCount    int64
	lastRequest   time.Time
	totalDuration time.Duration
}

func (m *metricsRecorder) record(duration time.Duration, err error) {
	m.mu.Lock()
	m.requestCount++
	m.totalDuration += duration
	m.lastRequest = time.Now()
	if err != nil {
		m.errorCount++
	}
	m.mu.Unlock()

	rec := getMetrics()
	if rec == nil {
		return
	}
	if err != nil {
		rec.RecordOperation(m.name, metrics.LabelError)
		rec.RecordError(m.name, errorCategory(err))
		return
	}
	rec.RecordOperation(m.name, metrics.LabelSuccess)
	rec.RecordDuration(m.name, duration.Seconds())
}

func (m *metricsRecorder) snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Metrics{
		RequestCount:    m.requestCount,
		ErrorCount:      m.errorCount,
		LastRequestTime: m.lastRequest,
	}
	if m.requestCount > 0 {
		out.AverageLatency = m.totalDuration / time.Duration(m.requestCount)
	}
	return out
}
