package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nameatlas/nameatlas/internal/conf"
	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/httpclient"
	"github.com/nameatlas/nameatlas/internal/namepart"
	"github.com/nameatlas/nameatlas/internal/privacy"
)

const (
	behindTheNameProviderName = "behindthename"

	btnLookupEndpoint  = "/lookup.json"
	btnRelatedEndpoint = "/related.json"
)

// BehindTheNameConfig holds configuration for the Behind the Name adapter.
type BehindTheNameConfig struct {
	// APIKey is the Behind the Name API key (required)
	APIKey string

	// BaseURL is the API base URL
	BaseURL string

	// Timeout for requests without a context deadline
	Timeout time.Duration

	// RateLimitMS is the minimum milliseconds between requests
	RateLimitMS int
}

// DefaultBehindTheNameConfig returns a config with sensible defaults.
// The API key must still be supplied by the caller.
func DefaultBehindTheNameConfig() BehindTheNameConfig {
	return BehindTheNameConfig{
		BaseURL:     "https://www.behindthename.com/api",
		Timeout:     30 * time.Second,
		RateLimitMS: 500,
	}
}

// btnLookupEntry is one entry in a lookup.json response.
type btnLookupEntry struct {
	Name   string     `json:"name"`
	Gender string     `json:"gender"`
	Usages []btnUsage `json:"usages"`
}

// btnUsage describes one cultural usage of a name.
type btnUsage struct {
	UsageCode   string `json:"usage_code"`
	UsageFull   string `json:"usage_full"`
	UsageGender string `json:"usage_gender"`
}

// btnRelated is a related.json response.
type btnRelated struct {
	Names []string `json:"names"`
}

// btnError is the structured error payload the API returns on failures.
type btnError struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"error"`
}

func (e *btnError) Error() string {
	return fmt.Sprintf("behindthename API error %d: %s", e.ErrorCode, e.Message)
}

// BehindTheName queries the Behind the Name API for gender, cultural usages,
// and related name forms. It implements Provider.
type BehindTheName struct {
	config      BehindTheNameConfig
	http        *httpclient.Client
	ownsHTTP    bool
	rateLimiter *time.Ticker
	mu          sync.Mutex // protects lastRequest
	lastRequest time.Time
	debug       bool

	metrics      metricsRecorder
	firstCallLog sync.Once
}

// NewBehindTheName creates a Behind the Name adapter. The API key is
// mandatory. If hc is nil the adapter creates its own pooled HTTP client.
func NewBehindTheName(config BehindTheNameConfig, hc *httpclient.Client) (*BehindTheName, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("behindthename API key is required").
			Component("provider." + behindTheNameProviderName).
			Category(errors.CategoryConfiguration).
			Context("operation", "new_client").
			Build()
	}

	defaults := DefaultBehindTheNameConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RateLimitMS <= 0 {
		config.RateLimitMS = defaults.RateLimitMS
	}

	p := &BehindTheName{
		config:      config,
		http:        hc,
		rateLimiter: time.NewTicker(time.Duration(config.RateLimitMS) * time.Millisecond),
		metrics:     metricsRecorder{name: behindTheNameProviderName},
	}
	if p.http == nil {
		p.http = httpclient.New(&httpclient.Config{
			DefaultTimeout: config.Timeout,
			UserAgent:      UserAgent,
		})
		p.ownsHTTP = true
	}

	if settings := conf.GetSettings(); settings != nil && settings.Providers.Debug {
		p.debug = true
		serviceLevelVar.Set(slog.LevelDebug)
	}

	logger.Info("Behind the Name adapter initialized",
		"base_url", privacy.SanitizeLookupURL(config.BaseURL),
		"rate_limit_ms", config.RateLimitMS,
		"timeout", config.Timeout)

	return p, nil
}

// Name implements Provider.
func (p *BehindTheName) Name() string {
	return behindTheNameProviderName
}

// Lookup implements Provider. It resolves gender and cultural usages via
// lookup.json and, best effort, related name forms via related.json. A
// related.json failure degrades the result instead of failing the lookup.
func (p *BehindTheName) Lookup(ctx context.Context, part namepart.Part) (*PartMetadata, error) {
	start := time.Now()

	query := url.Values{}
	query.Set("name", part.Key)
	query.Set("key", p.config.APIKey)

	var entries []btnLookupEntry
	if err := p.doRequestWithRetry(ctx, btnLookupEndpoint, query, &entries); err != nil {
		p.metrics.record(time.Since(start), err)
		return nil, err
	}

	if len(entries) == 0 {
		err := NewNotFoundError(behindTheNameProviderName, part)
		p.metrics.record(time.Since(start), err)
		return nil, err
	}

	meta := p.metadataFromEntry(&entries[0])

	// Related forms are a nice-to-have; not-found here is normal for rare
	// names and other failures must not discard the lookup result.
	var related btnRelated
	if err := p.doRequestWithRetry(ctx, btnRelatedEndpoint, query, &related); err != nil {
		if !errors.IsNotFound(err) {
			logger.Warn("Related name lookup failed, continuing without variations",
				"provider", behindTheNameProviderName,
				"error", err)
		}
	} else {
		meta.Variations = UnionStrings(meta.Variations, related.Names)
	}

	p.firstCallLog.Do(func() {
		logger.Info("Behind the Name API connectivity verified",
			"base_url", privacy.SanitizeLookupURL(p.config.BaseURL))
	})

	p.metrics.record(time.Since(start), nil)
	if p.debug {
		logger.Debug("Lookup completed",
			"provider", behindTheNameProviderName,
			"name", part.Key,
			"gender", meta.Gender,
			"positive_cultures", len(meta.Cultures.Positive),
			"negative_cultures", len(meta.Cultures.Negative),
			"variations", len(meta.Variations),
			"duration_ms", time.Since(start).Milliseconds())
	}
	return meta, nil
}

// metadataFromEntry maps a lookup entry onto the shared metadata model.
// Usages whose gender contradicts the name's primary gender are treated as
// negative cultural associations: the name reads cross-gendered there.
func (p *BehindTheName) metadataFromEntry(entry *btnLookupEntry) *PartMetadata {
	meta := Empty()
	meta.Gender = genderFromBTNCode(entry.Gender)
	meta.FetchedAt = time.Now()

	for i := range entry.Usages {
		usage := &entry.Usages[i]
		tag := usage.UsageFull
		if tag == "" {
			tag = usage.UsageCode
		}
		if tag == "" {
			continue
		}
		if crossGendered(meta.Gender, usage.UsageGender) {
			meta.Cultures.Negative = UnionStrings(meta.Cultures.Negative, []string{tag})
		} else {
			meta.Cultures.Positive = UnionStrings(meta.Cultures.Positive, []string{tag})
		}
	}
	return meta
}

// genderFromBTNCode maps the API's m/f/mf codes onto a GenderSignal.
func genderFromBTNCode(code string) GenderSignal {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "m":
		return GenderMale
	case "f":
		return GenderFemale
	case "mf", "fm":
		return GenderAndrogynous
	default:
		return GenderUnknown
	}
}

// crossGendered reports whether a usage gender contradicts the overall one.
func crossGendered(overall GenderSignal, usageCode string) bool {
	usage := genderFromBTNCode(usageCode)
	if overall == GenderUnknown || overall == GenderAndrogynous {
		return false
	}
	if usage == GenderUnknown || usage == GenderAndrogynous {
		return false
	}
	return usage != overall
}

// doRequestWithRetry performs a request with retry for transient failures.
// Configuration mistakes, validation failures, and definitive not-found
// answers are returned immediately.
func (p *BehindTheName) doRequestWithRetry(ctx context.Context, endpoint string, query url.Values, target any) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		lastErr = p.doRequest(ctx, endpoint, query, target)
		if lastErr == nil {
			return nil
		}

		var enhancedErr *errors.EnhancedError
		if errors.As(lastErr, &enhancedErr) {
			statusCode := 0
			if sc, ok := enhancedErr.GetContext()["status_code"].(int); ok {
				statusCode = sc
			}
			if !retryableCategory(errors.ErrorCategory(enhancedErr.GetCategory()), statusCode) {
				return lastErr
			}
		}

		if ctx.Err() != nil {
			return lastErr
		}

		backoff := time.Duration(attempt+1) * 500 * time.Millisecond
		logger.Warn("Request failed, retrying",
			"provider", behindTheNameProviderName,
			"endpoint", endpoint,
			"attempt", attempt+1,
			"max_attempts", maxRetries,
			"backoff", backoff,
			"error", lastErr)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}

// doRequest performs one rate-limited GET against the API and decodes the
// JSON response into target.
func (p *BehindTheName) doRequest(ctx context.Context, endpoint string, query url.Values, target any) error {
	// One request per tick, but never outlive the caller's context while
	// waiting for a slot.
	p.mu.Lock()
	select {
	case <-p.rateLimiter.C:
		p.lastRequest = time.Now()
		p.mu.Unlock()
	case <-ctx.Done():
		p.mu.Unlock()
		return newProviderError(ctx.Err(), cancellationCategory(ctx), "rate_limit_wait", behindTheNameProviderName)
	}

	reqURL := p.config.BaseURL + endpoint + "?" + query.Encode()
	resp, err := p.http.Get(ctx, reqURL)
	if err != nil {
		category := errors.CategoryNetwork
		if ctx.Err() != nil {
			category = cancellationCategory(ctx)
		}
		return newProviderError(err, category, "http_get", behindTheNameProviderName)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Debug("Failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return newProviderError(err, errors.CategoryNetwork, "read_response_body", behindTheNameProviderName)
	}

	if resp.StatusCode != http.StatusOK {
		category := httpStatusCategory(resp.StatusCode)
		var apiErr btnError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return errors.New(&apiErr).
				Component("provider." + behindTheNameProviderName).
				Category(category).
				Context("operation", "api_request").
				Context("provider", behindTheNameProviderName).
				Context("endpoint", endpoint).
				Context("status_code", resp.StatusCode).
				Build()
		}
		return errors.Newf("unexpected status %d: %s", resp.StatusCode, bodyPreview(body)).
			Component("provider." + behindTheNameProviderName).
			Category(category).
			Context("operation", "api_request").
			Context("provider", behindTheNameProviderName).
			Context("endpoint", endpoint).
			Context("status_code", resp.StatusCode).
			Build()
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		return errors.Newf("unexpected content type %q: %s", ct, bodyPreview(body)).
			Component("provider." + behindTheNameProviderName).
			Category(errors.CategoryProviderParse).
			Context("operation", "api_request").
			Context("provider", behindTheNameProviderName).
			Context("endpoint", endpoint).
			Build()
	}

	if err := json.Unmarshal(body, target); err != nil {
		return newProviderError(err, errors.CategoryProviderParse, "decode_response", behindTheNameProviderName)
	}
	return nil
}

// GetMetrics returns a snapshot of request statistics.
func (p *BehindTheName) GetMetrics() Metrics {
	return p.metrics.snapshot()
}

// Close stops the rate limiter and releases the HTTP client if this adapter
// created it.
func (p *BehindTheName) Close() {
	p.rateLimiter.Stop()
	if p.ownsHTTP {
		p.http.Close()
	}
	logger.Info("Behind the Name adapter closed")
}
