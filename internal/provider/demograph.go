package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/httpclient"
	"github.com/nameatlas/nameatlas/internal/namepart"
)

const (
	demographProviderName = "demograph"

	demographRetryDelay = 2 * time.Second

	// Gender guesses weaker than this read as androgynous rather than a
	// firm signal.
	androgynousThreshold = 0.75

	// Countries below this probability are statistical noise.
	minCountryProbability = 0.05
)

// DemographConfig holds configuration for the demographic estimation
// adapter. At least one endpoint must be set.
type DemographConfig struct {
	// GenderURL is a genderize-style endpoint, empty to skip gender lookups
	GenderURL string

	// CultureURL is a nationalize-style endpoint, empty to skip culture lookups
	CultureURL string

	// Timeout for requests without a context deadline
	Timeout time.Duration
}

// DefaultDemographConfig returns a config pointing at the public
// genderize.io and nationalize.io endpoints.
func DefaultDemographConfig() DemographConfig {
	return DemographConfig{
		GenderURL:  "https://api.genderize.io",
		CultureURL: "https://api.nationalize.io",
		Timeout:    10 * time.Second,
	}
}

// demographGender is a genderize-style response. Gender comes back null for
// names the service has never seen, which decodes to an empty string.
type demographGender struct {
	Name        string  `json:"name"`
	Gender      string  `json:"gender"`
	Probability float64 `json:"probability"`
	Count       int64   `json:"count"`
}

// demographCulture is a nationalize-style response.
type demographCulture struct {
	Name    string `json:"name"`
	Country []struct {
		CountryID   string  `json:"country_id"`
		Probability float64 `json:"probability"`
	} `json:"country"`
}

// Demograph estimates gender and cultural associations from public name
// statistics services. It implements Provider.
type Demograph struct {
	config   DemographConfig
	http     *httpclient.Client
	ownsHTTP bool

	metrics metricsRecorder
}

// NewDemograph creates a demographic estimation adapter. If hc is nil the
// adapter creates its own pooled HTTP client.
func NewDemograph(config DemographConfig, hc *httpclient.Client) (*Demograph, error) {
	if config.GenderURL == "" && config.CultureURL == "" {
		return nil, errors.Newf("demograph requires at least one endpoint").
			Component("provider." + demographProviderName).
			Category(errors.CategoryConfiguration).
			Context("operation", "new_client").
			Build()
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultDemographConfig().Timeout
	}

	p := &Demograph{
		config:  config,
		http:    hc,
		metrics: metricsRecorder{name: demographProviderName},
	}
	if p.http == nil {
		p.http = httpclient.New(&httpclient.Config{
			DefaultTimeout: config.Timeout,
			UserAgent:      UserAgent,
		})
		p.ownsHTTP = true
	}

	logger.Info("Demograph adapter initialized",
		"gender_endpoint", config.GenderURL != "",
		"culture_endpoint", config.CultureURL != "")

	return p, nil
}

// Name implements Provider.
func (p *Demograph) Name() string {
	return demographProviderName
}

// Lookup implements Provider. The gender and culture endpoints are queried
// independently; one failing endpoint degrades the result, and an error is
// returned only when no endpoint produced a usable signal.
func (p *Demograph) Lookup(ctx context.Context, part namepart.Part) (*PartMetadata, error) {
	start := time.Now()
	meta := Empty()
	meta.FetchedAt = time.Now()

	var genderErr, cultureErr error
	resolvedAny := false

	if p.config.GenderURL != "" {
		var gr demographGender
		genderErr = p.fetchJSON(ctx, p.config.GenderURL, part.Key, &gr)
		if genderErr == nil && gr.Gender != "" {
			meta.Gender = genderFromProbability(gr.Gender, gr.Probability)
			resolvedAny = true
		}
	}

	if p.config.CultureURL != "" {
		var cr demographCulture
		cultureErr = p.fetchJSON(ctx, p.config.CultureURL, part.Key, &cr)
		if cultureErr == nil {
			for _, country := range cr.Country {
				if country.Probability < minCountryProbability {
					continue
				}
				meta.Cultures.Positive = UnionStrings(meta.Cultures.Positive, []string{countryCultureTag(country.CountryID)})
				resolvedAny = true
			}
		}
	}

	if !resolvedAny {
		var err error
		switch {
		case genderErr != nil:
			err = genderErr
		case cultureErr != nil:
			err = cultureErr
		default:
			err = NewNotFoundError(demographProviderName, part)
		}
		p.metrics.record(time.Since(start), err)
		return nil, err
	}

	if cultureErr != nil {
		logger.Warn("Culture endpoint failed, returning gender signal only",
			"provider", demographProviderName,
			"error", cultureErr)
	}
	if genderErr != nil {
		logger.Warn("Gender endpoint failed, returning culture tags only",
			"provider", demographProviderName,
			"error", genderErr)
	}

	p.metrics.record(time.Since(start), nil)
	return meta, nil
}

// fetchJSON performs a GET with ?name= against one endpoint and decodes the
// response, retrying transient failures.
func (p *Demograph) fetchJSON(ctx context.Context, baseURL, name string, target any) error {
	reqURL := baseURL + "?name=" + url.QueryEscape(name)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(demographRetryDelay):
			case <-ctx.Done():
				return newProviderError(ctx.Err(), cancellationCategory(ctx), "retry_wait", demographProviderName)
			}
		}

		resp, err := p.http.Get(ctx, reqURL)
		if err != nil {
			if ctx.Err() != nil {
				return newProviderError(err, cancellationCategory(ctx), "http_get", demographProviderName)
			}
			lastErr = newProviderError(err, errors.CategoryNetwork, "http_get", demographProviderName)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Debug("Failed to close response body", "error", closeErr)
		}
		if readErr != nil {
			lastErr = newProviderError(readErr, errors.CategoryNetwork, "read_response_body", demographProviderName)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			category := httpStatusCategory(resp.StatusCode)
			lastErr = errors.Newf("unexpected status %d: %s", resp.StatusCode, bodyPreview(body)).
				Component("provider." + demographProviderName).
				Category(category).
				Context("operation", "api_request").
				Context("provider", demographProviderName).
				Context("status_code", resp.StatusCode).
				Build()
			if !retryableCategory(category, resp.StatusCode) {
				return lastErr
			}
			continue
		}

		if err := json.Unmarshal(body, target); err != nil {
			return newProviderError(err, errors.CategoryProviderParse, "decode_response", demographProviderName)
		}
		return nil
	}
	return lastErr
}

// GetMetrics returns a snapshot of request statistics.
func (p *Demograph) GetMetrics() Metrics {
	return p.metrics.snapshot()
}

// Close releases the HTTP client if this adapter created it.
func (p *Demograph) Close() {
	if p.ownsHTTP {
		p.http.Close()
	}
}

// genderFromProbability maps a service's gender guess onto a signal,
// demoting weak guesses to androgynous.
func genderFromProbability(gender string, probability float64) GenderSignal {
	var signal GenderSignal
	switch strings.ToLower(gender) {
	case "male":
		signal = GenderMale
	case "female":
		signal = GenderFemale
	default:
		return GenderUnknown
	}
	if probability > 0 && probability < androgynousThreshold {
		return GenderAndrogynous
	}
	return signal
}

// countryCultures maps ISO 3166-1 alpha-2 codes onto culture tags. Codes
// without an entry fall back to the code itself.
var countryCultures = map[string]string{
	"AR": "Argentine",
	"AT": "Austrian",
	"AU": "Australian",
	"BE": "Belgian",
	"BG": "Bulgarian",
	"BR": "Brazilian",
	"CA": "Canadian",
	"CH": "Swiss",
	"CL": "Chilean",
	"CN": "Chinese",
	"CO": "Colombian",
	"CZ": "Czech",
	"DE": "German",
	"DK": "Danish",
	"EG": "Egyptian",
	"ES": "Spanish",
	"FI": "Finnish",
	"FR": "French",
	"GB": "British",
	"GR": "Greek",
	"HU": "Hungarian",
	"ID": "Indonesian",
	"IE": "Irish",
	"IL": "Israeli",
	"IN": "Indian",
	"IR": "Iranian",
	"IS": "Icelandic",
	"IT": "Italian",
	"JP": "Japanese",
	"KE": "Kenyan",
	"KR": "Korean",
	"MX": "Mexican",
	"MY": "Malaysian",
	"NG": "Nigerian",
	"NL": "Dutch",
	"NO": "Norwegian",
	"NZ": "New Zealand",
	"PE": "Peruvian",
	"PH": "Filipino",
	"PK": "Pakistani",
	"PL": "Polish",
	"PT": "Portuguese",
	"RO": "Romanian",
	"RU": "Russian",
	"SA": "Saudi",
	"SE": "Swedish",
	"SK": "Slovak",
	"TH": "Thai",
	"TR": "Turkish",
	"UA": "Ukrainian",
	"US": "American",
	"VN": "Vietnamese",
	"ZA": "South African",
}

// countryCultureTag resolves a country code to its culture tag.
func countryCultureTag(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if tag, ok := countryCultures[code]; ok {
		return tag
	}
	return code
}
