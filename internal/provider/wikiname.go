package provider

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"cgt.name/pkg/go-mwclient"
	"github.com/antonholmquist/jason"
	"github.com/google/uuid"
	"github.com/k3a/html2text"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/nameatlas/nameatlas/internal/conf"
	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/namepart"
	"github.com/nameatlas/nameatlas/internal/privacy"
)

const (
	wikinameProviderName = "wikiname"

	// User-Agent constants following Wikimedia robot policy
	// https://foundation.wikimedia.org/wiki/Policy:Wikimedia_Foundation_User-Agent_Policy
	wikiUserAgentName    = "NameAtlas"
	wikiUserAgentContact = "https://github.com/nameatlas/nameatlas"
	wikiUserAgentLibrary = "Go-HTTP-Client"

	wikinameBurst = 2

	// Meaning text is trimmed to this many runes after sentence clipping.
	maxMeaningChars = 280
)

// WikinameConfig holds configuration for the wiki-based name adapter.
type WikinameConfig struct {
	// APIURL is the MediaWiki api.php endpoint
	APIURL string

	// RateLimit is the request budget in requests per second
	RateLimit float64

	// Version is the application version used in the User-Agent
	Version string
}

// DefaultWikinameConfig returns a config pointing at English Wiktionary.
func DefaultWikinameConfig() WikinameConfig {
	return WikinameConfig{
		APIURL:    "https://en.wiktionary.org/w/api.php",
		RateLimit: 2.0,
	}
}

// Wikiname reads given-name pages from a MediaWiki instance and mines the
// intro prose for meaning, gender phrasing, diminutives, and related forms.
// It implements Provider.
type Wikiname struct {
	client     *mwclient.Client
	limiter    *rate.Limiter
	maxRetries int
	debug      bool

	metrics metricsRecorder
}

// buildWikiUserAgent constructs a user-agent string that complies with the
// Wikimedia robot policy.
// Format: <client name>/<version> (<contact information>) <library>/<version>
func buildWikiUserAgent(appVersion string) string {
	if appVersion == "" {
		appVersion = "unknown"
	}
	return fmt.Sprintf("%s/%s (%s) %s/%s",
		wikiUserAgentName, appVersion, wikiUserAgentContact, wikiUserAgentLibrary, runtime.Version())
}

// mwclientDebugWriter routes mwclient debug output into the package logger.
type mwclientDebugWriter struct {
	logger *slog.Logger
}

func (w *mwclientDebugWriter) Write(p []byte) (n int, err error) {
	w.logger.Debug("mwclient debug output", "data", string(p))
	return len(p), nil
}

// NewWikiname creates a wiki-based name adapter.
func NewWikiname(config WikinameConfig) (*Wikiname, error) {
	defaults := DefaultWikinameConfig()
	if config.APIURL == "" {
		config.APIURL = defaults.APIURL
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaults.RateLimit
	}

	userAgent := buildWikiUserAgent(config.Version)
	client, err := mwclient.New(config.APIURL, userAgent)
	if err != nil {
		return nil, errors.New(err).
			Component("provider." + wikinameProviderName).
			Category(errors.CategoryNetwork).
			Context("operation", "create_mwclient").
			Context("provider", wikinameProviderName).
			Context("api_url", privacy.SanitizeLookupURL(config.APIURL)).
			Build()
	}

	p := &Wikiname{
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), wikinameBurst),
		maxRetries: maxRetries,
		metrics:    metricsRecorder{name: wikinameProviderName},
	}

	if settings := conf.GetSettings(); settings != nil && settings.Providers.Debug {
		p.debug = true
		client.SetDebug(&mwclientDebugWriter{logger: logger})
	}

	logger.Info("Wikiname adapter initialized",
		"api_url", privacy.SanitizeLookupURL(config.APIURL),
		"rate_limit_rps", config.RateLimit,
		"user_agent", userAgent)

	return p, nil
}

// Name implements Provider.
func (p *Wikiname) Name() string {
	return wikinameProviderName
}

// Lookup implements Provider. It fetches the intro extract of the page for
// the part's display form and parses the prose.
func (p *Wikiname) Lookup(ctx context.Context, part namepart.Part) (*PartMetadata, error) {
	start := time.Now()
	reqID := uuid.New().String()[:8] // first 8 chars keep log lines short

	params := map[string]string{
		"action":        "query",
		"format":        "json",
		"formatversion": "2",
		"prop":          "extracts",
		"exintro":       "1",
		"titles":        part.Display,
		"redirects":     "",
	}

	page, err := p.queryFirstPage(ctx, reqID, params)
	if err != nil {
		if errors.IsNotFound(err) {
			err = NewNotFoundError(wikinameProviderName, part)
		}
		p.metrics.record(time.Since(start), err)
		return nil, err
	}

	extract, err := page.GetString("extract")
	if err != nil || strings.TrimSpace(extract) == "" {
		nfErr := NewNotFoundError(wikinameProviderName, part)
		p.metrics.record(time.Since(start), nfErr)
		return nil, nfErr
	}

	meta := metadataFromExtract(extract, part)
	p.metrics.record(time.Since(start), nil)

	if p.debug {
		logger.Debug("Wiki lookup completed",
			"provider", wikinameProviderName,
			"request_id", reqID,
			"title", part.Display,
			"gender", meta.Gender,
			"meaning_len", len(meta.Meaning),
			"variations", len(meta.Variations),
			"duration_ms", time.Since(start).Milliseconds())
	}
	return meta, nil
}

// queryFirstPage runs one query and returns its first page object. Missing
// pages surface as a not-found error rather than a hard failure.
func (p *Wikiname) queryFirstPage(ctx context.Context, reqID string, params map[string]string) (*jason.Object, error) {
	resp, err := p.queryWithRetry(ctx, reqID, params)
	if err != nil {
		return nil, err
	}

	query, err := resp.GetObject("query")
	if err != nil {
		// A structured error block here is normal for nonsense titles.
		if errorObj, errCheck := resp.GetObject("error"); errCheck == nil {
			code, _ := errorObj.GetString("code")
			info, _ := errorObj.GetString("info")
			logger.Debug("Wiki API returned structured error",
				"provider", wikinameProviderName,
				"request_id", reqID,
				"error_code", code,
				"error_info", info)
		}
		return nil, newProviderError(err, errors.CategoryNotFound, "missing_query_field", wikinameProviderName)
	}

	pages, err := query.GetObjectArray("pages")
	if err != nil || len(pages) == 0 {
		return nil, newProviderError(errors.NewStd("no pages in response"), errors.CategoryNotFound, "missing_pages", wikinameProviderName)
	}

	if missing, missErr := pages[0].GetBoolean("missing"); missErr == nil && missing {
		return nil, newProviderError(errors.NewStd("page missing"), errors.CategoryNotFound, "page_missing", wikinameProviderName)
	}

	return pages[0], nil
}

// queryWithRetry performs a rate-limited query with exponential backoff.
func (p *Wikiname) queryWithRetry(ctx context.Context, reqID string, params map[string]string) (*jason.Object, error) {
	qlogger := logger.With("provider", wikinameProviderName, "request_id", reqID, "api_action", params["action"])

	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, newProviderError(err, cancellationCategory(ctx), "rate_limiter_wait", wikinameProviderName)
		}

		resp, err := p.client.Get(params)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		qlogger.Warn("Wiki API request failed",
			"attempt", attempt+1,
			"max_attempts", p.maxRetries,
			"will_retry", attempt < p.maxRetries-1,
			"error", err)

		waitDuration := time.Second * time.Duration(1<<attempt)
		select {
		case <-time.After(waitDuration):
		case <-ctx.Done():
			return nil, newProviderError(ctx.Err(), cancellationCategory(ctx), "retry_wait", wikinameProviderName)
		}
	}

	return nil, errors.New(lastErr).
		Component("provider." + wikinameProviderName).
		Category(errors.CategoryNetwork).
		Context("operation", "query_with_retry").
		Context("provider", wikinameProviderName).
		Context("request_id", reqID).
		Context("max_retries", p.maxRetries).
		Build()
}

// GetMetrics returns a snapshot of request statistics.
func (p *Wikiname) GetMetrics() Metrics {
	return p.metrics.snapshot()
}

// Markers that introduce a list of names in intro prose. The "of" forms
// point back at source names and feed variations; the bare plural forms
// introduce diminutive lists and feed nicknames.
var (
	variationMarkers = []string{
		"diminutive of", "short form of", "pet form of", "variant of",
		"form of", "cognate of", "derived from", "variant spelling of",
	}
	nicknameMarkers = []string{
		"diminutives include", "diminutives:", "diminutives are",
		"nicknames include", "short forms include", "pet forms include",
	}
	pejorativeMarkers = []string{
		"pejorative", "derogatory", "mocking", "teasing",
	}
)

// metadataFromExtract parses the intro HTML of a name page. Plain prose
// carries the meaning, gender phrasing, and marker-introduced name lists;
// anchor texts contribute additional related forms.
func metadataFromExtract(extractHTML string, part namepart.Part) *PartMetadata {
	meta := Empty()
	meta.FetchedAt = time.Now()

	plain := html2text.HTML2Text(extractHTML)
	meta.Meaning = firstSentences(plain, 2)
	meta.Gender = genderFromProse(strings.ToLower(plain))

	meta.Nicknames.Good = UnionStrings(meta.Nicknames.Good, selfFiltered(nameListAfter(plain, nicknameMarkers), part))
	meta.Nicknames.Bad = UnionStrings(meta.Nicknames.Bad, selfFiltered(namesInMarkedSentences(plain, pejorativeMarkers), part))
	meta.Variations = UnionStrings(meta.Variations, selfFiltered(nameListAfter(plain, variationMarkers), part))

	doc, err := html.Parse(strings.NewReader(extractHTML))
	if err != nil {
		logger.Debug("Failed to parse extract HTML, keeping prose results only",
			"provider", wikinameProviderName,
			"error", err)
		return meta
	}
	var linked []string
	for _, link := range findLinks(doc) {
		text := strings.TrimSpace(extractLinkText(link))
		if !plausibleNameToken(text) {
			continue
		}
		linked = append(linked, text)
	}
	meta.Variations = UnionStrings(meta.Variations, selfFiltered(linked, part))

	return meta
}

// firstSentences clips plain prose to at most n sentences, then to
// maxMeaningChars runes.
func firstSentences(plain string, n int) string {
	s := strings.TrimSpace(plain)
	count := 0
	end := len(s)
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			count++
			if count >= n {
				end = i + 1
				break
			}
		}
	}
	out := strings.TrimSpace(s[:end])
	if utf8.RuneCountInString(out) > maxMeaningChars {
		runes := []rune(out)
		out = strings.TrimSpace(string(runes[:maxMeaningChars])) + "..."
	}
	return out
}

// genderFromProse scans intro prose for gender phrasing. Feminine wording is
// stripped before the masculine check because "female given name" contains
// "male given name".
func genderFromProse(lower string) GenderSignal {
	if strings.Contains(lower, "unisex") {
		return GenderAndrogynous
	}
	feminine := strings.Contains(lower, "female") || strings.Contains(lower, "feminine")
	stripped := strings.ReplaceAll(lower, "female", "")
	stripped = strings.ReplaceAll(stripped, "feminine", "")
	masculine := strings.Contains(stripped, "male") || strings.Contains(stripped, "masculine")
	switch {
	case feminine && masculine:
		return GenderAndrogynous
	case feminine:
		return GenderFemale
	case masculine:
		return GenderMale
	}
	return GenderUnknown
}

// nameListAfter extracts capitalized name tokens from the text following any
// of the marker phrases, up to the end of that sentence. Suits markers whose
// names come after them, like "diminutive of Elizabeth".
func nameListAfter(plain string, markers []string) []string {
	var out []string
	lower := strings.ToLower(plain)
	for _, marker := range markers {
		idx := 0
		for {
			rel := strings.Index(lower[idx:], marker)
			if rel < 0 {
				break
			}
			from := idx + rel + len(marker)
			segment := plain[from:]
			if end := strings.IndexAny(segment, ".;!?\n"); end >= 0 {
				segment = segment[:end]
			}
			out = append(out, capitalizedTokens(segment)...)
			idx = from
		}
	}
	return out
}

// namesInMarkedSentences extracts capitalized name tokens from every
// sentence containing one of the markers. Suits markers whose names come
// before them, like "Lizzie was once considered derogatory".
func namesInMarkedSentences(plain string, markers []string) []string {
	var out []string
	for _, sentence := range splitSentences(plain) {
		lower := strings.ToLower(sentence)
		for _, marker := range markers {
			if strings.Contains(lower, marker) {
				out = append(out, capitalizedTokens(sentence)...)
				break
			}
		}
	}
	return out
}

// splitSentences breaks prose at sentence punctuation and newlines.
func splitSentences(plain string) []string {
	return strings.FieldsFunc(plain, func(r rune) bool {
		return r == '.' || r == ';' || r == '!' || r == '?' || r == '\n'
	})
}

// capitalizedTokens returns the capitalized words of a text segment:
// "of Elizabeth, Bess and Betsy" yields the three names.
func capitalizedTokens(segment string) []string {
	var names []string
	fields := strings.FieldsFunc(segment, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-' && r != '\'' && r != '’'
	})
	for _, field := range fields {
		if plausibleNameToken(field) {
			names = append(names, field)
		}
	}
	return names
}

// proseStopwords are capitalized sentence-initial words that would otherwise
// pass the name-token check.
var proseStopwords = map[string]struct{}{
	"The": {}, "It": {}, "Its": {}, "In": {}, "An": {}, "This": {},
	"These": {}, "They": {}, "Their": {}, "He": {}, "She": {}, "His": {},
	"Her": {}, "Of": {}, "On": {}, "At": {}, "As": {}, "Is": {}, "Was": {},
	"Were": {}, "From": {}, "For": {}, "With": {}, "By": {}, "And": {},
	"Or": {}, "But": {}, "Not": {}, "No": {}, "Also": {}, "Some": {},
	"Both": {}, "Other": {}, "Since": {}, "While": {}, "When": {},
}

// plausibleNameToken reports whether a token looks like a name: capitalized,
// at least two runes, not absurdly long, and not common prose.
func plausibleNameToken(token string) bool {
	runes := []rune(token)
	if len(runes) < 2 || len(runes) > 30 {
		return false
	}
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	_, stop := proseStopwords[token]
	return !stop
}

// selfFiltered drops tokens that fold to the looked-up part itself.
func selfFiltered(tokens []string, part namepart.Part) []string {
	out := tokens[:0]
	for _, token := range tokens {
		if namepart.Fold(token) == part.Key {
			continue
		}
		out = append(out, token)
	}
	return out
}

// findLinks traverses an HTML document and returns all anchor tags.
func findLinks(doc *html.Node) []*html.Node {
	var linkNodes []*html.Node

	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "a" {
			linkNodes = append(linkNodes, node)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			traverse(child)
		}
	}

	traverse(doc)
	return linkNodes
}

// extractLinkText extracts the inner text of an anchor tag.
func extractLinkText(link *html.Node) string {
	if link.FirstChild == nil {
		return ""
	}
	var b strings.Builder
	if err := html.Render(&b, link.FirstChild); err != nil {
		return ""
	}
	return html2text.HTML2Text(b.String())
}
