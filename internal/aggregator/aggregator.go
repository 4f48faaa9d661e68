// Package aggregator implements the name-combination pipeline: it expands
// first/middle/last name lists into candidate full names, fetches metadata
// for each distinct name part exactly once, and assembles per-combination
// results that degrade gracefully when individual lookups fail.
package aggregator

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/nameatlas/nameatlas/internal/conf"
	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/logging"
	"github.com/nameatlas/nameatlas/internal/namepart"
	"github.com/nameatlas/nameatlas/internal/provider"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "aggregator.log")
	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "aggregator", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize aggregator file logger at %s: %v. Using fallback.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "aggregator")
		closeLogger = func() error { return nil }
	}
}

// Sentinel errors for request-level failures. Per-part lookup failures never
// surface here; they degrade the affected combinations instead.
var (
	// ErrInvalidInput marks requests rejected before any expansion work:
	// an empty first-name list, or a missing or malformed last name.
	ErrInvalidInput = errors.NewStd("invalid input")

	// ErrTooManyCombinations marks requests whose expansion would exceed
	// the configured cap. No provider call is made for such a request.
	ErrTooManyCombinations = errors.NewStd("too many combinations")

	// ErrAllProvidersUnavailable marks requests where every distinct name
	// part failed lookup, which only happens during a total outage.
	ErrAllProvidersUnavailable = errors.NewStd("all providers unavailable")
)

// PartStatus describes the lookup outcome for one name part within a
// combination.
type PartStatus string

const (
	StatusOK             PartStatus = "ok"
	StatusProviderFailed PartStatus = "provider-failed"
	StatusNotFound       PartStatus = "not-found"
)

// CombinationStatus carries the per-part lookup outcomes for one combination.
// Middle is empty when the combination has no middle name.
type CombinationStatus struct {
	First  PartStatus `json:"first"`
	Middle PartStatus `json:"middle,omitzero"`
}

// Worst returns the most degraded status across the combination's parts.
// Failure outranks a clean no-data answer, which outranks ok.
func (s CombinationStatus) Worst() PartStatus {
	switch {
	case s.First == StatusProviderFailed || s.Middle == StatusProviderFailed:
		return StatusProviderFailed
	case s.First == StatusNotFound || s.Middle == StatusNotFound:
		return StatusNotFound
	default:
		return StatusOK
	}
}

// CombinationResult is one candidate full name annotated with the merged
// metadata of its first and middle parts. A failed lookup degrades the
// result to empty defaults; it never removes the combination.
type CombinationResult struct {
	First      string                `json:"first"`
	Middle     string                `json:"middle,omitzero"`
	Last       string                `json:"last"`
	FullName   string                `json:"fullName"`
	Status     CombinationStatus     `json:"status"`
	Meaning    string                `json:"meaning,omitzero"`
	Gender     provider.GenderSignal `json:"gender"`
	Cultures   provider.CultureSet   `json:"cultures"`
	Nicknames  provider.NicknameSet  `json:"nicknames"`
	Variations []string              `json:"variations,omitzero"`
}

// Stats summarizes the work one analysis request performed.
type Stats struct {
	Combinations  int   `json:"combinations"`
	DistinctParts int   `json:"distinctParts"`
	Lookups       int   `json:"lookups"`
	PartsResolved int   `json:"partsResolved"`
	PartsFailed   int   `json:"partsFailed"`
	PartsNotFound int   `json:"partsNotFound"`
	Rejected      int   `json:"rejected"`
	ElapsedMS     int64 `json:"elapsedMs"`
}

// Result is the complete outcome of one analysis request. Rejected lists the
// input tokens excluded by validation so callers can surface them instead of
// silently dropping input.
type Result struct {
	Combinations []CombinationResult  `json:"combinations"`
	Rejected     []namepart.Rejection `json:"rejected"`
	Stats        Stats                `json:"stats"`
}

// Options bound one analysis request. Zero values fall back to the
// configured or built-in defaults.
type Options struct {
	// MaxCombinations rejects requests that would expand beyond this many
	// combinations, before any provider call is made.
	MaxCombinations int

	// MaxConcurrentLookups bounds the fan-out width for distinct part
	// lookups. Clamped to the hard limit from the configuration package.
	MaxConcurrentLookups int

	// ProviderTimeout bounds each individual part lookup. A timed-out
	// lookup degrades its part exactly like any other provider failure.
	ProviderTimeout time.Duration
}

func (o Options) withDefaults() Options {
	settings := conf.GetSettings()

	if o.MaxCombinations <= 0 {
		o.MaxCombinations = conf.DefaultMaxCombinations
		if settings != nil && settings.Aggregator.MaxCombinations > 0 {
			o.MaxCombinations = settings.Aggregator.MaxCombinations
		}
	}

	if o.MaxConcurrentLookups <= 0 {
		o.MaxConcurrentLookups = conf.DefaultMaxConcurrentLookups
		if settings != nil && settings.Aggregator.MaxConcurrentLookups > 0 {
			o.MaxConcurrentLookups = settings.Aggregator.MaxConcurrentLookups
		}
	}
	if o.MaxConcurrentLookups > conf.MaxConcurrentLookupsLimit {
		o.MaxConcurrentLookups = conf.MaxConcurrentLookupsLimit
	}

	if o.ProviderTimeout <= 0 {
		ms := conf.DefaultProviderTimeoutMs
		if settings != nil && settings.Aggregator.ProviderTimeout > 0 {
			ms = settings.Aggregator.ProviderTimeout
		}
		o.ProviderTimeout = time.Duration(ms) * time.Millisecond
	}

	return o
}

// PartLookup resolves metadata for one name part. The provider gateway
// implements it; tests substitute fakes.
type PartLookup interface {
	Lookup(ctx context.Context, part namepart.Part) (*provider.PartMetadata, error)
}

// Aggregator coordinates expansion, deduplicated lookups and assembly. It
// holds no cross-request state; every Analyze call owns its own outcome map.
type Aggregator struct {
	lookup PartLookup
}

// New creates an aggregator over the given lookup capability.
func New(lookup PartLookup) (*Aggregator, error) {
	if lookup == nil {
		return nil, errors.Newf("aggregator requires a part lookup").
			Component("aggregator").
			Category(errors.CategoryConfiguration).
			Context("operation", "new_aggregator").
			Build()
	}
	return &Aggregator{lookup: lookup}, nil
}

// Analyze expands the name lists into combinations, fetches metadata for
// each distinct first or middle part at most once, and returns one result
// per combination in input order: first names outermost, middle names
// innermost. The last name anchors every combination and is not analyzed.
//
// A part failing validation is excluded from expansion and reported in
// Result.Rejected. A part failing lookup degrades the combinations that
// reference it. Analyze itself only fails on invalid input, an over-cap
// expansion, cancellation, or a total provider outage.
func (a *Aggregator) Analyze(ctx context.Context, firstNames, middleNames []string, lastName string, opts Options) (*Result, error) {
	start := time.Now()
	opts = opts.withDefaults()

	if len(firstNames) == 0 {
		recordAnalyzeError(errors.CategoryValidation)
		return nil, invalidInputError("at least one first name is required")
	}
	last, err := namepart.New(lastName)
	if err != nil {
		recordAnalyzeError(errors.CategoryValidation)
		return nil, invalidInputError(fmt.Sprintf("last name: %v", err))
	}

	firsts, rejected := validateParts(firstNames)
	middles, rejectedMiddles := validateParts(middleNames)
	rejected = append(rejected, rejectedMiddles...)

	// The cap protects downstream rate limits, so it is enforced on the
	// computed count before any expansion or provider work happens.
	count := len(firsts) * max(1, len(middles))
	if count > opts.MaxCombinations {
		recordAnalyzeError(errors.CategoryLimit)
		return nil, errors.New(fmt.Errorf("%w: %d combinations exceed the cap of %d", ErrTooManyCombinations, count, opts.MaxCombinations)).
			Component("aggregator").
			Category(errors.CategoryLimit).
			Context("operation", "analyze").
			Context("computed_count", count).
			Context("max_combinations", opts.MaxCombinations).
			Build()
	}

	combinations := expand(firsts, middles, last)
	distinct := namepart.DistinctParts(firsts, middles)

	outcomes, issued := a.fetchDistinct(ctx, distinct, opts)
	if ctxErr := ctx.Err(); ctxErr != nil {
		recordAnalyzeError(timeoutOrCancel(ctx))
		return nil, errors.New(ctxErr).
			Component("aggregator").
			Category(timeoutOrCancel(ctx)).
			Context("operation", "analyze").
			Build()
	}

	var resolved, failed, notFound int
	for _, outcome := range outcomes {
		switch outcome.status {
		case StatusProviderFailed:
			failed++
		case StatusNotFound:
			notFound++
		default:
			resolved++
		}
	}

	// A part answered "no data" still proves its providers are reachable;
	// the request only fails when nothing resolved at all.
	if len(distinct) > 0 && resolved+notFound == 0 {
		recordAnalyzeError(errors.CategoryProviderOutage)
		return nil, errors.New(fmt.Errorf("%w: all %d distinct parts failed lookup", ErrAllProvidersUnavailable, len(distinct))).
			Component("aggregator").
			Category(errors.CategoryProviderOutage).
			Context("operation", "analyze").
			Context("distinct_parts", len(distinct)).
			Build()
	}

	results := assemble(combinations, outcomes)

	stats := Stats{
		Combinations:  len(results),
		DistinctParts: len(distinct),
		Lookups:       issued,
		PartsResolved: resolved,
		PartsFailed:   failed,
		PartsNotFound: notFound,
		Rejected:      len(rejected),
		ElapsedMS:     time.Since(start).Milliseconds(),
	}

	recordAnalyzeSuccess(stats, time.Since(start))

	logger.Info("Analysis complete",
		"combinations", stats.Combinations,
		"distinct_parts", stats.DistinctParts,
		"parts_failed", stats.PartsFailed,
		"parts_not_found", stats.PartsNotFound,
		"rejected", stats.Rejected,
		"elapsed_ms", stats.ElapsedMS)

	return &Result{Combinations: results, Rejected: rejected, Stats: stats}, nil
}

// validateParts cleans each raw token, splitting the group into usable parts
// and rejections that carry the validation reason.
func validateParts(raw []string) ([]namepart.Part, []namepart.Rejection) {
	parts := make([]namepart.Part, 0, len(raw))
	var rejected []namepart.Rejection
	for _, candidate := range raw {
		part, err := namepart.New(candidate)
		if err != nil {
			rejected = append(rejected, namepart.Rejection{Part: candidate, Reason: err.Error()})
			continue
		}
		parts = append(parts, part)
	}
	return parts, rejected
}

// expand builds the combination list: the cartesian product of first and
// middle names when middles exist, one combination per first name otherwise.
// Output order follows input order so results are reproducible.
func expand(firsts, middles []namepart.Part, last namepart.Part) []namepart.Combination {
	combinations := make([]namepart.Combination, 0, len(firsts)*max(1, len(middles)))
	for _, first := range firsts {
		if len(middles) == 0 {
			combinations = append(combinations, namepart.Combination{First: first, Last: last})
			continue
		}
		for _, middle := range middles {
			combinations = append(combinations, namepart.Combination{First: first, Middle: middle, Last: last})
		}
	}
	return combinations
}

// partOutcome is the in-request record for one distinct part. The metadata
// pointer is shared read-only with the lookup layer's cache.
type partOutcome struct {
	meta   *provider.PartMetadata
	status PartStatus
}

// fetchDistinct looks up every distinct part with bounded concurrency and
// returns the outcome map plus the number of lookups actually issued.
// Cancellation stops queued lookups from being issued; in-flight ones are
// abandoned through their per-lookup context.
func (a *Aggregator) fetchDistinct(ctx context.Context, distinct []namepart.Part, opts Options) (map[string]partOutcome, int) {
	outcomes := make(map[string]partOutcome, len(distinct))
	if len(distinct) == 0 {
		return outcomes, 0
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		issued int
	)
	sem := make(chan struct{}, opts.MaxConcurrentLookups)

	for _, part := range distinct {
		wg.Add(1)
		go func(p namepart.Part) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// Never issued; the request is failing as cancelled, so
				// the placeholder status is informational only.
				mu.Lock()
				outcomes[p.Key] = partOutcome{status: StatusProviderFailed}
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			lookupCtx, cancel := context.WithTimeout(ctx, opts.ProviderTimeout)
			meta, err := a.lookup.Lookup(lookupCtx, p)
			cancel()

			outcome := partOutcome{meta: meta, status: StatusOK}
			switch {
			case err == nil:
			case errors.IsNotFound(err):
				outcome = partOutcome{status: StatusNotFound}
			default:
				outcome = partOutcome{status: StatusProviderFailed}
				logger.Warn("Part lookup failed, degrading its combinations",
					"error", err)
			}
			recordPartOutcome(outcome.status)

			mu.Lock()
			outcomes[p.Key] = outcome
			issued++
			mu.Unlock()
		}(part)
	}
	wg.Wait()

	return outcomes, issued
}

// assemble builds one result per combination from the shared part outcomes.
// Assembly order is the expansion order, independent of lookup completion.
func assemble(combinations []namepart.Combination, outcomes map[string]partOutcome) []CombinationResult {
	results := make([]CombinationResult, 0, len(combinations))
	for _, combo := range combinations {
		first := outcomeFor(outcomes, combo.First.Key)

		result := CombinationResult{
			First:    combo.First.Display,
			Last:     combo.Last.Display,
			FullName: combo.FullName(),
			Status:   CombinationStatus{First: first.status},
		}

		merged := provider.Empty()
		if first.meta != nil {
			merged = first.meta.Clone()
		}
		if combo.HasMiddle() {
			middle := outcomeFor(outcomes, combo.Middle.Key)
			result.Middle = combo.Middle.Display
			result.Status.Middle = middle.status
			if middle.meta != nil {
				merged.Merge(middle.meta)
			}
		}

		// The combination's gender is the first name's signal. A middle
		// name's signal is informational only and never fills the gap.
		if first.meta != nil {
			merged.Gender = first.meta.Gender
		} else {
			merged.Gender = provider.GenderUnknown
		}

		result.Meaning = merged.Meaning
		result.Gender = merged.Gender
		result.Cultures = merged.Cultures
		result.Nicknames = merged.Nicknames
		result.Variations = merged.Variations

		results = append(results, result)
	}
	return results
}

func outcomeFor(outcomes map[string]partOutcome, key string) partOutcome {
	if outcome, ok := outcomes[key]; ok {
		return outcome
	}
	return partOutcome{status: StatusProviderFailed}
}

func invalidInputError(reason string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrInvalidInput, reason)).
		Component("aggregator").
		Category(errors.CategoryValidation).
		Context("operation", "analyze").
		Build()
}

func timeoutOrCancel(ctx context.Context) errors.ErrorCategory {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.CategoryTimeout
	}
	return errors.CategoryCancellation
}
