// Package gateway resolves name parts against the registered upstream
// providers, merges their answers, and caches merged results across
// requests.
package gateway

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/nameatlas/nameatlas/internal/conf"
	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/httpclient"
	"github.com/nameatlas/nameatlas/internal/logging"
	"github.com/nameatlas/nameatlas/internal/namepart"
	"github.com/nameatlas/nameatlas/internal/observability/metrics"
	"github.com/nameatlas/nameatlas/internal/provider"
)

const (
	defaultCacheTTL   = 24 * time.Hour
	defaultCacheSweep = 10 * time.Minute
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "gateway.log")
	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "gateway", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize gateway file logger at %s: %v. Using fallback.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "gateway")
		closeLogger = func() error { return nil }
	}
}

// Config holds gateway construction options.
type Config struct {
	// CacheTTL is how long merged results stay cached
	CacheTTL time.Duration

	// CacheSweep is how often expired entries are purged
	CacheSweep time.Duration
}

// cachedNotFound marks parts every provider answered for without data, so
// repeat lookups of hopeless parts skip the network entirely.
type cachedNotFound struct{}

// closable lets Close release adapters that hold tickers or connections.
type closable interface {
	Close()
}

// metricsSource lets Providers read request statistics off adapters that
// track them.
type metricsSource interface {
	GetMetrics() provider.Metrics
}

// Gateway fans one part lookup out to the providers, in registration order,
// and merges what comes back. Earlier providers win merge conflicts.
type Gateway struct {
	providers  []provider.Provider
	cache      *gocache.Cache
	sharedHTTP *httpclient.Client
	inFlight   sync.Map // part key -> chan struct{}, closed when the fetch finishes
	debug      bool

	mu          sync.Mutex
	lookups     int64
	cacheHits   int64
	cacheMisses int64
	failures    int64
	notFound    int64
}

// Stats is a snapshot of gateway counters.
type Stats struct {
	Lookups     int64 `json:"lookups"`
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	Failures    int64 `json:"failures"`
	NotFound    int64 `json:"not_found"`
	CachedParts int   `json:"cached_parts"`
}

// ProviderInfo describes one registered provider for diagnostics.
type ProviderInfo struct {
	Name             string    `json:"name"`
	RequestCount     int64     `json:"request_count"`
	ErrorCount       int64     `json:"error_count"`
	AverageLatencyMS int64     `json:"average_latency_ms"`
	LastRequestTime  time.Time `json:"last_request_time,omitzero"`
}

// New creates a gateway over the given providers. Order matters: earlier
// providers take precedence when merged fields collide.
func New(config Config, providers ...provider.Provider) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, errors.Newf("gateway requires at least one provider").
			Component("gateway").
			Category(errors.CategoryConfiguration).
			Context("operation", "new_gateway").
			Build()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaultCacheTTL
	}
	if config.CacheSweep <= 0 {
		config.CacheSweep = defaultCacheSweep
	}

	g := &Gateway{
		providers: providers,
		cache:     gocache.New(config.CacheTTL, config.CacheSweep),
	}

	if settings := conf.GetSettings(); settings != nil && settings.Gateway.Debug {
		g.debug = true
		serviceLevelVar.Set(slog.LevelDebug)
	}

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	logger.Info("Gateway initialized",
		"providers", names,
		"cache_ttl", config.CacheTTL,
		"cache_sweep", config.CacheSweep)

	return g, nil
}

// FromSettings builds a gateway with every enabled provider from the
// configuration. The adapters share one pooled HTTP client. Provider order
// here is merge priority: the keyed reference API first, then demographic
// statistics, then wiki prose.
func FromSettings(settings *conf.Settings) (*Gateway, error) {
	if settings == nil {
		return nil, errors.Newf("settings not loaded").
			Component("gateway").
			Category(errors.CategoryConfiguration).
			Context("operation", "from_settings").
			Build()
	}

	shared := httpclient.New(&httpclient.Config{UserAgent: provider.UserAgent})
	var providers []provider.Provider
	closeAll := func() {
		for _, p := range providers {
			if c, ok := p.(closable); ok {
				c.Close()
			}
		}
		shared.Close()
	}

	ps := settings.Providers
	if ps.BehindTheName.Enabled {
		btn, err := provider.NewBehindTheName(provider.BehindTheNameConfig{
			APIKey:      ps.BehindTheName.APIKey,
			BaseURL:     ps.BehindTheName.BaseURL,
			RateLimitMS: ps.BehindTheName.RateLimit,
		}, shared)
		if err != nil {
			closeAll()
			return nil, err
		}
		providers = append(providers, btn)
	}
	if ps.Demograph.Enabled {
		demo, err := provider.NewDemograph(provider.DemographConfig{
			GenderURL:  ps.Demograph.GenderURL,
			CultureURL: ps.Demograph.CultureURL,
		}, shared)
		if err != nil {
			closeAll()
			return nil, err
		}
		providers = append(providers, demo)
	}
	if ps.Wikiname.Enabled {
		wiki, err := provider.NewWikiname(provider.WikinameConfig{
			APIURL:    ps.Wikiname.APIURL,
			RateLimit: ps.Wikiname.RateLimit,
			Version:   settings.Version,
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		providers = append(providers, wiki)
	}

	g, err := New(Config{
		CacheTTL:   time.Duration(settings.Gateway.CacheTTL) * time.Minute,
		CacheSweep: time.Duration(settings.Gateway.CacheSweep) * time.Minute,
	}, providers...)
	if err != nil {
		closeAll()
		return nil, err
	}
	g.sharedHTTP = shared
	return g, nil
}

// Lookup resolves one part, serving repeat lookups from the cache. Returned
// metadata is shared across callers and must be treated as read-only; use
// Clone before mutating. Concurrent lookups of the same part coalesce into
// one upstream fetch.
func (g *Gateway) Lookup(ctx context.Context, part namepart.Part) (*provider.PartMetadata, error) {
	g.mu.Lock()
	g.lookups++
	g.mu.Unlock()

	for {
		if meta, found, err := g.cached(part); found {
			return meta, err
		}

		ch, loaded := g.inFlight.LoadOrStore(part.Key, make(chan struct{}))
		waitCh := ch.(chan struct{})
		if !loaded {
			meta, err := g.fetchAndMerge(ctx, part)
			g.inFlight.Delete(part.Key)
			close(waitCh)
			return meta, err
		}

		// Another lookup of the same part is already running; wait for it
		// and re-read the cache. Transient failures are not cached, so a
		// waiter may become the next fetcher.
		if m := getMetrics(); m != nil {
			m.RecordCoalescedWait()
		}
		select {
		case <-waitCh:
		case <-ctx.Done():
			return nil, errors.New(ctx.Err()).
				Component("gateway").
				Category(timeoutOrCancel(ctx)).
				Context("operation", "wait_inflight").
				PartContext(part.Display).
				Build()
		}
	}
}

// cached reads the cache, translating the stored not-found marker back into
// its error form.
func (g *Gateway) cached(part namepart.Part) (meta *provider.PartMetadata, found bool, err error) {
	entry, ok := g.cache.Get(part.Key)
	if !ok {
		g.mu.Lock()
		g.cacheMisses++
		g.mu.Unlock()
		if m := getMetrics(); m != nil {
			m.RecordCacheRequest(metrics.LabelMiss)
		}
		return nil, false, nil
	}

	g.mu.Lock()
	g.cacheHits++
	g.mu.Unlock()
	if m := getMetrics(); m != nil {
		m.RecordCacheRequest(metrics.LabelHit)
	}

	switch v := entry.(type) {
	case *provider.PartMetadata:
		if g.debug {
			logger.Debug("Cache hit", "part", part.Key)
		}
		return v, true, nil
	case cachedNotFound:
		return nil, true, newPartNotFoundError(part)
	default:
		// Unreachable unless the cache is fed bad entries; treat as a miss.
		g.cache.Delete(part.Key)
		return nil, false, nil
	}
}

// fetchAndMerge asks every provider about the part, in order, and merges the
// answers. Earlier providers win collisions because merging is
// receiver-priority. One provider failing degrades the answer; the lookup
// only fails when no provider produced one.
func (g *Gateway) fetchAndMerge(ctx context.Context, part namepart.Part) (*provider.PartMetadata, error) {
	start := time.Now()
	merged := provider.Empty()
	resolved := false
	answered := false
	var failures []error

	for _, p := range g.providers {
		meta, err := p.Lookup(ctx, part)
		if err != nil {
			if errors.IsNotFound(err) {
				answered = true
				continue
			}
			failures = append(failures, err)
			logger.Warn("Provider lookup failed",
				"provider", p.Name(),
				"error", err)
			if ctx.Err() != nil {
				// The context is dead; the remaining providers would only
				// report the same thing.
				break
			}
			continue
		}
		answered = true
		if meta != nil && !meta.IsEmpty() {
			resolved = true
			merged.Merge(meta)
		}
	}

	switch {
	case resolved:
		merged.FetchedAt = time.Now()
		g.cache.Set(part.Key, merged, gocache.DefaultExpiration)
		if m := getMetrics(); m != nil {
			m.RecordLookup(metrics.OutcomeResolved)
			m.RecordLookupDuration(time.Since(start).Seconds())
			m.SetCachedParts(g.cache.ItemCount())
		}
		if g.debug {
			logger.Debug("Part resolved",
				"part", part.Key,
				"gender", merged.Gender,
				"providers_failed", len(failures))
		}
		return merged, nil

	case answered:
		// Every provider that answered had no data. That is a stable fact
		// worth caching.
		g.cache.Set(part.Key, cachedNotFound{}, gocache.DefaultExpiration)
		g.mu.Lock()
		g.notFound++
		g.mu.Unlock()
		if m := getMetrics(); m != nil {
			m.RecordLookup(metrics.OutcomeNotFound)
			m.SetCachedParts(g.cache.ItemCount())
		}
		return nil, newPartNotFoundError(part)

	default:
		g.mu.Lock()
		g.failures++
		g.mu.Unlock()
		if m := getMetrics(); m != nil {
			m.RecordLookup(metrics.OutcomeFailed)
		}
		return nil, errors.New(errors.Join(failures...)).
			Component("gateway").
			Category(errors.CategoryProviderFetch).
			Context("operation", "fetch_and_merge").
			Context("providers_failed", len(failures)).
			PartContext(part.Display).
			Build()
	}
}

// Providers lists the registered providers with their request statistics.
func (g *Gateway) Providers() []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(g.providers))
	for _, p := range g.providers {
		info := ProviderInfo{Name: p.Name()}
		if src, ok := p.(metricsSource); ok {
			m := src.GetMetrics()
			info.RequestCount = m.RequestCount
			info.ErrorCount = m.ErrorCount
			info.AverageLatencyMS = m.AverageLatency.Milliseconds()
			info.LastRequestTime = m.LastRequestTime
		}
		infos = append(infos, info)
	}
	return infos
}

// Stats returns a snapshot of gateway counters.
func (g *Gateway) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Lookups:     g.lookups,
		CacheHits:   g.cacheHits,
		CacheMisses: g.cacheMisses,
		Failures:    g.failures,
		NotFound:    g.notFound,
		CachedParts: g.cache.ItemCount(),
	}
}

// Flush drops every cached part.
func (g *Gateway) Flush() {
	g.cache.Flush()
	if m := getMetrics(); m != nil {
		m.SetCachedParts(0)
	}
	logger.Info("Gateway cache flushed")
}

// Close releases the providers and the shared HTTP client.
func (g *Gateway) Close() {
	for _, p := range g.providers {
		if c, ok := p.(closable); ok {
			c.Close()
		}
	}
	if g.sharedHTTP != nil {
		g.sharedHTTP.Close()
	}
	logger.Info("Gateway closed")
}

// newPartNotFoundError reports that no provider has data for a part.
func newPartNotFoundError(part namepart.Part) error {
	return errors.Newf("no provider has data for this name part").
		Component("gateway").
		Category(errors.CategoryNotFound).
		Context("operation", "lookup").
		PartContext(part.Display).
		Build()
}

// timeoutOrCancel picks the error category matching how the context died.
func timeoutOrCancel(ctx context.Context) errors.ErrorCategory {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.CategoryTimeout
	}
	return errors.CategoryCancellation
}
