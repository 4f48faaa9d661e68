// internal/api/parts.go single-part lookups and provider diagnostics
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/namepart"
	"github.com/nameatlas/nameatlas/internal/provider"
)

// initPartRoutes registers part lookup and provider diagnostic endpoints
func (c *Controller) initPartRoutes() {
	c.Group.GET("/parts/:name", c.GetPart)
	c.Group.GET("/providers", c.ListProviders)
}

// PartResponse is the single-part lookup response body.
type PartResponse struct {
	Name     string                 `json:"name"`
	Key      string                 `json:"key"`
	Metadata *provider.PartMetadata `json:"metadata"`
}

// GetPart resolves one name part through the gateway.
func (c *Controller) GetPart(ctx echo.Context) error {
	part, err := namepart.New(ctx.Param("name"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid name part", http.StatusBadRequest)
	}

	meta, err := c.Gateway.Lookup(ctx.Request().Context(), part)
	if err != nil {
		switch {
		case errors.IsNotFound(err):
			return c.HandleError(ctx, err, "No data for this name part", http.StatusNotFound)
		case errors.IsCategory(err, errors.CategoryTimeout),
			errors.IsCategory(err, errors.CategoryCancellation):
			return c.HandleError(ctx, err, "Request cancelled", http.StatusRequestTimeout)
		default:
			return c.HandleError(ctx, err, "Part lookup failed", http.StatusBadGateway)
		}
	}

	return ctx.JSON(http.StatusOK, PartResponse{
		Name:     part.Display,
		Key:      part.Key,
		Metadata: meta,
	})
}

// ProviderStatus describes one upstream provider: whether it is enabled in
// the configuration, whether the gateway registered it, and its request
// statistics so far.
type ProviderStatus struct {
	Name             string    `json:"name"`
	Enabled          bool      `json:"enabled"`
	Registered       bool      `json:"registered"`
	RequestCount     int64     `json:"requestCount"`
	ErrorCount       int64     `json:"errorCount"`
	AverageLatencyMS int64     `json:"averageLatencyMs"`
	LastRequestTime  time.Time `json:"lastRequestTime,omitzero"`
}

// ProvidersResponse is the provider registry listing.
type ProvidersResponse struct {
	Providers []ProviderStatus `json:"providers"`
	Cache     CacheStats       `json:"cache"`
}

// CacheStats summarizes the gateway cache counters.
type CacheStats struct {
	Lookups     int64 `json:"lookups"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Failures    int64 `json:"failures"`
	NotFound    int64 `json:"notFound"`
	CachedParts int   `json:"cachedParts"`
}

// ListProviders reports the configured providers with their registration
// state and request statistics, plus the gateway cache counters.
func (c *Controller) ListProviders(ctx echo.Context) error {
	registered := make(map[string]ProviderStatus)
	for _, info := range c.Gateway.Providers() {
		registered[info.Name] = ProviderStatus{
			Name:             info.Name,
			Registered:       true,
			RequestCount:     info.RequestCount,
			ErrorCount:       info.ErrorCount,
			AverageLatencyMS: info.AverageLatencyMS,
			LastRequestTime:  info.LastRequestTime,
		}
	}

	ps := c.Settings.Providers
	known := []struct {
		name    string
		enabled bool
	}{
		{"behindthename", ps.BehindTheName.Enabled},
		{"demograph", ps.Demograph.Enabled},
		{"wikiname", ps.Wikiname.Enabled},
	}

	statuses := make([]ProviderStatus, 0, len(known))
	for _, k := range known {
		status, ok := registered[k.name]
		if !ok {
			status = ProviderStatus{Name: k.name}
		}
		status.Enabled = k.enabled
		statuses = append(statuses, status)
		delete(registered, k.name)
	}
	// Providers registered outside the configuration, such as test doubles.
	for _, status := range registered {
		statuses = append(statuses, status)
	}

	stats := c.Gateway.Stats()
	return ctx.JSON(http.StatusOK, ProvidersResponse{
		Providers: statuses,
		Cache: CacheStats{
			Lookups:     stats.Lookups,
			Hits:        stats.CacheHits,
			Misses:      stats.CacheMisses,
			Failures:    stats.Failures,
			NotFound:    stats.NotFound,
			CachedParts: stats.CachedParts,
		},
	})
}
