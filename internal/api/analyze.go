// internal/api/analyze.go combination analysis endpoint
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nameatlas/nameatlas/internal/aggregator"
	"github.com/nameatlas/nameatlas/internal/errors"
)

// initAnalyzeRoutes registers the analysis endpoint
func (c *Controller) initAnalyzeRoutes() {
	c.Group.POST("/analyze", c.PostAnalyze)
}

// AnalyzeRequest is the analysis request body.
type AnalyzeRequest struct {
	FirstNames  []string        `json:"firstNames"`
	MiddleNames []string        `json:"middleNames"`
	LastName    string          `json:"lastName"`
	Options     *AnalyzeOptions `json:"options"`
}

// AnalyzeOptions overrides the configured pipeline limits for one request.
// Zero values keep the configured defaults.
type AnalyzeOptions struct {
	MaxCombinations      int   `json:"maxCombinations"`
	MaxConcurrentLookups int   `json:"maxConcurrentLookups"`
	ProviderTimeoutMs    int64 `json:"providerTimeoutMs"`
}

// PostAnalyze expands the requested name combinations, resolves every
// distinct part through the gateway and returns the assembled results.
func (c *Controller) PostAnalyze(ctx echo.Context) error {
	var req AnalyzeRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	var opts aggregator.Options
	if req.Options != nil {
		opts.MaxCombinations = req.Options.MaxCombinations
		opts.MaxConcurrentLookups = req.Options.MaxConcurrentLookups
		opts.ProviderTimeout = time.Duration(req.Options.ProviderTimeoutMs) * time.Millisecond
	}

	result, err := c.Analyzer.Analyze(ctx.Request().Context(), req.FirstNames, req.MiddleNames, req.LastName, opts)
	if err != nil {
		return c.handleAnalyzeError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, result)
}

// handleAnalyzeError translates the analysis error taxonomy into HTTP
// statuses. Sentinel checks run before category checks because a sentinel
// pins the status regardless of how the error was categorized.
func (c *Controller) handleAnalyzeError(ctx echo.Context, err error) error {
	switch {
	case errors.Is(err, aggregator.ErrInvalidInput):
		return c.HandleError(ctx, err, "Invalid input", http.StatusBadRequest)

	case errors.Is(err, aggregator.ErrTooManyCombinations):
		// The response details carry the computed count and the cap.
		return c.HandleError(ctx, err, "Too many combinations", http.StatusUnprocessableEntity)

	case errors.Is(err, aggregator.ErrAllProvidersUnavailable):
		return c.HandleError(ctx, err, "No name data provider available", http.StatusBadGateway)

	case errors.IsCategory(err, errors.CategoryTimeout),
		errors.IsCategory(err, errors.CategoryCancellation):
		return c.HandleError(ctx, err, "Request cancelled", http.StatusRequestTimeout)

	default:
		return c.HandleError(ctx, err, "Analysis failed", http.StatusInternalServerError)
	}
}
