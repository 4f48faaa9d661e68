// api_test.go: tests for the v1 API endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nameatlas/nameatlas/internal/aggregator"
	"github.com/nameatlas/nameatlas/internal/conf"
	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/gateway"
	"github.com/nameatlas/nameatlas/internal/namepart"
	"github.com/nameatlas/nameatlas/internal/observability"
	"github.com/nameatlas/nameatlas/internal/provider"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

// fakeProvider answers gateway lookups from a test function.
type fakeProvider struct {
	name  string
	calls atomic.Int64
	fn    func(ctx context.Context, part namepart.Part) (*provider.PartMetadata, error)
}

func (f *fakeProvider) Lookup(ctx context.Context, part namepart.Part) (*provider.PartMetadata, error) {
	f.calls.Add(1)
	return f.fn(ctx, part)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GetMetrics() provider.Metrics {
	return provider.Metrics{RequestCount: f.calls.Load()}
}

func resolvingProvider() *fakeProvider {
	return &fakeProvider{
		name: "demograph",
		fn: func(_ context.Context, part namepart.Part) (*provider.PartMetadata, error) {
			return &provider.PartMetadata{
				Meaning:  "meaning of " + part.Key,
				Gender:   provider.GenderFemale,
				Cultures: provider.CultureSet{Positive: []string{"Latin"}},
			}, nil
		},
	}
}

func notFoundProvider() *fakeProvider {
	return &fakeProvider{
		name: "demograph",
		fn: func(_ context.Context, part namepart.Part) (*provider.PartMetadata, error) {
			return nil, provider.NewNotFoundError("demograph", part)
		},
	}
}

func failingProvider() *fakeProvider {
	return &fakeProvider{
		name: "demograph",
		fn: func(_ context.Context, part namepart.Part) (*provider.PartMetadata, error) {
			return nil, errors.Newf("upstream unreachable").
				Component("provider.demograph").
				Category(errors.CategoryNetwork).
				PartContext(part.Display).
				Build()
		},
	}
}

// setupTestEnvironment wires a controller over the real pipeline with the
// given provider double behind the gateway.
func setupTestEnvironment(t *testing.T, p *fakeProvider, metrics *observability.Metrics) (*echo.Echo, *Controller) {
	t.Helper()

	settings := &conf.Settings{}
	settings.Version = "test"
	settings.BuildDate = "2025-01-01"
	settings.Providers.Demograph.Enabled = true
	settings.Providers.Wikiname.Enabled = true

	gw, err := gateway.New(gateway.Config{
		CacheTTL:   time.Minute,
		CacheSweep: time.Minute,
	}, p)
	require.NoError(t, err)
	t.Cleanup(gw.Close)

	analyzer, err := aggregator.New(gw)
	require.NoError(t, err)

	e := echo.New()
	controller, err := New(e, settings, analyzer, gw, log.New(testWriter{t}, "", 0), metrics)
	require.NoError(t, err)
	t.Cleanup(controller.Shutdown)

	return e, controller
}

// testWriter routes controller log output through the test log.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func doJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	e, _ := setupTestEnvironment(t, resolvingProvider(), nil)

	rec := doJSON(e, http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, float64(1), body["providers_registered"])
}

func TestPostAnalyze(t *testing.T) {
	e, _ := setupTestEnvironment(t, resolvingProvider(), nil)

	rec := doJSON(e, http.MethodPost, "/api/v1/analyze",
		`{"firstNames":["Ana","Bob"],"middleNames":["May"],"lastName":"Kim"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)

	combos, ok := body["combinations"].([]any)
	require.True(t, ok, "combinations must be an array")
	require.Len(t, combos, 2)

	first, ok := combos[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ana May Kim", first["fullName"])
	assert.Equal(t, "meaning of ana", first["meaning"])
	assert.Equal(t, "female", first["gender"])

	status, ok := first["status"].(map[string]any)
	require.True(t, ok, "status must be an object")
	assert.Equal(t, "ok", status["first"])
	assert.Equal(t, "ok", status["middle"])

	stats, ok := body["stats"].(map[string]any)
	require.True(t, ok, "stats must be an object")
	assert.Equal(t, float64(2), stats["combinations"])
	assert.Equal(t, float64(3), stats["distinctParts"])
	assert.Equal(t, float64(3), stats["lookups"])
}

func TestPostAnalyzeRequestOptions(t *testing.T) {
	p := resolvingProvider()
	e, _ := setupTestEnvironment(t, p, nil)

	// A request-level cap below the expansion count must fail the request.
	rec := doJSON(e, http.MethodPost, "/api/v1/analyze",
		`{"firstNames":["Ana","Bob","Cleo"],"lastName":"Kim","options":{"maxCombinations":2}}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, int64(0), p.calls.Load(), "capped request must not reach providers")
}

func TestPostAnalyzeInvalidInput(t *testing.T) {
	e, _ := setupTestEnvironment(t, resolvingProvider(), nil)

	rec := doJSON(e, http.MethodPost, "/api/v1/analyze", `{"firstNames":[],"lastName":"Kim"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(http.StatusBadRequest), body["code"])
	assert.NotEmpty(t, body["correlation_id"])
}

func TestPostAnalyzeInvalidBody(t *testing.T) {
	e, _ := setupTestEnvironment(t, resolvingProvider(), nil)

	rec := doJSON(e, http.MethodPost, "/api/v1/analyze", `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostAnalyzeTooManyCombinations(t *testing.T) {
	p := resolvingProvider()
	e, _ := setupTestEnvironment(t, p, nil)

	firsts := make([]string, 0, 15)
	for i := range 15 {
		firsts = append(firsts, fmt.Sprintf("Name%c", 'a'+rune(i)))
	}
	middles := make([]string, 0, 10)
	for i := range 10 {
		middles = append(middles, fmt.Sprintf("Mid%c", 'a'+rune(i)))
	}
	payload, err := json.Marshal(map[string]any{
		"firstNames":  firsts,
		"middleNames": middles,
		"lastName":    "Kim",
	})
	require.NoError(t, err)

	rec := doJSON(e, http.MethodPost, "/api/v1/analyze", string(payload))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)

	details, ok := body["details"].(map[string]any)
	require.True(t, ok, "422 must carry the computed count in details")
	assert.Equal(t, float64(150), details["computed_count"])
	assert.Equal(t, float64(100), details["max_combinations"])

	assert.Equal(t, int64(0), p.calls.Load(), "capped request must not reach providers")
}

func TestPostAnalyzeProviderOutage(t *testing.T) {
	e, _ := setupTestEnvironment(t, failingProvider(), nil)

	rec := doJSON(e, http.MethodPost, "/api/v1/analyze", `{"firstNames":["Ana"],"lastName":"Kim"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(http.StatusBadGateway), body["code"])
}

func TestGetPart(t *testing.T) {
	e, _ := setupTestEnvironment(t, resolvingProvider(), nil)

	rec := doJSON(e, http.MethodGet, "/api/v1/parts/Ana", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "Ana", body["name"])
	assert.Equal(t, "ana", body["key"])

	meta, ok := body["metadata"].(map[string]any)
	require.True(t, ok, "metadata must be an object")
	assert.Equal(t, "meaning of ana", meta["meaning"])
	assert.Equal(t, "female", meta["gender"])
}

func TestGetPartNotFound(t *testing.T) {
	e, _ := setupTestEnvironment(t, notFoundProvider(), nil)

	rec := doJSON(e, http.MethodGet, "/api/v1/parts/Zzyzx", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPartInvalidName(t *testing.T) {
	e, _ := setupTestEnvironment(t, resolvingProvider(), nil)

	rec := doJSON(e, http.MethodGet, "/api/v1/parts/K1m", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProviders(t *testing.T) {
	e, _ := setupTestEnvironment(t, resolvingProvider(), nil)

	// Prime some gateway traffic so the registered provider carries counters.
	doJSON(e, http.MethodGet, "/api/v1/parts/Ana", "")

	rec := doJSON(e, http.MethodGet, "/api/v1/providers", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body ProvidersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	byName := make(map[string]ProviderStatus, len(body.Providers))
	for _, status := range body.Providers {
		byName[status.Name] = status
	}

	demograph, ok := byName["demograph"]
	require.True(t, ok)
	assert.True(t, demograph.Enabled)
	assert.True(t, demograph.Registered)
	assert.Equal(t, int64(1), demograph.RequestCount)

	wikiname, ok := byName["wikiname"]
	require.True(t, ok)
	assert.True(t, wikiname.Enabled)
	assert.False(t, wikiname.Registered, "wikiname was not registered in this test")

	btn, ok := byName["behindthename"]
	require.True(t, ok)
	assert.False(t, btn.Enabled)

	assert.Equal(t, int64(1), body.Cache.Lookups)
}

func TestMetricsEndpoint(t *testing.T) {
	m, err := observability.NewMetrics()
	require.NoError(t, err)

	e, _ := setupTestEnvironment(t, resolvingProvider(), m)

	// Generate a little traffic so request counters carry samples.
	doJSON(e, http.MethodGet, "/api/v1/health", "")

	rec := doJSON(e, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nameatlas_gateway_cached_parts")
}
