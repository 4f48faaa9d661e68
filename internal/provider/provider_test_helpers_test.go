package provider

import (
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/nameatlas/nameatlas/internal/namepart"
)

// newTestBehindTheName creates a Behind the Name adapter with its transport
// replaced by httpmock. The rate limiter ticks every millisecond so tests do
// not stall waiting for a slot.
func newTestBehindTheName(t *testing.T) *BehindTheName {
	t.Helper()

	p, err := NewBehindTheName(BehindTheNameConfig{
		APIKey:      "test-api-key",
		RateLimitMS: 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	httpmock.ActivateNonDefault(p.http.StdClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	return p
}

// newTestDemograph creates a demograph adapter with its transport replaced
// by httpmock.
func newTestDemograph(t *testing.T) *Demograph {
	t.Helper()

	p, err := NewDemograph(DemographConfig{
		GenderURL:  "https://api.genderize.io",
		CultureURL: "https://api.nationalize.io",
		Timeout:    2 * time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	httpmock.ActivateNonDefault(p.http.StdClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	return p
}

// mustPart builds a validated name part or fails the test.
func mustPart(t *testing.T, raw string) namepart.Part {
	t.Helper()
	part, err := namepart.New(raw)
	require.NoError(t, err)
	return part
}

// btnLookupSuccessResponse returns a lookup.json body for a feminine name
// with one cross-gendered usage.
func btnLookupSuccessResponse() string {
	return `[
  {
    "name": "Ana",
    "gender": "f",
    "usages": [
      {"usage_code": "spa", "usage_full": "Spanish", "usage_gender": "f"},
      {"usage_code": "bul", "usage_full": "Bulgarian", "usage_gender": "f"},
      {"usage_code": "heb", "usage_full": "Hebrew", "usage_gender": "m"}
    ]
  }
]`
}

// btnRelatedSuccessResponse returns a related.json body with one duplicate
// that only differs by case.
func btnRelatedSuccessResponse() string {
	return `{"names": ["Anna", "Anne", "Anita", "anna"]}`
}

// registerBTNLookupResponder registers a mock responder for lookup.json.
func registerBTNLookupResponder(t *testing.T, statusCode int, body string) {
	t.Helper()

	httpmock.RegisterResponder("GET", `=~^https://www\.behindthename\.com/api/lookup\.json`,
		httpmock.NewStringResponder(statusCode, body).HeaderSet(jsonHeader()))
}

// registerBTNRelatedResponder registers a mock responder for related.json.
func registerBTNRelatedResponder(t *testing.T, statusCode int, body string) {
	t.Helper()

	httpmock.RegisterResponder("GET", `=~^https://www\.behindthename\.com/api/related\.json`,
		httpmock.NewStringResponder(statusCode, body).HeaderSet(jsonHeader()))
}

// registerGenderResponder registers a mock responder for the gender endpoint.
func registerGenderResponder(t *testing.T, statusCode int, body string) {
	t.Helper()

	httpmock.RegisterResponder("GET", `=~^https://api\.genderize\.io`,
		httpmock.NewStringResponder(statusCode, body).HeaderSet(jsonHeader()))
}

// registerCultureResponder registers a mock responder for the culture endpoint.
func registerCultureResponder(t *testing.T, statusCode int, body string) {
	t.Helper()

	httpmock.RegisterResponder("GET", `=~^https://api\.nationalize\.io`,
		httpmock.NewStringResponder(statusCode, body).HeaderSet(jsonHeader()))
}

func jsonHeader() http.Header {
	return http.Header{"Content-Type": []string{"application/json"}}
}
