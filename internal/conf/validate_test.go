package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validSettings returns a Settings struct that passes validation, for tests
// to break one field at a time.
func validSettings() *Settings {
	s := &Settings{}
	s.Main.Name = "nameatlas"
	s.Aggregator = AggregatorSettings{
		MaxCombinations:      DefaultMaxCombinations,
		MaxConcurrentLookups: DefaultMaxConcurrentLookups,
		ProviderTimeout:      DefaultProviderTimeoutMs,
	}
	s.Gateway = GatewaySettings{CacheTTL: 1440, CacheSweep: 10}
	s.Providers.Demograph = DemographSettings{
		Enabled:    true,
		GenderURL:  "https://api.genderize.io",
		CultureURL: "https://api.nationalize.io",
	}
	s.Providers.Wikiname = WikinameSettings{
		Enabled:   true,
		APIURL:    "https://en.wiktionary.org/w/api.php",
		RateLimit: 2.0,
	}
	s.WebServer.Enabled = true
	s.WebServer.Port = "8080"
	return s
}

func TestValidateSettingsValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateAggregatorSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*Settings)
		expectError string
	}{
		{
			name:        "zero combination cap",
			mutate:      func(s *Settings) { s.Aggregator.MaxCombinations = 0 },
			expectError: "maxcombinations",
		},
		{
			name:        "negative concurrency",
			mutate:      func(s *Settings) { s.Aggregator.MaxConcurrentLookups = -1 },
			expectError: "maxconcurrentlookups",
		},
		{
			name:        "concurrency above limit",
			mutate:      func(s *Settings) { s.Aggregator.MaxConcurrentLookups = MaxConcurrentLookupsLimit + 1 },
			expectError: "maxconcurrentlookups",
		},
		{
			name:        "timeout too small",
			mutate:      func(s *Settings) { s.Aggregator.ProviderTimeout = 10 },
			expectError: "providertimeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateProviderSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*Settings)
		expectError string
	}{
		{
			name: "behindthename enabled without key",
			mutate: func(s *Settings) {
				s.Providers.BehindTheName.Enabled = true
				s.Providers.BehindTheName.BaseURL = "https://www.behindthename.com/api"
			},
			expectError: "API key",
		},
		{
			name: "behindthename bad base url",
			mutate: func(s *Settings) {
				s.Providers.BehindTheName.Enabled = true
				s.Providers.BehindTheName.APIKey = "key123"
				s.Providers.BehindTheName.BaseURL = "ftp://example.com"
			},
			expectError: "http or https",
		},
		{
			name: "demograph with no endpoints",
			mutate: func(s *Settings) {
				s.Providers.Demograph.GenderURL = ""
				s.Providers.Demograph.CultureURL = ""
			},
			expectError: "at least one endpoint",
		},
		{
			name: "wikiname zero rate limit",
			mutate: func(s *Settings) {
				s.Providers.Wikiname.RateLimit = 0
			},
			expectError: "ratelimit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateWebServerSettings(t *testing.T) {
	t.Parallel()

	t.Run("missing port when enabled", func(t *testing.T) {
		t.Parallel()
		s := validSettings()
		s.WebServer.Port = ""

		err := ValidateSettings(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "port")
	})

	t.Run("non numeric port", func(t *testing.T) {
		t.Parallel()
		s := validSettings()
		s.WebServer.Port = "web"

		require.Error(t, ValidateSettings(s))
	})

	t.Run("autotls requires host", func(t *testing.T) {
		t.Parallel()
		s := validSettings()
		s.WebServer.AutoTLS = true

		err := ValidateSettings(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "host")
	})

	t.Run("disabled server skips port check", func(t *testing.T) {
		t.Parallel()
		s := validSettings()
		s.WebServer.Enabled = false
		s.WebServer.Port = ""

		require.NoError(t, ValidateSettings(s))
	})
}

func TestValidateSentrySettings(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Sentry.Enabled = true

	err := ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sentry.dsn")

	s.Sentry.DSN = "https://key@sentry.example.com/1"
	require.NoError(t, ValidateSettings(s))
}

func TestProviderTimeoutDuration(t *testing.T) {
	t.Parallel()

	s := AggregatorSettings{ProviderTimeout: 2500}
	assert.Equal(t, "2.5s", s.ProviderTimeoutDuration().String())
}
