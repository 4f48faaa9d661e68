// conf/validate.go

package conf

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	// Validate Aggregator settings
	if err := validateAggregatorSettings(&settings.Aggregator); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate Gateway settings
	if err := validateGatewaySettings(&settings.Gateway); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate Provider settings
	if err := validateProviderSettings(&settings.Providers); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate WebServer settings
	if err := validateWebServerSettings(settings); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate Sentry settings
	if err := validateSentrySettings(&settings.Sentry); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// If there are any errors, return the ValidationError
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validateAggregatorSettings validates the combination pipeline settings
func validateAggregatorSettings(settings *AggregatorSettings) error {
	if settings.MaxCombinations < 1 {
		return fmt.Errorf("aggregator maxcombinations must be at least 1, got %d", settings.MaxCombinations)
	}

	if settings.MaxConcurrentLookups < 1 || settings.MaxConcurrentLookups > MaxConcurrentLookupsLimit {
		return fmt.Errorf("aggregator maxconcurrentlookups must be between 1 and %d, got %d",
			MaxConcurrentLookupsLimit, settings.MaxConcurrentLookups)
	}

	if settings.ProviderTimeout < 100 || settings.ProviderTimeout > 120000 {
		return fmt.Errorf("aggregator providertimeout must be between 100 and 120000 milliseconds, got %d", settings.ProviderTimeout)
	}

	return nil
}

// validateGatewaySettings validates the provider gateway settings
func validateGatewaySettings(settings *GatewaySettings) error {
	if settings.CacheTTL < 0 {
		return fmt.Errorf("gateway cachettl must not be negative, got %d", settings.CacheTTL)
	}

	if settings.CacheSweep < 1 {
		return fmt.Errorf("gateway cachesweep must be at least 1 minute, got %d", settings.CacheSweep)
	}

	return nil
}

// validateProviderSettings validates the upstream provider settings
func validateProviderSettings(settings *ProviderSettings) error {
	if settings.BehindTheName.Enabled {
		if settings.BehindTheName.APIKey == "" {
			return errors.New("behindthename provider requires an API key when enabled")
		}
		if err := validateProviderURL("behindthename baseurl", settings.BehindTheName.BaseURL); err != nil {
			return err
		}
		if settings.BehindTheName.RateLimit < 0 {
			return fmt.Errorf("behindthename ratelimit must not be negative, got %d", settings.BehindTheName.RateLimit)
		}
	}

	if settings.Demograph.Enabled {
		// Either endpoint alone is a usable partial source
		if settings.Demograph.GenderURL == "" && settings.Demograph.CultureURL == "" {
			return errors.New("demograph provider requires at least one endpoint when enabled")
		}
		if settings.Demograph.GenderURL != "" {
			if err := validateProviderURL("demograph genderurl", settings.Demograph.GenderURL); err != nil {
				return err
			}
		}
		if settings.Demograph.CultureURL != "" {
			if err := validateProviderURL("demograph cultureurl", settings.Demograph.CultureURL); err != nil {
				return err
			}
		}
	}

	if settings.Wikiname.Enabled {
		if err := validateProviderURL("wikiname apiurl", settings.Wikiname.APIURL); err != nil {
			return err
		}
		if settings.Wikiname.RateLimit <= 0 {
			return fmt.Errorf("wikiname ratelimit must be positive, got %g", settings.Wikiname.RateLimit)
		}
	}

	return nil
}

// validateProviderURL checks that a provider endpoint is an absolute http(s) URL
func validateProviderURL(field, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL, got %q", field, rawURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s is missing a host: %q", field, rawURL)
	}
	return nil
}

// validateWebServerSettings validates the web server settings
func validateWebServerSettings(settings *Settings) error {
	ws := &settings.WebServer

	if ws.Enabled {
		// Check if port is provided when enabled
		if ws.Port == "" {
			return errors.New("WebServer port is required when enabled")
		}
		if port, err := strconv.Atoi(ws.Port); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("WebServer port must be a number between 1 and 65535, got %q", ws.Port)
		}
	}

	if ws.AutoTLS && ws.Host == "" {
		return errors.New("webserver.host must be set when AutoTLS is enabled")
	}

	return nil
}

// validateSentrySettings validates the telemetry settings
func validateSentrySettings(settings *SentrySettings) error {
	if settings.Enabled && settings.DSN == "" {
		return errors.New("sentry.dsn must be set when Sentry telemetry is enabled")
	}
	return nil
}
