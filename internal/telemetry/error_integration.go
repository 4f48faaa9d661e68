// Package telemetry - integration with the error handling system
package telemetry

import (
	"github.com/nameatlas/nameatlas/internal/conf"
	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/privacy"
)

// InitializeErrorIntegration sets up the error package to report through
// telemetry when enabled. It must run after the configuration has loaded and
// before any component starts building errors, and it is safe to call when
// telemetry is disabled: the attached reporter stays inert and only the
// privacy scrubber is active.
func InitializeErrorIntegration() {
	settings := conf.GetSettings()
	enabled := settings != nil && settings.Sentry.Enabled

	reporter := errors.NewSentryReporter(enabled)
	errors.SetTelemetryReporter(reporter)

	// Error messages pass through the same scrubbing as direct captures
	errors.SetPrivacyScrubber(privacy.ScrubMessage)
}
