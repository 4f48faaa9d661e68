// Package telemetry provides privacy-compliant error tracking via Sentry.
// Telemetry is strictly opt-in: nothing leaves the process unless the user
// has enabled it in the configuration, and everything that does leave is
// scrubbed of name parts, credentials, and host identity first.
package telemetry

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/getsentry/sentry-go"

	"github.com/nameatlas/nameatlas/internal/conf"
	"github.com/nameatlas/nameatlas/internal/logging"
	"github.com/nameatlas/nameatlas/internal/privacy"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "telemetry.log")
	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "telemetry", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize telemetry file logger at %s: %v. Using fallback.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "telemetry")
		closeLogger = func() error { return nil }
	}
}

// testMode lets in-package tests bypass the settings opt-in check.
var testMode atomic.Bool

// PlatformInfo holds privacy-safe platform information for telemetry.
type PlatformInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	GoVersion    string `json:"go_version"`
}

// collectPlatformInfo gathers privacy-safe platform information for telemetry.
func collectPlatformInfo() PlatformInfo {
	return PlatformInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}
}

// InitSentry initializes the Sentry SDK with privacy-compliant settings.
// It only initializes when telemetry is explicitly enabled by the user.
func InitSentry(settings *conf.Settings) error {
	if settings == nil {
		return fmt.Errorf("telemetry: settings are required")
	}

	if !settings.Sentry.Enabled {
		logger.Info("Sentry telemetry is disabled (opt-in required)")
		return nil
	}

	if settings.Sentry.DSN == "" {
		return fmt.Errorf("telemetry: sentry is enabled but sentry.dsn is not set")
	}

	if settings.Sentry.Debug {
		enableDebugLogging()
	}

	id := resolveSystemID()

	if err := initializeSentrySDK(settings); err != nil {
		return err
	}

	configureSentryScope(settings, id)
	logInitializationSuccess(settings, id)

	return nil
}

// enableDebugLogging enables debug logging for telemetry.
func enableDebugLogging() {
	serviceLevelVar.Set(slog.LevelDebug)
	logger.Info("telemetry debug logging enabled")
}

// resolveSystemID loads or creates the persistent anonymous installation ID.
// Failures fall back to a marker value so telemetry still works; the ID is a
// convenience for correlating events, never a requirement.
func resolveSystemID() string {
	configPaths, err := conf.GetDefaultConfigPaths()
	if err != nil || len(configPaths) == 0 {
		logger.Warn("Cannot resolve config directory for system ID", "error", err)
		return "unknown"
	}

	id, err := LoadOrCreateSystemID(configPaths[0])
	if err != nil {
		logger.Warn("Cannot load or create system ID", "error", err)
		return "unknown"
	}
	return id
}

// initializeSentrySDK initializes the Sentry SDK with privacy-compliant options.
func initializeSentrySDK(settings *conf.Settings) error {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:        settings.Sentry.DSN,
		SampleRate: 1.0,   // Capture all errors by default
		Debug:      false, // Keep SDK debug off; telemetry has its own debug log

		// Privacy-compliant settings
		AttachStacktrace: false, // Don't attach stack traces by default
		Environment:      "production",
		ServerName:       "", // Explicitly clear server name to prevent hostname leakage

		Release: fmt.Sprintf("nameatlas@%s", settings.Version),

		// BeforeSend filters identity and sensitive data out of every event
		BeforeSend: createBeforeSendHook(settings),
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	return nil
}

// createBeforeSendHook creates the BeforeSend hook for privacy filtering.
func createBeforeSendHook(settings *conf.Settings) func(*sentry.Event, *sentry.EventHint) *sentry.Event {
	debug := settings.Sentry.Debug
	return func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
		if debug {
			return applyPrivacyFiltersWithLogging(event)
		}
		return applyPrivacyFilters(event)
	}
}

// applyPrivacyFilters applies privacy filters to a Sentry event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	// Clear user data and server name
	event.User = sentry.User{}
	event.ServerName = ""

	// Remove contexts that describe the host machine
	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	// Remove extra fields except allowed ones
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	// Remove tags that identify the host
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}

// applyPrivacyFiltersWithLogging applies privacy filters and logs what was removed.
func applyPrivacyFiltersWithLogging(event *sentry.Event) *sentry.Event {
	var filtersApplied []string

	logger.Debug("applying privacy filters to event",
		"event_id", event.EventID,
		"has_user_data", !event.User.IsEmpty(),
		"has_server_name", event.ServerName != "",
		"contexts_count", len(event.Contexts),
		"extra_count", len(event.Extra),
		"tags_count", len(event.Tags),
	)

	if !event.User.IsEmpty() {
		filtersApplied = append(filtersApplied, "remove_user_data")
	}
	if event.ServerName != "" {
		filtersApplied = append(filtersApplied, "remove_server_name")
	}

	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		filtersApplied = append(filtersApplied, removePrivacyContexts(event.Contexts)...)
	}

	if extraRemoved := removePrivacyExtraFields(event.Extra); extraRemoved > 0 {
		filtersApplied = append(filtersApplied, fmt.Sprintf("remove_%d_extra_fields", extraRemoved))
	}

	if event.Tags != nil {
		filtersApplied = append(filtersApplied, removePrivacyTags(event.Tags)...)
	}

	logger.Debug("privacy filters applied",
		"event_id", event.EventID,
		"filters_applied", filtersApplied,
		"remaining_contexts", len(event.Contexts),
		"remaining_extra", len(event.Extra),
		"remaining_tags", len(event.Tags),
	)

	return event
}

// removePrivacyContexts removes sensitive contexts and returns what was removed.
func removePrivacyContexts(contexts map[string]sentry.Context) []string {
	var removed []string
	sensitiveContexts := []string{"device", "os", "runtime"}

	for _, key := range sensitiveContexts {
		if _, exists := contexts[key]; exists {
			removed = append(removed, fmt.Sprintf("remove_%s_context", key))
			delete(contexts, key)
		}
	}

	return removed
}

// removePrivacyExtraFields removes sensitive extra fields and returns count.
func removePrivacyExtraFields(extra map[string]any) int {
	removed := 0
	allowedFields := map[string]bool{
		"error_type": true,
		"component":  true,
	}

	for k := range extra {
		if !allowedFields[k] {
			removed++
			delete(extra, k)
		}
	}

	return removed
}

// removePrivacyTags removes sensitive tags and returns what was removed.
func removePrivacyTags(tags map[string]string) []string {
	var removed []string
	sensitiveTags := map[string]string{
		"server_name": "remove_server_name_tag",
		"hostname":    "remove_hostname_tag",
	}

	for tag, filterName := range sensitiveTags {
		if _, exists := tags[tag]; exists {
			removed = append(removed, filterName)
			delete(tags, tag)
		}
	}

	return removed
}

// configureSentryScope configures the global Sentry scope with anonymous
// system information.
func configureSentryScope(settings *conf.Settings, id string) {
	platformInfo := collectPlatformInfo()

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		// System ID tags every event from this installation
		scope.SetTag("system_id", id)

		// Platform tags for easy filtering in Sentry
		scope.SetTag("os", platformInfo.OS)
		scope.SetTag("arch", platformInfo.Architecture)

		scope.SetContext("application", map[string]any{
			"name":      "nameatlas",
			"version":   settings.Version,
			"system_id": id,
		})

		scope.SetContext("platform", map[string]any{
			"os":           platformInfo.OS,
			"architecture": platformInfo.Architecture,
			"num_cpu":      platformInfo.NumCPU,
			"go_version":   platformInfo.GoVersion,
		})
	})
}

// logInitializationSuccess logs the successful initialization of Sentry.
func logInitializationSuccess(settings *conf.Settings, id string) {
	platformInfo := collectPlatformInfo()

	logger.Info("Sentry telemetry initialized",
		"system_id", id,
		"version", settings.Version,
		"debug", settings.Sentry.Debug,
		"platform", platformInfo.OS,
		"arch", platformInfo.Architecture,
	)

	log.Printf("Sentry telemetry initialized successfully (opt-in enabled, System ID: %s)", id)
}

// captureEnabled reports whether events may leave the process.
func captureEnabled() bool {
	if testMode.Load() {
		return true
	}
	settings := conf.GetSettings()
	return settings != nil && settings.Sentry.Enabled
}

// generateErrorTitle creates a meaningful error title for Sentry based on
// the error message and component. Runtime panic messages are parsed into
// human-readable titles so Sentry groups them sensibly. The message must
// already be scrubbed; titles become Sentry tags and issue names.
func generateErrorTitle(scrubbedMsg, component string) string {
	errorType := parseErrorType(scrubbedMsg)

	if component != "" && component != "unknown" {
		return fmt.Sprintf("%s: %s", titleCaseComponent(component), errorType)
	}

	return errorType
}

// parseErrorType extracts a human-readable error type from the error message.
func parseErrorType(errMsg string) string {
	switch {
	case strings.Contains(errMsg, "nil pointer dereference"):
		return "Nil Pointer Dereference"
	case strings.Contains(errMsg, "index out of range"):
		return "Index Out of Range"
	case strings.Contains(errMsg, "slice bounds out of range"):
		return "Slice Bounds Out of Range"
	case strings.Contains(errMsg, "integer divide by zero"):
		return "Integer Divide by Zero"
	case strings.Contains(errMsg, "invalid memory address"):
		return "Invalid Memory Access"
	case strings.Contains(errMsg, "send on closed channel"):
		return "Send on Closed Channel"
	case strings.Contains(errMsg, "close of closed channel"):
		return "Close of Closed Channel"
	case strings.Contains(errMsg, "concurrent map"):
		// "concurrent map read and map write" mentions both; read wins
		if strings.Contains(errMsg, "read") {
			return "Concurrent Map Access"
		}
		if strings.Contains(errMsg, "write") {
			return "Concurrent Map Write"
		}
		return "Concurrent Map Access"
	case strings.Contains(errMsg, "interface conversion"):
		if strings.Contains(errMsg, "is nil") {
			return "Interface Conversion: Nil Value"
		}
		return "Interface Conversion Failed"
	case strings.HasPrefix(errMsg, "panic:"):
		panicMsg := strings.TrimPrefix(errMsg, "panic: ")
		if len(panicMsg) > 50 {
			panicMsg = panicMsg[:50] + "..."
		}
		return fmt.Sprintf("Panic: %s", panicMsg)
	default:
		// Truncate very long messages
		if len(errMsg) > 60 {
			return errMsg[:60] + "..."
		}
		return errMsg
	}
}

// titleCaseComponent converts component names to title case for readability.
// Examples: "httpclient" -> "HTTP Client", "gateway" -> "Gateway".
func titleCaseComponent(component string) string {
	// Expand common abbreviations
	component = strings.ReplaceAll(component, "http", "HTTP ")
	component = strings.ReplaceAll(component, "api", "API ")
	component = strings.ReplaceAll(component, "db", "DB ")

	// Handle snake_case and dotted component names
	component = strings.ReplaceAll(component, "_", " ")
	component = strings.ReplaceAll(component, ".", " ")

	words := strings.Fields(component)

	for i, word := range words {
		if word == "" {
			continue
		}
		// Skip if already all uppercase (abbreviations like HTTP, API)
		if strings.ToUpper(word) == word {
			continue
		}
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}

	return strings.Join(words, " ")
}

// CaptureError captures an error with privacy-compliant context.
func CaptureError(err error, component string) {
	if !captureEnabled() {
		return
	}

	// Create a scrubbed error for privacy
	scrubbedErrorMsg := privacy.ScrubMessage(err.Error())

	logger.Debug("sending error event",
		"event_type", "error",
		"component", component,
		"error_type", fmt.Sprintf("%T", err),
		"scrubbed_message", scrubbedErrorMsg,
	)

	sentry.WithScope(func(scope *sentry.Scope) {
		errorTitle := generateErrorTitle(scrubbedErrorMsg, component)

		scope.SetTag("component", component)
		scope.SetTag("error_title", errorTitle)
		scope.SetContext("error", map[string]any{
			"type":             fmt.Sprintf("%T", err),
			"scrubbed_message": scrubbedErrorMsg,
		})

		// Custom fingerprint for better grouping
		scope.SetFingerprint([]string{errorTitle, component})

		event := sentry.NewEvent()
		event.Level = sentry.LevelError
		event.Message = scrubbedErrorMsg
		event.Exception = []sentry.Exception{{
			Type:  errorTitle, // Human-readable title instead of the Go type
			Value: scrubbedErrorMsg,
		}}

		sentry.CaptureEvent(event)
	})
}

// CaptureMessage captures a message with privacy-compliant context.
func CaptureMessage(message string, level sentry.Level, component string) {
	if !captureEnabled() {
		return
	}

	scrubbedMessage := privacy.ScrubMessage(message)

	logger.Debug("sending message event",
		"event_type", "message",
		"sentry_level", string(level),
		"component", component,
		"scrubbed_message", scrubbedMessage,
	)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetLevel(level)
		sentry.CaptureMessage(scrubbedMessage)
	})
}

// Flush ensures all buffered events are sent to Sentry. Called on shutdown;
// a no-op when telemetry is disabled.
func Flush(timeout time.Duration) {
	if !captureEnabled() {
		return
	}

	sentry.Flush(timeout)
}

// Close flushes pending events and releases the telemetry log file.
func Close() error {
	Flush(2 * time.Second)
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}
