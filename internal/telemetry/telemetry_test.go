package telemetry

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nameatlas/nameatlas/internal/conf"
	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/privacy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
	)
}

// mockTransport implements sentry.Transport and records every event it is
// handed, so tests can inspect exactly what would leave the process.
type mockTransport struct {
	mu     sync.RWMutex
	events []*sentry.Event
}

func newMockTransport() *mockTransport {
	return &mockTransport{events: make([]*sentry.Event, 0)}
}

//nolint:gocritic // hugeParam: interface requirement, cannot change signature
func (t *mockTransport) Configure(_ sentry.ClientOptions) {}

func (t *mockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *mockTransport) Flush(_ time.Duration) bool { return true }

func (t *mockTransport) FlushWithContext(_ context.Context) bool { return true }

func (t *mockTransport) Close() {}

func (t *mockTransport) Events() []*sentry.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*sentry.Event, len(t.events))
	copy(out, t.events)
	return out
}

// initTestSentry binds a client with a recording transport to the global hub
// and enables test mode so captures bypass the settings opt-in check.
func initTestSentry(t *testing.T) *mockTransport {
	t.Helper()

	transport := newMockTransport()
	settings := &conf.Settings{}
	settings.Version = "test"

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              "https://public@example.com/1",
		Transport:        transport,
		AttachStacktrace: false,
		ServerName:       "",
		Release:          "nameatlas@test",
		BeforeSend:       createBeforeSendHook(settings),
	})
	require.NoError(t, err)

	client := sentry.CurrentHub().Client()
	t.Cleanup(func() {
		if client != nil {
			client.Close()
		}
	})

	testMode.Store(true)
	t.Cleanup(func() { testMode.Store(false) })

	return transport
}

func TestInitSentryNilSettings(t *testing.T) {
	err := InitSentry(nil)
	require.Error(t, err)
}

func TestInitSentryDisabled(t *testing.T) {
	settings := &conf.Settings{}
	settings.Sentry.Enabled = false

	require.NoError(t, InitSentry(settings))
}

func TestInitSentryRequiresDSN(t *testing.T) {
	settings := &conf.Settings{}
	settings.Sentry.Enabled = true
	settings.Sentry.DSN = ""

	err := InitSentry(settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sentry.dsn")
}

func TestCaptureErrorScrubsAndTags(t *testing.T) {
	transport := initTestSentry(t)

	err := fmt.Errorf(`Get "https://www.behindthename.com/api/lookup.json?name=anna&key=secret123": connection refused`)
	CaptureError(err, "gateway")

	events := transport.Events()
	require.Len(t, events, 1)
	event := events[0]

	// Name part and API key must not survive scrubbing
	assert.NotContains(t, event.Message, "anna")
	assert.NotContains(t, event.Message, "secret123")
	assert.Contains(t, event.Message, "url-")
	assert.Contains(t, event.Message, "connection refused")

	assert.Equal(t, "gateway", event.Tags["component"])
	require.Len(t, event.Exception, 1)
	assert.NotContains(t, event.Exception[0].Type, "anna")
	assert.Equal(t, event.Message, event.Exception[0].Value)

	// BeforeSend cleared host identity
	assert.Empty(t, event.ServerName)
	assert.True(t, event.User.IsEmpty())
	assert.NotContains(t, event.Contexts, "device")
	assert.NotContains(t, event.Contexts, "os")
	assert.NotContains(t, event.Contexts, "runtime")
}

func TestCaptureMessageScrubsAndSetsLevel(t *testing.T) {
	transport := initTestSentry(t)

	CaptureMessage("rejected lookup for part=Zoë", sentry.LevelWarning, "aggregator")

	events := transport.Events()
	require.Len(t, events, 1)
	event := events[0]

	assert.NotContains(t, event.Message, "Zoë")
	assert.Contains(t, event.Message, privacy.RedactedMarker)
	assert.Equal(t, sentry.LevelWarning, event.Level)
	assert.Equal(t, "aggregator", event.Tags["component"])
}

func TestCaptureDisabledSendsNothing(t *testing.T) {
	transport := initTestSentry(t)
	testMode.Store(false)

	// Without test mode and without enabled settings every capture is a no-op
	CaptureError(stderrors.New("should not be sent"), "gateway")
	CaptureMessage("should not be sent either", sentry.LevelInfo, "gateway")
	Flush(time.Second)

	assert.Empty(t, transport.Events())
}

func TestApplyPrivacyFilters(t *testing.T) {
	event := sentry.NewEvent()
	event.User = sentry.User{ID: "someone", IPAddress: "203.0.113.7"}
	event.ServerName = "workstation.lan"
	event.Contexts = map[string]sentry.Context{
		"device":      {"name": "host-device"},
		"os":          {"name": "linux"},
		"runtime":     {"name": "go"},
		"application": {"name": "nameatlas"},
	}
	event.Extra = map[string]any{
		"error_type": "timeout",
		"component":  "gateway",
		"raw_query":  "name=anna",
	}
	event.Tags = map[string]string{
		"server_name": "workstation.lan",
		"hostname":    "workstation",
		"system_id":   "A1B2-C3D4-E5F6",
	}

	filtered := applyPrivacyFilters(event)

	assert.True(t, filtered.User.IsEmpty())
	assert.Empty(t, filtered.ServerName)

	assert.NotContains(t, filtered.Contexts, "device")
	assert.NotContains(t, filtered.Contexts, "os")
	assert.NotContains(t, filtered.Contexts, "runtime")
	assert.Contains(t, filtered.Contexts, "application")

	assert.NotContains(t, filtered.Extra, "raw_query")
	assert.Contains(t, filtered.Extra, "error_type")
	assert.Contains(t, filtered.Extra, "component")

	assert.NotContains(t, filtered.Tags, "server_name")
	assert.NotContains(t, filtered.Tags, "hostname")
	assert.Contains(t, filtered.Tags, "system_id")
}

func TestApplyPrivacyFiltersWithLogging(t *testing.T) {
	event := sentry.NewEvent()
	event.User = sentry.User{ID: "someone"}
	event.ServerName = "workstation.lan"
	event.Tags = map[string]string{"hostname": "workstation"}

	filtered := applyPrivacyFiltersWithLogging(event)

	// The debug variant must filter exactly like the quiet one
	assert.True(t, filtered.User.IsEmpty())
	assert.Empty(t, filtered.ServerName)
	assert.NotContains(t, filtered.Tags, "hostname")
}

func TestParseErrorType(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		expected string
	}{
		{
			name:     "nil pointer dereference",
			errMsg:   "runtime error: invalid memory address or nil pointer dereference",
			expected: "Nil Pointer Dereference",
		},
		{
			name:     "index out of range",
			errMsg:   "runtime error: index out of range [5] with length 3",
			expected: "Index Out of Range",
		},
		{
			name:     "integer divide by zero",
			errMsg:   "runtime error: integer divide by zero",
			expected: "Integer Divide by Zero",
		},
		{
			name:     "send on closed channel",
			errMsg:   "send on closed channel",
			expected: "Send on Closed Channel",
		},
		{
			name:     "concurrent map read and write",
			errMsg:   "fatal error: concurrent map read and map write",
			expected: "Concurrent Map Access",
		},
		{
			name:     "concurrent map write",
			errMsg:   "fatal error: concurrent map writes",
			expected: "Concurrent Map Write",
		},
		{
			name:     "nil interface conversion",
			errMsg:   "interface conversion: interface {} is nil, not string",
			expected: "Interface Conversion: Nil Value",
		},
		{
			name:     "panic with message",
			errMsg:   "panic: gateway closed during lookup",
			expected: "Panic: gateway closed during lookup",
		},
		{
			name:     "short message passes through",
			errMsg:   "lookup timed out",
			expected: "lookup timed out",
		},
		{
			name:     "long message is truncated",
			errMsg:   strings.Repeat("x", 80),
			expected: strings.Repeat("x", 60) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseErrorType(tt.errMsg))
		})
	}
}

func TestTitleCaseComponent(t *testing.T) {
	tests := []struct {
		component string
		expected  string
	}{
		{"gateway", "Gateway"},
		{"aggregator", "Aggregator"},
		{"httpclient", "HTTP Client"},
		{"api", "API"},
		{"provider.wikiname", "Provider Wikiname"},
		{"name_part", "Name Part"},
	}

	for _, tt := range tests {
		t.Run(tt.component, func(t *testing.T) {
			assert.Equal(t, tt.expected, titleCaseComponent(tt.component))
		})
	}
}

func TestGenerateErrorTitle(t *testing.T) {
	title := generateErrorTitle("lookup timed out", "gateway")
	assert.Equal(t, "Gateway: lookup timed out", title)

	// Unknown component falls back to the bare error type
	title = generateErrorTitle("lookup timed out", "unknown")
	assert.Equal(t, "lookup timed out", title)

	title = generateErrorTitle("lookup timed out", "")
	assert.Equal(t, "lookup timed out", title)
}

func TestLoadOrCreateSystemID(t *testing.T) {
	dir := t.TempDir()

	id, err := LoadOrCreateSystemID(dir)
	require.NoError(t, err)
	assert.True(t, privacy.IsValidSystemID(id), "generated ID %q should validate", id)

	// A second load returns the persisted ID
	again, err := LoadOrCreateSystemID(dir)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	// A corrupted ID file is replaced with a fresh valid ID
	require.NoError(t, os.WriteFile(filepath.Join(dir, systemIDFile), []byte("garbage"), 0o644))
	fresh, err := LoadOrCreateSystemID(dir)
	require.NoError(t, err)
	assert.NotEqual(t, "garbage", fresh)
	assert.True(t, privacy.IsValidSystemID(fresh))
}

func TestInitializeErrorIntegration(t *testing.T) {
	t.Cleanup(func() {
		errors.SetTelemetryReporter(nil)
		errors.SetPrivacyScrubber(nil)
	})

	// Without loaded settings the reporter attaches disabled
	InitializeErrorIntegration()

	reporter := errors.GetTelemetryReporter()
	require.NotNil(t, reporter)
	assert.False(t, reporter.IsEnabled())
}
