package metrics_test

import (
	"fmt"
	"time"

	"github.com/nameatlas/nameatlas/internal/observability/metrics"
)

// lookupClient demonstrates how a component can depend on the Recorder
// interface instead of a concrete metric type for improved testability.
type lookupClient struct {
	metrics metrics.Recorder
}

// newLookupClient creates a client with a metrics recorder.
// In production, pass a real implementation such as ProviderMetrics.
// In tests, pass a TestRecorder or NoOpRecorder.
func newLookupClient(recorder metrics.Recorder) *lookupClient {
	return &lookupClient{metrics: recorder}
}

// fetch records the outcome and duration of a single provider call.
func (c *lookupClient) fetch(name string) error {
	start := time.Now()

	if name == "" {
		c.metrics.RecordError("behindthename", "validation")
		c.metrics.RecordOperation("behindthename", "error")
		return fmt.Errorf("empty name")
	}

	c.metrics.RecordOperation("behindthename", "success")
	c.metrics.RecordDuration("behindthename", time.Since(start).Seconds())
	return nil
}

// Example_componentWithRecorder shows how to use the Recorder interface in practice.
func Example_componentWithRecorder() {
	// In production: use a real metrics implementation.
	// In tests: use a test recorder.
	testRecorder := metrics.NewTestRecorder()
	client := newLookupClient(testRecorder)

	_ = client.fetch("ana")

	// Verify metrics were recorded (in tests)
	fmt.Printf("Operations recorded: %d\n", testRecorder.GetOperationCount("behindthename", "success"))
	durations := testRecorder.GetDurations("behindthename")
	fmt.Printf("Durations recorded: %d\n", len(durations))

	// Output:
	// Operations recorded: 1
	// Durations recorded: 1
}
