package metrics

import (
	"testing"
)

// TestRecordOperation verifies RecordOperation functionality of TestRecorder.
func TestRecordOperation(t *testing.T) {
	t.Parallel()

	recorder := NewTestRecorder()
	recorder.RecordOperation("behindthename", "success")
	recorder.RecordOperation("behindthename", "success")
	recorder.RecordOperation("behindthename", "error")
	recorder.RecordOperation("wikiname", "success")

	if count := recorder.GetOperationCount("behindthename", "success"); count != 2 {
		t.Errorf("expected 2 successful lookups, got %d", count)
	}
	if count := recorder.GetOperationCount("behindthename", "error"); count != 1 {
		t.Errorf("expected 1 failed lookup, got %d", count)
	}
	if count := recorder.GetOperationCount("wikiname", "success"); count != 1 {
		t.Errorf("expected 1 successful wikiname lookup, got %d", count)
	}
	if count := recorder.GetOperationCount("wikiname", "error"); count != 0 {
		t.Errorf("expected 0 failed wikiname lookups, got %d", count)
	}
}

// TestRecordDuration verifies RecordDuration functionality of TestRecorder.
func TestRecordDuration(t *testing.T) {
	t.Parallel()

	recorder := NewTestRecorder()
	recorder.RecordDuration("behindthename", 0.123)
	recorder.RecordDuration("behindthename", 0.456)
	recorder.RecordDuration("demograph", 0.789)

	btnDurations := recorder.GetDurations("behindthename")
	if len(btnDurations) != 2 {
		t.Fatalf("expected 2 behindthename durations, got %d", len(btnDurations))
	}
	if btnDurations[0] != 0.123 || btnDurations[1] != 0.456 {
		t.Errorf("unexpected behindthename durations: %v", btnDurations)
	}

	demoDurations := recorder.GetDurations("demograph")
	if len(demoDurations) != 1 {
		t.Fatalf("expected 1 demograph duration, got %d", len(demoDurations))
	}
	if demoDurations[0] != 0.789 {
		t.Errorf("expected demograph duration 0.789, got %f", demoDurations[0])
	}

	// Test non-existent operation
	if durations := recorder.GetDurations("non_existent"); durations != nil {
		t.Errorf("expected nil for non-existent operation, got %v", durations)
	}
}

// TestRecordError verifies RecordError functionality of TestRecorder.
func TestRecordError(t *testing.T) {
	t.Parallel()

	recorder := NewTestRecorder()
	recorder.RecordError("behindthename", "network")
	recorder.RecordError("behindthename", "network")
	recorder.RecordError("behindthename", "provider-parse")
	recorder.RecordError("demograph", "rate-limit")

	if count := recorder.GetErrorCount("behindthename", "network"); count != 2 {
		t.Errorf("expected 2 network errors, got %d", count)
	}
	if count := recorder.GetErrorCount("behindthename", "provider-parse"); count != 1 {
		t.Errorf("expected 1 parse error, got %d", count)
	}
	if count := recorder.GetErrorCount("demograph", "rate-limit"); count != 1 {
		t.Errorf("expected 1 rate limit error, got %d", count)
	}
	if count := recorder.GetErrorCount("demograph", "timeout"); count != 0 {
		t.Errorf("expected 0 timeout errors, got %d", count)
	}
}

// TestRecorderReset verifies Reset and HasRecordedMetrics of TestRecorder.
func TestRecorderReset(t *testing.T) {
	t.Parallel()

	recorder := NewTestRecorder()
	if recorder.HasRecordedMetrics() {
		t.Error("fresh recorder should have no metrics")
	}

	recorder.RecordOperation("wikiname", "success")
	recorder.RecordDuration("wikiname", 0.05)
	if !recorder.HasRecordedMetrics() {
		t.Error("recorder should report recorded metrics")
	}

	recorder.Reset()
	if recorder.HasRecordedMetrics() {
		t.Error("recorder should be empty after Reset")
	}
	if count := recorder.GetOperationCount("wikiname", "success"); count != 0 {
		t.Errorf("expected 0 operations after Reset, got %d", count)
	}
}

// TestRecorderThreadSafety verifies thread safety of TestRecorder.
func TestRecorderThreadSafety(t *testing.T) {
	t.Parallel()

	recorder := NewTestRecorder()
	done := make(chan bool)
	numGoroutines := 10
	opsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		go func() {
			for j := 0; j < opsPerGoroutine; j++ {
				recorder.RecordOperation("concurrent", "success")
				recorder.RecordDuration("concurrent", 0.001)
				recorder.RecordError("concurrent", "test")
			}
			done <- true
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	expectedCount := numGoroutines * opsPerGoroutine
	if count := recorder.GetOperationCount("concurrent", "success"); count != expectedCount {
		t.Errorf("expected %d operations after concurrent access, got %d", expectedCount, count)
	}
	if durations := recorder.GetDurations("concurrent"); len(durations) != expectedCount {
		t.Errorf("expected %d durations after concurrent access, got %d", expectedCount, len(durations))
	}
	if count := recorder.GetErrorCount("concurrent", "test"); count != expectedCount {
		t.Errorf("expected %d errors after concurrent access, got %d", expectedCount, count)
	}
}

// TestNoOpRecorder verifies that the NoOpRecorder correctly implements the Recorder interface.
func TestNoOpRecorder(t *testing.T) {
	t.Parallel()

	recorder := NewNoOpRecorder()

	// These operations should not panic and should do nothing
	recorder.RecordOperation("test", "success")
	recorder.RecordDuration("test", 0.123)
	recorder.RecordError("test", "error")
}

// TestRecorderWithRealMetrics verifies that real metric types implement the Recorder interface.
func TestRecorderWithRealMetrics(t *testing.T) {
	t.Parallel()

	t.Run("ProviderMetrics", func(t *testing.T) {
		t.Parallel()
		var _ Recorder = (*ProviderMetrics)(nil)
	})

	t.Run("TestRecorder", func(t *testing.T) {
		t.Parallel()
		var _ Recorder = (*TestRecorder)(nil)
	})

	t.Run("NoOpRecorder", func(t *testing.T) {
		t.Parallel()
		var _ Recorder = (*NoOpRecorder)(nil)
	})
}

// BenchmarkTestRecorder benchmarks the TestRecorder implementation.
func BenchmarkTestRecorder(b *testing.B) {
	recorder := NewTestRecorder()

	b.Run("RecordOperation", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			recorder.RecordOperation("bench", "success")
		}
	})

	b.Run("RecordDuration", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			recorder.RecordDuration("bench", 0.001)
		}
	})
}
