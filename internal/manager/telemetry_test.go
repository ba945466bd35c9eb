package manager

import (
	"math"
	"testing"
	"time"
)

func TestClampFloat(t *testing.T) {
	if clampFloat(math.NaN(), 0, 100) != 0 {
		t.Fatalf("NaN should clamp to min")
	}
	if clampFloat(150, 0, 100) != 100 || clampFloat(-5, 0, 100) != 0 || clampFloat(42, 0, 100) != 42 {
		t.Fatalf("unexpected clamping")
	}
}

func TestComputeHealth(t *testing.T) {
	if got := computeHealth(0, 0); got != 100 {
		t.Fatalf("expected idle host to be fully healthy, got %v", got)
	}
	if got := computeHealth(30, 80); got != 20 {
		t.Fatalf("expected health from the busiest resource, got %v", got)
	}
}

func TestHostSampleNeedsTwoReadings(t *testing.T) {
	m := &Manager{}
	if got := m.updateHostSample(1000, 800); got != 0 {
		t.Fatalf("first sample should report 0, got %v", got)
	}
	if got := m.updateHostSample(1100, 850); got != 50 {
		t.Fatalf("expected 50%% busy, got %v", got)
	}
}

func TestProcessSampleIsRateOverWallTime(t *testing.T) {
	m := &Manager{}
	base := time.Unix(1000, 0)
	if got := m.updateProcessSample(1, base); got != 0 {
		t.Fatalf("first sample should report 0, got %v", got)
	}
	got := m.updateProcessSample(1, base.Add(time.Second))
	if got != 0 {
		t.Fatalf("no CPU used should report 0, got %v", got)
	}
	if got := m.updateProcessSample(1.5, base.Add(2*time.Second)); got <= 0 || got > 100 {
		t.Fatalf("expected a positive bounded percentage, got %v", got)
	}
}

func TestTelemetryMonitorSamples(t *testing.T) {
	m := &Manager{}
	if !m.ProcessTelemetry().Timestamp.IsZero() {
		t.Fatalf("expected no sample before start")
	}
	m.StartTelemetryMonitor(time.Hour)
	defer m.StopTelemetryMonitor()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := m.ProcessTelemetry(); !snap.Timestamp.IsZero() {
			if snap.Goroutines <= 0 {
				t.Fatalf("expected goroutine count, got %+v", snap)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("telemetry never sampled")
}
