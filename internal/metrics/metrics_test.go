package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Altitude.Set(1234)
	m.Steps.WithLabelValues("awaiting_samples").Inc()
	m.StepLateness.Observe(0.001)

	if got := testutil.ToFloat64(m.Altitude); got != 1234 {
		t.Fatalf("altitude=%v want 1234", got)
	}
	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("GatherAndCount() error: %v", err)
	}
	if n != 10 {
		t.Fatalf("metrics=%d want 10", n)
	}
}

func TestNew_NilRegistererDoesNotPanic(t *testing.T) {
	m := New(nil)
	m.DeviceErrors.Inc()
	if got := testutil.ToFloat64(m.DeviceErrors); got != 1 {
		t.Fatalf("device errors=%v want 1", got)
	}
}
