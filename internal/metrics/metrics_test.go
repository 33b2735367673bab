package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Resolved("listing", ResultFound)
	m.Resolved("listing", ResultFound)
	m.Resolved("user", ResultMissing)
	m.Evicted()
	m.Built("batch", 2)
	m.Published("ok")
	m.PutAttempted()

	if got := testutil.ToFloat64(m.Resolves.WithLabelValues("listing", ResultFound)); got != 2 {
		t.Errorf("listing found = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Evictions); got != 1 {
		t.Errorf("evictions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OrdersBuilt.WithLabelValues("batch")); got != 2 {
		t.Errorf("batch orders = %v, want 2", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Resolved("listing", ResultFound)
	m.Evicted()
	m.Built("single", 1)
	m.Published("ok")
	m.PutAttempted()
}

func TestRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Error("registering twice on one registry should panic")
		}
	}()
	New(reg)
}
