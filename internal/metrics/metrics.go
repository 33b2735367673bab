// Package metrics defines the Prometheus collectors of the server.
//
// All methods accept a nil *Metrics and do nothing, so components can be
// built without instrumentation in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolve results.
const (
	ResultFound     = "found"
	ResultMissing   = "missing"
	ResultMismatch  = "mismatch"
	ResultMalformed = "malformed"
	ResultError     = "error"
)

// Metrics holds the server collectors.
type Metrics struct {
	Resolves       *prometheus.CounterVec
	Evictions      prometheus.Counter
	OrdersBuilt    *prometheus.CounterVec
	OrderPublishes *prometheus.CounterVec
	PutAttempts    prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neroshop",
			Name:      "resolve_total",
			Help:      "DHT entity resolutions by content type and result.",
		}, []string{"content", "result"}),
		Evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "neroshop",
			Name:      "index_evictions_total",
			Help:      "Local index keys removed because the DHT no longer holds them.",
		}),
		OrdersBuilt: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neroshop",
			Name:      "orders_built_total",
			Help:      "Orders constructed, by build mode.",
		}, []string{"mode"}),
		OrderPublishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neroshop",
			Name:      "order_publish_total",
			Help:      "Order publications by result.",
		}, []string{"result"}),
		PutAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "neroshop",
			Name:      "dht_put_attempts_total",
			Help:      "DHT put attempts including retries.",
		}),
	}
}

// Resolved counts one resolution.
func (m *Metrics) Resolved(content, result string) {
	if m == nil {
		return
	}
	m.Resolves.WithLabelValues(content, result).Inc()
}

// Evicted counts one evicted key.
func (m *Metrics) Evicted() {
	if m == nil {
		return
	}
	m.Evictions.Inc()
}

// Built counts n orders built in mode ("single" or "batch").
func (m *Metrics) Built(mode string, n int) {
	if m == nil {
		return
	}
	m.OrdersBuilt.WithLabelValues(mode).Add(float64(n))
}

// Published counts one order publication outcome ("ok" or "failed").
func (m *Metrics) Published(result string) {
	if m == nil {
		return
	}
	m.OrderPublishes.WithLabelValues(result).Inc()
}

// PutAttempted counts one DHT put attempt.
func (m *Metrics) PutAttempted() {
	if m == nil {
		return
	}
	m.PutAttempts.Inc()
}
