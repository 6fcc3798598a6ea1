// Package metrics provides Prometheus instrumentation for the realtime chat
// client: connection state, reconnects and message reconciliation outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message outcomes recorded by ObserveMessage
const (
	MessageReceived   = "received"   // appended from the live stream
	MessageDuplicate  = "duplicate"  // dropped, id already in the transcript
	MessageReconciled = "reconciled" // replaced its optimistic entry
	MessageSent       = "sent"
	MessageFailed     = "failed" // pending entry expired without an echo
)

// Metrics holds the client collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Connected is 1 while the socket is connected.
	Connected prometheus.Gauge

	// Reconnects counts reconnect attempts.
	Reconnects prometheus.Counter

	// ConnectErrors counts failed connection attempts.
	ConnectErrors prometheus.Counter

	// Messages counts stream messages, labeled by outcome.
	Messages *prometheus.CounterVec

	// EchoLatency records the time from optimistic send to server echo.
	EchoLatency prometheus.Histogram
}

// New creates the collectors and registers them
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nexo_chat_socket_connected",
			Help: "Whether the realtime socket is connected",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexo_chat_socket_reconnects_total",
			Help: "Total number of reconnect attempts",
		}),
		ConnectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexo_chat_socket_connect_errors_total",
			Help: "Total number of failed connection attempts",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexo_chat_messages_total",
			Help: "Total number of stream messages processed",
		}, []string{"type"}),
		EchoLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexo_chat_echo_latency_seconds",
			Help:    "Time from optimistic send to server echo in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}

	m.registry.MustRegister(
		m.Connected,
		m.Reconnects,
		m.ConnectErrors,
		m.Messages,
		m.EchoLatency,
	)
	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetConnected records the socket state
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

// IncReconnect records one reconnect attempt
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// IncConnectError records one failed connection attempt
func (m *Metrics) IncConnectError() {
	if m == nil {
		return
	}
	m.ConnectErrors.Inc()
}

// ObserveMessage records one message outcome
func (m *Metrics) ObserveMessage(kind string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(kind).Inc()
}

// ObserveEcho records the latency of a reconciled send
func (m *Metrics) ObserveEcho(d time.Duration) {
	if m == nil {
		return
	}
	m.EchoLatency.Observe(d.Seconds())
}
