// Package metrics exposes Prometheus instrumentation for the gateway.
// All collectors live on a private registry so tests can create as many
// instances as they need without registration conflicts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linkstation/modemgw/internal/events"
)

// Metrics holds all gateway collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Transport
	ExchangesTotal   *prometheus.CounterVec
	ExchangeDuration prometheus.Histogram
	ReconnectsTotal  prometheus.Counter

	// Telemetry poller
	PollCyclesTotal   *prometheus.CounterVec
	PollQueryErrors   prometheus.Counter
	SnapshotTimestamp prometheus.Gauge

	// Control
	ActionsTotal *prometheus.CounterVec

	// NVR proxy
	ProxyRequestsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry, including the
// standard Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modemgw",
				Subsystem: "transport",
				Name:      "exchanges_total",
				Help:      "AT command exchanges by outcome",
			},
			[]string{"outcome"},
		),
		ExchangeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "modemgw",
				Subsystem: "transport",
				Name:      "exchange_duration_seconds",
				Help:      "Wall time of a single AT exchange, lock wait included",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		ReconnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "modemgw",
				Subsystem: "transport",
				Name:      "reconnects_total",
				Help:      "Serial channel reconnect attempts",
			},
		),

		PollCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modemgw",
				Subsystem: "telemetry",
				Name:      "poll_cycles_total",
				Help:      "Completed poll cycles by result",
			},
			[]string{"result"},
		),
		PollQueryErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "modemgw",
				Subsystem: "telemetry",
				Name:      "poll_query_errors_total",
				Help:      "Individual query failures inside poll cycles",
			},
		),
		SnapshotTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "modemgw",
				Subsystem: "telemetry",
				Name:      "snapshot_timestamp_seconds",
				Help:      "Capture time of the current snapshot as a Unix timestamp",
			},
		),

		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modemgw",
				Subsystem: "control",
				Name:      "actions_total",
				Help:      "Control action requests by action and result",
			},
			[]string{"action", "result"},
		),

		ProxyRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modemgw",
				Subsystem: "nvr",
				Name:      "proxy_requests_total",
				Help:      "Proxied NVR requests by path class and status code",
			},
			[]string{"class", "code"},
		),
	}

	m.registry.MustRegister(
		m.ExchangesTotal,
		m.ExchangeDuration,
		m.ReconnectsTotal,
		m.PollCyclesTotal,
		m.PollQueryErrors,
		m.SnapshotTimestamp,
		m.ActionsTotal,
		m.ProxyRequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Bind subscribes the event-driven collectors to the bus. Returns an
// unsubscribe function releasing every subscription.
func (m *Metrics) Bind(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.TelemetryUpdatedEvent) {
			m.PollCyclesTotal.WithLabelValues("ok").Inc()
		}),
		bus.Subscribe(func(e events.PollErrorEvent) {
			m.PollQueryErrors.Inc()
		}),
		bus.Subscribe(func(e events.TransportStateChangedEvent) {
			if e.State == "reconnecting" {
				m.ReconnectsTotal.Inc()
			}
		}),
		bus.Subscribe(func(e events.ActionExecutedEvent) {
			result := "failed"
			switch {
			case e.BlockedReason != "":
				result = "blocked"
			case e.Executed:
				result = "executed"
			case e.Error == "":
				result = "preview"
			}
			m.ActionsTotal.WithLabelValues(e.Action, result).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
