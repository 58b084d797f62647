// Package metrics defines the Prometheus collectors of the trading engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Scans           prometheus.Counter
	ScanResults     prometheus.Histogram
	Transitions     *prometheus.CounterVec
	Reconciliations prometheus.Counter
	PresenceFlips   *prometheus.CounterVec
	PushClients     prometheus.Gauge
	PushEvents      *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
// together with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "menjava",
			Name:      "match_scans_total",
			Help:      "Number of candidate scans run.",
		}),
		ScanResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "menjava",
			Name:      "match_scan_results",
			Help:      "Counterparties found per scan.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "menjava",
			Name:      "match_transitions_total",
			Help:      "Match state transitions by target status and outcome.",
		}, []string{"status", "outcome"}),
		Reconciliations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "menjava",
			Name:      "reconciliations_total",
			Help:      "Completed matches whose quantities were applied.",
		}),
		PresenceFlips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "menjava",
			Name:      "presence_flips_total",
			Help:      "Changes of the participant active flag.",
		}, []string{"active"}),
		PushClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "menjava",
			Name:      "push_clients",
			Help:      "Connected websocket clients.",
		}),
		PushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "menjava",
			Name:      "push_events_total",
			Help:      "Events delivered to push clients by type.",
		}, []string{"type"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Scans, m.ScanResults, m.Transitions, m.Reconciliations,
		m.PresenceFlips, m.PushClients, m.PushEvents,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Scan records one scan and its result count.
func (m *Metrics) Scan(results int) {
	if m == nil {
		return
	}
	m.Scans.Inc()
	m.ScanResults.Observe(float64(results))
}

// Transition records a match transition attempt.
func (m *Metrics) Transition(status string, applied bool) {
	if m == nil {
		return
	}
	outcome := "applied"
	if !applied {
		outcome = "conflict"
	}
	m.Transitions.WithLabelValues(status, outcome).Inc()
}

// Reconciled records a reconciliation.
func (m *Metrics) Reconciled() {
	if m == nil {
		return
	}
	m.Reconciliations.Inc()
}

// PresenceFlip records a change of the active flag.
func (m *Metrics) PresenceFlip(active bool) {
	if m == nil {
		return
	}
	label := "false"
	if active {
		label = "true"
	}
	m.PresenceFlips.WithLabelValues(label).Inc()
}

// ClientConnected adjusts the push client gauge by delta.
func (m *Metrics) ClientConnected(delta int) {
	if m == nil {
		return
	}
	m.PushClients.Add(float64(delta))
}

// Pushed records one delivered push event.
func (m *Metrics) Pushed(eventType string) {
	if m == nil {
		return
	}
	m.PushEvents.WithLabelValues(eventType).Inc()
}
