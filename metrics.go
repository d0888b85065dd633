package wrtc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "wrtc"

// Metrics holds the bridge's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	Acquires        *prometheus.CounterVec
	Releases        *prometheus.CounterVec
	Reconciliations *prometheus.CounterVec
	StaleRemoved    *prometheus.CounterVec
	TasksPosted     prometheus.Counter
	TasksRun        prometheus.Counter
	RegistryEntries *prometheus.GaugeVec
	ConnectionsOpen prometheus.Gauge
	ContextRefs     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Acquires: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "acquires_total",
			Help:      "References taken on bridged objects, by kind.",
		}, []string{"kind"}),
		Releases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "releases_total",
			Help:      "References released on bridged objects, by kind.",
		}, []string{"kind"}),
		Reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconciliations_total",
			Help:      "Reconciliation passes, by negotiation mode.",
		}, []string{"mode"}),
		StaleRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stale_removed_total",
			Help:      "Proxies removed because the engine no longer reports them.",
		}, []string{"kind"}),
		TasksPosted: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tasks_posted_total",
			Help:      "Tasks posted to dispatch queues.",
		}),
		TasksRun: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tasks_run_total",
			Help:      "Tasks executed by the loop.",
		}),
		RegistryEntries: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "registry_entries",
			Help:      "Live proxies held by connection registries, by kind.",
		}, []string{"kind"}),
		ConnectionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_open",
			Help:      "Connections not yet closed.",
		}),
		ContextRefs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "context_refs",
			Help:      "Outstanding engine context references.",
		}),
	}
}

func (m *Metrics) acquired(kind string) {
	if m == nil {
		return
	}
	m.Acquires.WithLabelValues(kind).Inc()
	m.RegistryEntries.WithLabelValues(kind).Inc()
}

func (m *Metrics) released(kind string) {
	if m == nil {
		return
	}
	m.Releases.WithLabelValues(kind).Inc()
	m.RegistryEntries.WithLabelValues(kind).Dec()
}

func (m *Metrics) reconciled(mode SDPSemantics) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) staleRemoved(kind string) {
	if m == nil {
		return
	}
	m.StaleRemoved.WithLabelValues(kind).Inc()
}

func (m *Metrics) taskPosted() {
	if m == nil {
		return
	}
	m.TasksPosted.Inc()
}

func (m *Metrics) taskRun() {
	if m == nil {
		return
	}
	m.TasksRun.Inc()
}

func (m *Metrics) connectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsOpen.Inc()
}

func (m *Metrics) connectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsOpen.Dec()
}

func (m *Metrics) contextRefs(n int) {
	if m == nil {
		return
	}
	m.ContextRefs.Set(float64(n))
}
