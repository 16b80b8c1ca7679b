package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/critpath/internal/ir"
)

// Metrics holds the engine's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	eng := engine.New(engine.WithMetrics(engine.NewMetrics(registry)))
type Metrics struct {
	events         *prometheus.CounterVec
	eventErrors    *prometheus.CounterVec
	nodes          prometheus.Gauge
	pendingEdges   prometheus.Gauge
	queueDepth     prometheus.Gauge
	relaxations    prometheus.Gauge
	computeSeconds *prometheus.HistogramVec
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "critpath_events_total",
			Help: "Total number of events processed, by event type",
		}, []string{"type"}),
		eventErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "critpath_event_errors_total",
			Help: "Total number of rejected or suspicious events, by error code",
		}, []string{"code"}),
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "critpath_graph_nodes",
			Help: "Current number of recorded graph nodes",
		}),
		pendingEdges: f.NewGauge(prometheus.GaugeOpts{
			Name: "critpath_graph_pending_edges",
			Help: "Current number of edges waiting for an unknown endpoint",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "critpath_queue_depth",
			Help: "Number of events waiting in the engine queue",
		}),
		relaxations: f.NewGauge(prometheus.GaugeOpts{
			Name: "critpath_relaxations",
			Help: "Number of edge relaxations performed by the incremental backend",
		}),
		computeSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "critpath_compute_duration_seconds",
			Help:    "Duration of critical path computation and improvement estimation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"backend"}),
	}
}

func (m *Metrics) observeEvent(t ir.EventType) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) observeError(code RuntimeErrorCode) {
	if m == nil {
		return
	}
	m.eventErrors.WithLabelValues(string(code)).Inc()
}

func (m *Metrics) observeGraph(nodes, pending, queued, relaxations int) {
	if m == nil {
		return
	}
	m.nodes.Set(float64(nodes))
	m.pendingEdges.Set(float64(pending))
	m.queueDepth.Set(float64(queued))
	m.relaxations.Set(float64(relaxations))
}

func (m *Metrics) observeCompute(backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.computeSeconds.WithLabelValues(backend).Observe(d.Seconds())
}
