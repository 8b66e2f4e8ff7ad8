// Package metrics holds the Prometheus counters the tools export through
// the node-exporter textfile collector.
//
// All methods accept a nil *Metrics and do nothing, so library code can
// take an optional Metrics without nil checks at every call site.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "celltracer"

// Metrics is a private registry and the collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	generated       prometheus.Counter
	shapeOps        *prometheus.CounterVec
	reducerFailures prometheus.Counter
	outOfBounds     prometheus.Counter
	activeEntities  prometheus.Gauge
	ledgerEvents    *prometheus.CounterVec
	droppedEvents   prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		generated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_generated_total",
			Help:      "Entities built from label pixmaps or polygon lists.",
		}),
		shapeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shape_operations_total",
			Help:      "Shape algebra operations applied, by kind.",
		}, []string{"op"}),
		reducerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reducer_failures_total",
			Help:      "Feature reductions that recorded NaN.",
		}),
		outOfBounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "out_of_bounds_entities_total",
			Help:      "Entities whose slice exceeded the channel bounds.",
		}),
		activeEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_entities",
			Help:      "Entities in the ledger that are not historic.",
		}),
		ledgerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_events_total",
			Help:      "Ledger change events, by kind.",
		}, []string{"kind"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_events_dropped_total",
			Help:      "Ledger events not delivered because the consumer was full.",
		}),
	}
	m.Registry.MustRegister(
		m.generated, m.shapeOps, m.reducerFailures, m.outOfBounds,
		m.activeEntities, m.ledgerEvents, m.droppedEvents,
	)
	return m
}

func (m *Metrics) AddGenerated(n int) {
	if m == nil {
		return
	}
	m.generated.Add(float64(n))
}

func (m *Metrics) IncShapeOp(op string) {
	if m == nil {
		return
	}
	m.shapeOps.WithLabelValues(op).Inc()
}

func (m *Metrics) IncReducerFailure() {
	if m == nil {
		return
	}
	m.reducerFailures.Inc()
}

func (m *Metrics) IncOutOfBounds() {
	if m == nil {
		return
	}
	m.outOfBounds.Inc()
}

func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.activeEntities.Set(float64(n))
}

func (m *Metrics) IncEvent(kind string) {
	if m == nil {
		return
	}
	m.ledgerEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}

// WriteTextfile writes the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
