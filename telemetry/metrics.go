package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pthm-cable/rdboundary/boundary"
)

// Metrics exposes boundary events and molecule counts as Prometheus collectors
// on a private registry. It implements boundary.Observer.
type Metrics struct {
	registry    *prometheus.Registry
	events      *prometheus.CounterVec
	molecules   *prometheus.GaugeVec
	compartment *prometheus.GaugeVec
	steps       prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rdboundary",
			Name:      "boundary_events_total",
			Help:      "Molecules affected by boundaries, by boundary kind, species and action.",
		}, []string{"kind", "species", "action"}),
		molecules: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rdboundary",
			Name:      "molecules",
			Help:      "Particle molecules per species.",
		}, []string{"species"}),
		compartment: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rdboundary",
			Name:      "compartment_molecules",
			Help:      "Molecules held in the compartment layer per species.",
		}, []string{"species"}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdboundary",
			Name:      "steps_total",
			Help:      "Completed simulation steps.",
		}),
	}
	m.registry.MustRegister(m.events, m.molecules, m.compartment, m.steps)
	return m
}

// BoundaryEvent implements boundary.Observer.
func (m *Metrics) BoundaryEvent(kind boundary.Kind, species string, action boundary.Action, n int) {
	m.events.WithLabelValues(kind.String(), species, string(action)).Add(float64(n))
}

// ObserveStep records a completed step.
func (m *Metrics) ObserveStep() {
	m.steps.Inc()
}

// SetCounts records current molecule counts for species.
func (m *Metrics) SetCounts(species string, molecules, compartment int) {
	m.molecules.WithLabelValues(species).Set(float64(molecules))
	m.compartment.WithLabelValues(species).Set(float64(compartment))
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Tee fans boundary events out to several observers. Nil entries are skipped.
type Tee []boundary.Observer

// BoundaryEvent implements boundary.Observer.
func (t Tee) BoundaryEvent(kind boundary.Kind, species string, action boundary.Action, n int) {
	for _, o := range t {
		if o != nil {
			o.BoundaryEvent(kind, species, action, n)
		}
	}
}
