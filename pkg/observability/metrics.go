package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/espalier"
)

// Metrics holds the Prometheus collectors for one machine.
type Metrics[S, T comparable] struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. It panics
// if a collector with the same name is already registered.
func NewMetrics[S, T comparable](reg prometheus.Registerer) *Metrics[S, T] {
	m := &Metrics[S, T]{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "espalier_transitions_total",
				Help: "Total number of completed transitions.",
			},
			[]string{"source", "destination", "trigger"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "espalier_rejections_total",
				Help: "Total number of rejected triggers.",
			},
			[]string{"state", "trigger", "guard_unmet"},
		),
	}
	reg.MustRegister(m.transitions, m.rejections)
	return m
}

// OnTransitioned returns an observer that counts completed transitions.
func (m *Metrics[S, T]) OnTransitioned() espalier.TransitionFunc[S, T] {
	return func(_ context.Context, e espalier.TransitionEvent[S, T]) {
		m.transitions.WithLabelValues(
			fmt.Sprint(e.Transition.Source),
			fmt.Sprint(e.Transition.Destination),
			fmt.Sprint(e.Transition.Trigger),
		).Inc()
	}
}

// OnRejected returns an observer that counts rejected triggers, labelled by
// whether unmet guards caused the rejection.
func (m *Metrics[S, T]) OnRejected() espalier.RejectionFunc[S, T] {
	return func(_ context.Context, e espalier.RejectionEvent[S, T]) {
		guardUnmet := "false"
		if e.GuardUnmet() {
			guardUnmet = "true"
		}
		m.rejections.WithLabelValues(
			fmt.Sprint(e.State),
			fmt.Sprint(e.Trigger),
			guardUnmet,
		).Inc()
	}
}

// RegisterQueueDepth registers a gauge that samples the machine's pending
// invocation count on every scrape.
func RegisterQueueDepth[S, T comparable](reg prometheus.Registerer, m *espalier.Machine[S, T]) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "espalier_queue_depth",
			Help: "Number of invocations waiting to be dispatched.",
		},
		func() float64 { return float64(m.QueueDepth()) },
	))
}
