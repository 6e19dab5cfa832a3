package hub

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "scopehub"

// Capture outcomes recorded in the events counter.
const (
	outcomeCaptured = "captured"
	outcomeDropped  = "dropped"
	outcomeFailed   = "failed"
)

type metrics struct {
	events      *prometheus.CounterVec
	pushes      prometheus.Counter
	breadcrumbs prometheus.Counter
	depth       prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Events routed through the hub, by outcome and level.",
		}, []string{"outcome", "level"}),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scope_pushes_total",
			Help:      "Scopes pushed onto a flow's stack.",
		}),
		breadcrumbs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "breadcrumbs_total",
			Help:      "Breadcrumbs recorded on the current scope.",
		}),
		depth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "scope_depth",
			Help:      "Stack depth observed when an event is captured.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.events, m.pushes, m.breadcrumbs, m.depth} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering hub metrics: %w", err)
		}
	}

	return m, nil
}
