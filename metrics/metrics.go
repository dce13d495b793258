// Package metrics exposes coupling activity as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/spawn/resource"
)

const namespace = "spawn"

// Metrics holds the collectors of one coordinator.
type Metrics struct {
	Allocations  *prometheus.CounterVec
	Frees        *prometheus.CounterVec
	Exchanges    *prometheus.CounterVec
	Errors       *prometheus.CounterVec
	EngineLoads  prometheus.Counter
	Buildings    prometheus.Gauge
	LiveHandles  *prometheus.GaugeVec
	ExchangeTime *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Allocate calls that issued a new handle, by object kind.",
		}, []string{"kind"}),
		Frees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frees_total",
			Help:      "Free calls that released a handle, by object kind.",
		}, []string{"kind"}),
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Exchange calls, by object kind.",
		}, []string{"kind"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed lifecycle calls, by phase and error kind.",
		}, []string{"phase", "kind"}),
		EngineLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_loads_total",
			Help:      "Engines loaded.",
		}),
		Buildings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buildings",
			Help:      "Registered buildings.",
		}),
		LiveHandles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_handles",
			Help:      "Handles currently held by callers, by object kind.",
		}, []string{"kind"}),
		ExchangeTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_seconds",
			Help:      "Duration of exchange calls, by object kind.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Allocations, m.Frees, m.Exchanges, m.Errors,
			m.EngineLoads, m.Buildings, m.LiveHandles, m.ExchangeTime)
	}
	return m
}

// OnResourceEvent keeps LiveHandles in step with a handle table.
func (m *Metrics) OnResourceEvent(ev resource.Event) {
	g := m.LiveHandles.WithLabelValues(ev.Kind.String())
	switch ev.Type {
	case resource.EventCreated:
		g.Inc()
	case resource.EventDropped:
		g.Dec()
	}
}

var _ resource.Observer = (*Metrics)(nil)
