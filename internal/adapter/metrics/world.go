package metrics

import "github.com/prometheus/client_golang/prometheus"

// WorldMetrics holds Prometheus metrics for the entity store.
type WorldMetrics struct {
	Entities  prometheus.Gauge
	Mutations *prometheus.CounterVec
}

// NewWorldMetrics creates and registers entity store metrics on the given registry.
func NewWorldMetrics(reg prometheus.Registerer) *WorldMetrics {
	m := &WorldMetrics{
		Entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "entities",
			Help:      "Number of entities currently in the world.",
		}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "mutations_total",
			Help:      "Total number of store mutations by operation.",
		}, []string{"operation"}),
	}

	reg.MustRegister(m.Entities, m.Mutations)
	return m
}
