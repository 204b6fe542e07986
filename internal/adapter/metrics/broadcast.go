package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics holds Prometheus metrics for the subscriber fan-out.
type BroadcastMetrics struct {
	Subscribers       prometheus.Gauge
	MessagesPublished prometheus.Counter
	Deliveries        prometheus.Counter
	MailboxDepth      prometheus.Histogram
}

// NewBroadcastMetrics creates and registers broadcast metrics on the given registry.
func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Number of registered subscribers.",
		}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to the subscriber set.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Total number of messages enqueued into subscriber mailboxes.",
		}),
		MailboxDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "mailbox_depth",
			Help:      "Pending messages in a subscriber mailbox right after an enqueue.",
			Buckets:   []float64{1, 2, 4, 8, 16, 64, 256, 1024, 4096},
		}),
	}

	reg.MustRegister(m.Subscribers, m.MessagesPublished, m.Deliveries, m.MailboxDepth)
	return m
}
