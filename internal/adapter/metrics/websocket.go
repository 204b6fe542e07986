package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for channel sessions.
type WebSocketMetrics struct {
	ActiveConnections   prometheus.Gauge
	RejectedConnections *prometheus.CounterVec
	PacketsReceived     prometheus.Counter
	MalformedPackets    prometheus.Counter
	SessionDuration     prometheus.Histogram
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active WebSocket sessions.",
		}),
		RejectedConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_connections_total",
			Help:      "Total number of WebSocket connections rejected before upgrade, by reason.",
		}, []string{"reason"}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "packets_received_total",
			Help:      "Total number of well-formed packets applied from WebSocket peers.",
		}),
		MalformedPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "malformed_packets_total",
			Help:      "Total number of inbound packets dropped as malformed.",
		}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "session_duration_seconds",
			Help:      "Lifetime of WebSocket sessions in seconds.",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 3600, 14400},
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.RejectedConnections, m.PacketsReceived, m.MalformedPackets, m.SessionDuration)
	return m
}
