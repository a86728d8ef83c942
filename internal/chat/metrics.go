package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the chat subsystem's Prometheus collectors.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	MessagesBroadcast prometheus.Counter
	BroadcastDrops    prometheus.Counter
	AuthFailures      prometheus.Counter
	PersistFailures   prometheus.Counter
	HistoryRequests   prometheus.Counter
}

// NewMetrics registers and returns the chat collectors. A nil registerer
// yields unregistered collectors, which tests use for isolation.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "webdoc_chat_connections_active",
			Help: "Number of registered chat connections.",
		}),
		MessagesBroadcast: f.NewCounter(prometheus.CounterOpts{
			Name: "webdoc_chat_messages_broadcast_total",
			Help: "Chat messages persisted and broadcast to the room.",
		}),
		BroadcastDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "webdoc_chat_broadcast_drops_total",
			Help: "Per-recipient broadcast deliveries dropped under backpressure.",
		}),
		AuthFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "webdoc_chat_auth_failures_total",
			Help: "Connect-time and per-frame credential verification failures.",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "webdoc_chat_persist_failures_total",
			Help: "Message store append failures (message lost, sender notified).",
		}),
		HistoryRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "webdoc_chat_history_requests_total",
			Help: "History page requests served over REST.",
		}),
	}
}
