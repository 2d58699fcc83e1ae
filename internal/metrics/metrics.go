// Package metrics provides Prometheus instrumentation for the conversation
// engine. It exposes gauges for connection and session counts, counters for
// message throughput and topic publishes, and a histogram for send latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// SessionsActive tracks the current number of sessions in the ACTIVE state.
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_sessions_active",
		Help: "Current number of active conversation sessions",
	})

	// MessagesTotal counts messages processed, labeled by outcome:
	// "sent", "rejected", or "failed".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total number of messages processed",
	}, []string{"outcome"})

	// PublishesTotal counts broker publishes, labeled by topic kind:
	// "conversation", "inbox", or "presence".
	PublishesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_publishes_total",
		Help: "Total number of broker publishes",
	}, []string{"kind"})

	// SendLatency records append-plus-fan-out latency in seconds.
	SendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_send_latency_seconds",
		Help:    "Message persist and fan-out latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		SessionsActive,
		MessagesTotal,
		PublishesTotal,
		SendLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
