// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConversationsTotal tracks conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"type"},
	)

	// MessagesTotal tracks messages sent.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages sent",
		},
		[]string{"type"},
	)

	// BroadcastsTotal tracks broadcasts sent.
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total broadcasts sent",
		},
		[]string{"emergency"},
	)

	// BroadcastRecipients tracks resolved recipient set sizes.
	BroadcastRecipients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_recipients",
			Help:    "Number of recipients resolved per broadcast",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	// BroadcastReadsTotal tracks first reads of broadcasts.
	BroadcastReadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_reads_total",
			Help: "Total first-time broadcast reads",
		},
	)

	// CallSignalsTotal tracks call signals appended.
	CallSignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_signals_total",
			Help: "Total call signals appended",
		},
		[]string{"type"},
	)

	// CallSignalPollsTotal tracks call signal polls and whether they returned anything.
	CallSignalPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_signal_polls_total",
			Help: "Total call signal polls",
		},
		[]string{"result"},
	)

	// SignalBackendConnected is 1 while the NATS signal backend connection is up.
	SignalBackendConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "call_signal_backend_connected",
			Help: "Whether the call signal backend connection is up",
		},
	)

	// SignalBackendReconnectsTotal counts NATS reconnections.
	SignalBackendReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "call_signal_backend_reconnects_total",
			Help: "Total reconnections of the call signal backend",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordBroadcast records a sent broadcast and its fan-out.
func RecordBroadcast(emergency bool, recipients int) {
	label := "false"
	if emergency {
		label = "true"
	}
	BroadcastsTotal.WithLabelValues(label).Inc()
	BroadcastRecipients.Observe(float64(recipients))
}

// RecordSignalPoll records a call signal poll.
func RecordSignalPoll(returned int) {
	result := "empty"
	if returned > 0 {
		result = "signals"
	}
	CallSignalPollsTotal.WithLabelValues(result).Inc()
}

// RecordSignalBackend records the signal backend connection state.
func RecordSignalBackend(connected bool) {
	if connected {
		SignalBackendConnected.Set(1)
		return
	}
	SignalBackendConnected.Set(0)
}
