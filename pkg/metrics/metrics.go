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
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "route", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// LLMStreamDuration tracks model streaming duration.
	LLMStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_stream_duration_seconds",
			Help:    "LLM streaming response duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120, 300},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks tokens reported by the provider.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// SSEConnectionsActive tracks open chat streams.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// ChatEventsTotal counts SSE events written, by event name.
	ChatEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Server-sent events written to chat clients",
		},
		[]string{"event"},
	)

	// ChatOutcomesTotal counts chat requests by terminal outcome.
	ChatOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_requests_total",
			Help: "Chat requests by outcome",
		},
		[]string{"outcome"},
	)

	// RetrievalTotal counts knowledge-base lookups by result.
	RetrievalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_requests_total",
			Help: "Knowledge base retrievals by result",
		},
		[]string{"result"},
	)

	// RetrievalPassages tracks how many passages a retrieval returned.
	RetrievalPassages = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retrieval_passages",
			Help:    "Passages returned per knowledge base retrieval",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10, 20},
		},
	)

	// PersistenceTotal counts conversation writes by result.
	PersistenceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_persistence_total",
			Help: "Conversation persistence attempts by result",
		},
		[]string{"result"},
	)

	// AttachmentBytes tracks attachment payload sizes.
	AttachmentBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_attachment_bytes",
			Help:    "Attachment payload size in bytes",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
		},
		[]string{"kind"},
	)

	// TurnEventsPublished counts completed-turn events sent to NATS.
	TurnEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turn_events_published_total",
			Help: "Completed-turn events published to JetStream",
		},
		[]string{"result"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordLLMStream records metrics for a model streaming response.
func RecordLLMStream(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMStreamDuration.WithLabelValues(model, status).Observe(duration)
	if tokensIn > 0 {
		LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
	}
}

// RecordRetrieval records the result of a knowledge base lookup.
func RecordRetrieval(result string, passages int) {
	RetrievalTotal.WithLabelValues(result).Inc()
	if result != "error" {
		RetrievalPassages.Observe(float64(passages))
	}
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
