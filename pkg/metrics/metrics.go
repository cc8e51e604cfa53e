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

	// OrdersCreated tracks orders entering the lifecycle.
	OrdersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total orders created",
		},
	)

	// PaymentsConfirmed tracks operator payment confirmations.
	PaymentsConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_confirmed_total",
			Help: "Total payments confirmed by an operator",
		},
	)

	// PaymentsRejected tracks operator payment rejections.
	PaymentsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_rejected_total",
			Help: "Total payment claims rejected by an operator",
		},
	)

	// StockConflicts tracks payment confirmations that lost a stock race.
	StockConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_conflicts_total",
			Help: "Total payment confirmations aborted by a stock conflict",
		},
	)

	// EscalationsTotal tracks conversations handed to a human operator.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalations_total",
			Help: "Total conversation escalations",
		},
		[]string{"reason"},
	)

	// MessagesTotal tracks conversation messages by sender.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total conversation messages recorded",
		},
		[]string{"merchant", "sender"},
	)

	// EventsPublished tracks workflow events published to JetStream.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total workflow events published",
		},
		[]string{"type"},
	)

	// LLMTokensTotal tracks total LLM tokens processed by the agent.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)
)

// RecordRequest records one completed HTTP request.
func RecordRequest(method, path, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, path, status).Inc()
	RequestDuration.WithLabelValues(method, path, status).Observe(durationSec)
}
