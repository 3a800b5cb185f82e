// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "expensecat"

var (
	// Requests counts handled stream requests by event and final status.
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Stream requests handled, by event and status.",
	}, []string{"event", "status"})

	// RequestDuration observes end-to-end handling time per request.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Time spent handling one stream request.",
		Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"event"})

	// Attempts counts agent attempts by outcome.
	Attempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "instruction_attempts_total",
		Help:      "Agent attempts, by outcome (success, agent_error, guard_rejected, empty_text).",
	}, []string{"outcome"})

	// GuardDecisions counts guard chain decisions by accepting guard, or "rejected".
	GuardDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guard_decisions_total",
		Help:      "Guard chain decisions, by accepting guard or rejected.",
	}, []string{"guard"})

	// StreamErrors counts transport failures by operation.
	StreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_errors_total",
		Help:      "Stream transport errors, by operation (read, publish, commit).",
	}, []string{"op"})
)
