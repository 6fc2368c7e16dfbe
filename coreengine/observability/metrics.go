// Package observability provides Prometheus metrics, OpenTelemetry tracing and
// structured logging for the assistant engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// WORKFLOW METRICS
// =============================================================================

var (
	workflowExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_workflow_executions_total",
			Help: "Total number of workflow executions",
		},
		[]string{"input_type", "status"}, // status: completed, error, cancelled
	)

	workflowDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_workflow_duration_seconds",
			Help:    "Workflow execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"input_type"},
	)

	workflowRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_workflow_retries_total",
			Help: "Total number of quality-loop returns to research",
		},
		[]string{"intent"},
	)

	routingDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_routing_decisions_total",
			Help: "Total number of routing decisions by source and target node",
		},
		[]string{"from", "to"},
	)
)

// =============================================================================
// STAGE METRICS
// =============================================================================

var (
	stageExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_stage_executions_total",
			Help: "Total number of stage executions",
		},
		[]string{"stage", "status"}, // status: success, degraded
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)
)

// =============================================================================
// LLM METRICS
// =============================================================================

var (
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_llm_calls_total",
			Help: "Total number of LLM API calls",
		},
		[]string{"provider", "model", "status"}, // status: success, error
	)

	llmDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_llm_duration_seconds",
			Help:    "LLM call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)
)

// =============================================================================
// SESSION METRICS
// =============================================================================

var (
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assistant_sessions_tracked",
			Help: "Number of sessions currently held by the session tracker",
		},
	)

	sessionsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_sessions_evicted_total",
			Help: "Total number of sessions evicted by the cleanup sweep",
		},
	)
)

// =============================================================================
// GRPC METRICS
// =============================================================================

var (
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_grpc_requests_total",
			Help: "Total gRPC requests",
		},
		[]string{"method", "status"}, // status: OK, InvalidArgument, Internal, etc.
	)

	grpcRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_grpc_request_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 30},
		},
		[]string{"method"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordWorkflowExecution records workflow execution metrics.
// This should be called once per request after traversal ends.
func RecordWorkflowExecution(inputType string, status string, durationMS int) {
	workflowExecutionsTotal.WithLabelValues(inputType, status).Inc()
	workflowDurationSeconds.WithLabelValues(inputType).Observe(float64(durationMS) / 1000.0)
}

// RecordWorkflowRetry records one quality-loop return to research.
func RecordWorkflowRetry(intent string) {
	workflowRetriesTotal.WithLabelValues(intent).Inc()
}

// RecordRoutingDecision records an edge taken by the graph engine.
func RecordRoutingDecision(from, to string) {
	routingDecisionsTotal.WithLabelValues(from, to).Inc()
}

// RecordStageExecution records stage execution metrics.
func RecordStageExecution(stage string, status string, durationMS int) {
	stageExecutionsTotal.WithLabelValues(stage, status).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(float64(durationMS) / 1000.0)
}

// RecordLLMCall records LLM call metrics.
// This should be called after LLM generation completes.
func RecordLLMCall(provider string, model string, status string, durationMS int) {
	llmCallsTotal.WithLabelValues(provider, model, status).Inc()
	llmDurationSeconds.WithLabelValues(provider, model).Observe(float64(durationMS) / 1000.0)
}

// SetTrackedSessions sets the session tracker size gauge.
func SetTrackedSessions(n int) {
	activeSessions.Set(float64(n))
}

// RecordSessionsEvicted records sessions removed by a cleanup sweep.
func RecordSessionsEvicted(n int) {
	sessionsEvictedTotal.Add(float64(n))
}

// RecordGRPCRequest records gRPC request metrics.
// This should be called from gRPC interceptors.
func RecordGRPCRequest(method string, status string, durationMS int) {
	grpcRequestsTotal.WithLabelValues(method, status).Inc()
	grpcRequestDurationSeconds.WithLabelValues(method).Observe(float64(durationMS) / 1000.0)
}
