package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects runtime counters for the agent loop, tool dispatch, and
// window perception. Built on Prometheus.
type Metrics struct {
	// LLMRequestCounter counts LLM requests.
	// Labels: model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency in seconds.
	// Labels: model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption.
	// Labels: model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// PerceptionIngestCounter counts window perception ingests.
	// Labels: operation (read|write|filter|style|explorer), status
	PerceptionIngestCounter *prometheus.CounterVec

	// ActiveWindows gauges open perception windows per session kind.
	// Labels: kind (explorer|sheet)
	ActiveWindows *prometheus.GaugeVec
}

// NewMetrics creates and registers metrics on the given registerer.
// Passing nil registers on the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetflow_llm_requests_total",
			Help: "Total LLM completion requests.",
		}, []string{"model", "status"}),

		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sheetflow_llm_request_duration_seconds",
			Help:    "LLM completion latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),

		LLMTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetflow_llm_tokens_total",
			Help: "LLM tokens consumed.",
		}, []string{"model", "type"}),

		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetflow_tool_executions_total",
			Help: "Total tool executions.",
		}, []string{"tool_name", "status"}),

		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sheetflow_tool_execution_duration_seconds",
			Help:    "Tool execution latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool_name"}),

		PerceptionIngestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetflow_perception_ingests_total",
			Help: "Window perception ingest operations.",
		}, []string{"operation", "status"}),

		ActiveWindows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sheetflow_active_windows",
			Help: "Open perception windows.",
		}, []string{"kind"}),
	}
}
