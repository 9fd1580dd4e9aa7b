package triage

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	DecisionsTotal     *prometheus.CounterVec
	DecisionDuration   *prometheus.HistogramVec
	DecisionConfidence prometheus.Histogram
	StageFailuresTotal *prometheus.CounterVec
	RetriesTotal       *prometheus.CounterVec
	LLMCallsTotal      prometheus.Counter
	LLMTokensIn        prometheus.Counter
	LLMTokensOut       prometheus.Counter
	LLMDuration        prometheus.Histogram
	ToolCallsTotal     *prometheus.CounterVec
	ToolDuration       *prometheus.HistogramVec
	ToolInputBytes     *prometheus.HistogramVec
	ToolOutputBytes    *prometheus.HistogramVec
	SubmitsTotal       *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchboard_decisions_total",
			Help: "Final decisions by team, priority and outcome.",
		}, []string{"team", "priority", "outcome"}),
		DecisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "switchboard_decision_duration_seconds",
			Help:    "End-to-end time to decide a ticket in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~262s
		}, []string{"outcome"}),
		DecisionConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "switchboard_decision_confidence",
			Help:    "Confidence score of final decisions (0-100).",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0 .. 100
		}),
		StageFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchboard_stage_failures_total",
			Help: "Pipeline stage failures by stage and failure kind.",
		}, []string{"stage", "kind"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchboard_throttle_retries_total",
			Help: "Throttled stage calls retried, by stage.",
		}, []string{"stage"}),
		LLMCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "switchboard_llm_calls_total",
			Help: "Total model provider calls.",
		}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "switchboard_llm_tokens_input_total",
			Help: "Total model input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "switchboard_llm_tokens_output_total",
			Help: "Total model output tokens consumed.",
		}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "switchboard_llm_call_duration_seconds",
			Help:    "Duration of individual model calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 0.25s .. 64s
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchboard_tool_calls_total",
			Help: "Total tool executions by tool name and status.",
		}, []string{"tool", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "switchboard_tool_duration_seconds",
			Help:    "Duration of tool executions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8), // 0.5ms .. ~8s
		}, []string{"tool"}),
		ToolInputBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "switchboard_tool_input_bytes",
			Help:    "Size of tool input in bytes.",
			Buckets: prometheus.ExponentialBuckets(16, 4, 8), // 16B .. 256KB
		}, []string{"tool"}),
		ToolOutputBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "switchboard_tool_output_bytes",
			Help:    "Size of tool output in bytes.",
			Buckets: prometheus.ExponentialBuckets(16, 4, 8), // 16B .. 256KB
		}, []string{"tool"}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchboard_submitted_tickets_total",
			Help: "Submitted tickets by admission result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.DecisionsTotal,
		m.DecisionDuration,
		m.DecisionConfidence,
		m.StageFailuresTotal,
		m.RetriesTotal,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
		m.ToolCallsTotal,
		m.ToolDuration,
		m.ToolInputBytes,
		m.ToolOutputBytes,
		m.SubmitsTotal,
	)

	return m
}

func outcome(d ticket.FinalDecision) string {
	switch {
	case d.Fallback():
		return "fallback"
	case d.RequiresManualReview:
		return "review"
	default:
		return "decided"
	}
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnStageFailure: func(stage State, kind Kind) {
			m.StageFailuresTotal.WithLabelValues(string(stage), string(kind)).Inc()
		},
		OnRetry: func(stage State) {
			m.RetriesTotal.WithLabelValues(string(stage)).Inc()
		},
		OnDecision: func(d ticket.FinalDecision, seconds float64) {
			o := outcome(d)
			m.DecisionsTotal.WithLabelValues(string(d.AssignedTeam), string(d.PriorityLevel), o).Inc()
			m.DecisionDuration.WithLabelValues(o).Observe(seconds)
			m.DecisionConfidence.Observe(d.ConfidenceScore)
		},
		OnLLMCall: func(inputTokens, outputTokens int, seconds float64) {
			m.LLMCallsTotal.Inc()
			m.LLMTokensIn.Add(float64(inputTokens))
			m.LLMTokensOut.Add(float64(outputTokens))
			m.LLMDuration.Observe(seconds)
		},
		OnToolCall: func(name string, seconds float64, inputBytes, outputBytes int, isError bool) {
			status := "success"
			if isError {
				status = "error"
			}
			m.ToolCallsTotal.WithLabelValues(name, status).Inc()
			m.ToolDuration.WithLabelValues(name).Observe(seconds)
			m.ToolInputBytes.WithLabelValues(name).Observe(float64(inputBytes))
			m.ToolOutputBytes.WithLabelValues(name).Observe(float64(outputBytes))
		},
	}
}
