package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobsProcessedTotal,
		pipelineStepsTotal,
		pipelineStepDurationMs,
		generationRounds,
		generationDegradedTotal,
		toolCallsTotal,
	)
}

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of jobs that reached a terminal status.",
		},
		[]string{"status"}, // 'completed', 'failed'
	)

	pipelineStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_steps_total",
			Help: "Pipeline step executions by step and outcome.",
		},
		[]string{"step", "outcome"}, // 'done', 'skipped', 'failed'
	)

	pipelineStepDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_step_duration_ms",
			Help:    "Wall time of a pipeline step including retries, in milliseconds.",
			Buckets: []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"step"},
	)

	generationRounds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "generation_rounds",
			Help:    "Engine round-trips needed to answer a question.",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	generationDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_degraded_total",
			Help: "Answers returned because the round bound was reached.",
		},
	)

	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_calls_total",
			Help: "Tool invocations requested by the engine, by outcome.",
		},
		[]string{"tool", "outcome"},
	)
)

func IncJob(status string) {
	jobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveStep(step, outcome string, took time.Duration) {
	pipelineStepsTotal.WithLabelValues(step, norm(outcome)).Inc()
	pipelineStepDurationMs.WithLabelValues(step).Observe(float64(took.Milliseconds()))
}

// Observer feeds pipeline events into the collectors above.
type Observer struct{}

func (Observer) JobFinished(status string) { IncJob(status) }

func (Observer) StepFinished(step, outcome string, took time.Duration) {
	ObserveStep(step, outcome, took)
}

func (Observer) GenerationFinished(rounds int, degraded bool) {
	generationRounds.Observe(float64(rounds))
	if degraded {
		generationDegradedTotal.Inc()
	}
}

func (Observer) ToolCalled(tool, outcome string) {
	toolCallsTotal.WithLabelValues(tool, norm(outcome)).Inc()
}
