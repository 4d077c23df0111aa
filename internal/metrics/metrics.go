// Package metrics exposes run and case counters on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/retracehq/retrace/internal/orchestrate"
)

// Metrics holds the prometheus collectors fed by orchestrator progress
// events.
type Metrics struct {
	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	casesExecuted *prometheus.CounterVec
	caseVerdicts  *prometheus.CounterVec
	caseLatency   prometheus.Histogram
}

// New registers the retrace collectors on reg. Pass
// prometheus.DefaultRegisterer outside tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "retrace_runs_started_total",
			Help: "Regression runs that reached the running state.",
		}),
		runsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retrace_runs_finished_total",
			Help: "Regression runs that reached a terminal state, by outcome.",
		}, []string{"outcome"}),
		casesExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retrace_cases_executed_total",
			Help: "Test case executions, by execution status.",
		}, []string{"status"}),
		caseVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retrace_case_verdicts_total",
			Help: "Judged verdicts, by kind.",
		}, []string{"verdict"}),
		caseLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "retrace_case_latency_seconds",
			Help:    "Backend call latency per executed case.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}

// Observe is an orchestrate.ProgressListener.
func (m *Metrics) Observe(event orchestrate.ProgressEvent) {
	switch event.EventType {
	case orchestrate.EventRunStart:
		m.runsStarted.Inc()
	case orchestrate.EventRunComplete:
		m.runsFinished.WithLabelValues("completed").Inc()
	case orchestrate.EventRunFailed:
		m.runsFinished.WithLabelValues("failed").Inc()
	case orchestrate.EventRunCancelled:
		m.runsFinished.WithLabelValues("cancelled").Inc()
	case orchestrate.EventCaseComplete:
		m.casesExecuted.WithLabelValues(string(event.Status)).Inc()
		if event.Verdict != "" {
			m.caseVerdicts.WithLabelValues(string(event.Verdict)).Inc()
		}
		m.caseLatency.Observe(float64(event.DurationMs) / 1000)
	}
}
