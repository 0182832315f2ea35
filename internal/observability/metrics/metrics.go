// Package metrics exposes Prometheus instruments for the decisioning
// pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// DecisionMetrics counts conversation turns and stage outcomes and times
// the scoring collaborators. All methods are nil-safe so callers can run
// without a registry in tests.
type DecisionMetrics struct {
	turnsTotal     *prometheus.CounterVec
	stageTotal     *prometheus.CounterVec
	scoringLatency *prometheus.HistogramVec
}

func NewDecisionMetrics(reg prometheus.Registerer) *DecisionMetrics {
	m := &DecisionMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credgen",
			Subsystem: "decisioning",
			Name:      "turns_total",
			Help:      "Conversation turns processed, by resulting state and intent",
		}, []string{"state", "intent"}),
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credgen",
			Subsystem: "decisioning",
			Name:      "stage_total",
			Help:      "Stage executions, by stage and outcome",
		}, []string{"stage", "outcome"}),
		scoringLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "credgen",
			Subsystem: "decisioning",
			Name:      "scoring_latency_seconds",
			Help:      "Latency of scoring collaborator calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collaborator"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.stageTotal, m.scoringLatency)
	return m
}

func (m *DecisionMetrics) ObserveTurn(state, intent string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state, intent).Inc()
}

func (m *DecisionMetrics) ObserveStage(stage, outcome string) {
	if m == nil {
		return
	}
	m.stageTotal.WithLabelValues(stage, outcome).Inc()
}

func (m *DecisionMetrics) ObserveScoringLatency(collaborator string, seconds float64) {
	if m == nil {
		return
	}
	m.scoringLatency.WithLabelValues(collaborator).Observe(seconds)
}
