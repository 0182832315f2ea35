package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDecisionMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDecisionMetrics(reg)

	m.ObserveTurn("OFFER", "negotiate")
	m.ObserveTurn("OFFER", "negotiate")
	m.ObserveStage("fraud", "cleared")
	m.ObserveScoringLatency("underwriting", 0.12)

	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("OFFER", "negotiate")); got != 2 {
		t.Errorf("turns_total = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.stageTotal.WithLabelValues("fraud", "cleared")); got != 1 {
		t.Errorf("stage_total = %f, want 1", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *DecisionMetrics
	m.ObserveTurn("OFFER", "accept")
	m.ObserveStage("sales", "presented")
	m.ObserveScoringLatency("fraud", 0.01)
}
