package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/credgenhq/credgen/internal/scoring"
	"github.com/credgenhq/credgen/internal/session"
)

type stubScorer struct {
	score    float64
	err      error
	features []float64
}

func (s *stubScorer) Score(ctx context.Context, features []float64) (float64, error) {
	s.features = features
	return s.score, s.err
}

func applicantSession() *session.Session {
	sess := session.New("app-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), 30*time.Minute)
	sess.SetSlot(session.FieldName, "Riya Sharma", "Riya Sharma")
	sess.SetSlot(session.FieldAge, "32", int64(32))
	sess.SetSlot(session.FieldLoanAmount, "500000", int64(500000))
	sess.SetSlot(session.FieldTenureMonths, "36", int64(36))
	sess.SetSlot(session.FieldAnnualIncome, "1200000", int64(1200000))
	sess.SetSlot(session.FieldPAN, "ABCDE1234F", "ABCDE1234F")
	sess.SetSlot(session.FieldAadhaar, "234567890123", "234567890123")
	base := sess.CreatedAt
	sess.AppendHistory("user", "hi", base)
	sess.AppendHistory("assistant", "hello", base.Add(2*time.Second))
	sess.AppendHistory("user", "I need a loan", base.Add(10*time.Second))
	return sess
}

func TestFeaturesFixedOrder(t *testing.T) {
	sess := applicantSession()
	features := Features(sess)

	if len(features) != FeatureCount {
		t.Fatalf("feature count = %d, want %d", len(features), FeatureCount)
	}
	if features[0] != 500000 {
		t.Errorf("features[0] (amount) = %f", features[0])
	}
	if features[1] != 36 {
		t.Errorf("features[1] (tenure) = %f", features[1])
	}
	if features[2] != 32 {
		t.Errorf("features[2] (age) = %f", features[2])
	}
	if features[3] != 1200000 {
		t.Errorf("features[3] (income) = %f", features[3])
	}
	if got, want := features[4], 500000.0/1200000.0; got != want {
		t.Errorf("features[4] (loan/income) = %f, want %f", got, want)
	}
	if features[5] != 3 {
		t.Errorf("features[5] (history length) = %f", features[5])
	}
	if features[6] != 10 {
		t.Errorf("features[6] (mean user gap) = %f, want 10", features[6])
	}
	for i := 7; i < 10; i++ {
		if features[i] != 1 {
			t.Errorf("features[%d] (presence flag) = %f, want 1", i, features[i])
		}
	}
}

func TestEvaluateFlagging(t *testing.T) {
	tests := []struct {
		name        string
		score       float64
		wantFlagged bool
	}{
		{"below threshold", 0.69, false},
		{"at threshold", 0.70, true},
		{"above threshold", 0.95, true},
		{"clean", 0.05, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewAdapter(&stubScorer{score: tt.score}, DefaultConfig(), nil)
			result, err := adapter.Evaluate(context.Background(), applicantSession())
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if result.Flagged != tt.wantFlagged {
				t.Errorf("Flagged = %v, want %v", result.Flagged, tt.wantFlagged)
			}
			if result.Score != tt.score {
				t.Errorf("Score = %f, want %f", result.Score, tt.score)
			}
			if result.EvaluatedAt.IsZero() {
				t.Error("EvaluatedAt not set")
			}
		})
	}
}

func TestEvaluateScorerFailureIsRetryable(t *testing.T) {
	adapter := NewAdapter(&stubScorer{err: scoring.ErrUnavailable}, DefaultConfig(), nil)
	_, err := adapter.Evaluate(context.Background(), applicantSession())
	if !errors.Is(err, scoring.ErrUnavailable) {
		t.Errorf("error = %v, want wrapped ErrUnavailable", err)
	}
}
