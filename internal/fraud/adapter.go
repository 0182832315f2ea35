// Package fraud screens an application before underwriting may run.
package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/credgenhq/credgen/internal/scoring"
	"github.com/credgenhq/credgen/internal/session"
	"github.com/credgenhq/credgen/pkg/logging"
)

// Config is the fraud policy, fixed at construction.
type Config struct {
	// FlagThreshold: anomaly scores at or above it reject the session.
	FlagThreshold float64
}

// DefaultConfig returns the production fraud policy.
func DefaultConfig() Config {
	return Config{FlagThreshold: 0.7}
}

// FeatureCount is the length of the vector the anomaly scorer expects.
// Order is part of the collaborator contract and must not change.
const FeatureCount = 10

// Adapter maps a session to an anomaly score and the score to a verdict.
type Adapter struct {
	scorer scoring.Scorer
	cfg    Config
	logger *logging.Logger
	now    func() time.Time
}

// NewAdapter creates a fraud adapter around the anomaly scorer.
func NewAdapter(scorer scoring.Scorer, cfg Config, logger *logging.Logger) *Adapter {
	if scorer == nil {
		panic("fraud: scorer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{
		scorer: scorer,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Features builds the fixed-order vector from slots plus history
// length/timing signals.
func Features(sess *session.Session) []float64 {
	features := make([]float64, 0, FeatureCount)
	features = append(features,
		float64(sess.SlotInt64(session.FieldLoanAmount)),
		float64(sess.SlotInt64(session.FieldTenureMonths)),
		float64(sess.SlotInt64(session.FieldAge)),
		float64(sess.SlotInt64(session.FieldAnnualIncome)),
	)

	income := sess.SlotInt64(session.FieldAnnualIncome)
	ratio := 0.0
	if income > 0 {
		ratio = float64(sess.SlotInt64(session.FieldLoanAmount)) / float64(income)
	}
	features = append(features, ratio)

	features = append(features, float64(len(sess.History)), meanUserGapSeconds(sess.History))

	features = append(features,
		boolFeature(sess.SlotFilled(session.FieldName)),
		boolFeature(sess.SlotFilled(session.FieldPAN)),
		boolFeature(sess.SlotFilled(session.FieldAadhaar)),
	)
	return features
}

// meanUserGapSeconds averages the gap between consecutive applicant
// messages. Unusually uniform or instant replies are an anomaly signal
// the model keys on.
func meanUserGapSeconds(history []session.HistoryEntry) float64 {
	var prev time.Time
	var total float64
	var gaps int
	for _, h := range history {
		if h.Speaker != "user" {
			continue
		}
		if !prev.IsZero() {
			total += h.At.Sub(prev).Seconds()
			gaps++
		}
		prev = h.At
	}
	if gaps == 0 {
		return 0
	}
	return total / float64(gaps)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Evaluate runs the anomaly scorer once and maps the score to a verdict.
// A scorer failure is returned as-is: the stage stays pending and the
// caller may retry. No default score is ever assumed.
func (a *Adapter) Evaluate(ctx context.Context, sess *session.Session) (session.FraudResult, error) {
	score, err := a.scorer.Score(ctx, Features(sess))
	if err != nil {
		return session.FraudResult{}, fmt.Errorf("fraud: anomaly scoring failed: %w", err)
	}

	result := session.FraudResult{
		Score:       score,
		Flagged:     score >= a.cfg.FlagThreshold,
		EvaluatedAt: a.now().UTC(),
	}

	a.logger.Info("fraud check evaluated",
		"session_id", sess.ID,
		"score", score,
		"flagged", result.Flagged,
	)
	return result, nil
}
