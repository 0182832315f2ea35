// Package underwriting turns a risk score into an approval decision and
// priced loan terms.
package underwriting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/credgenhq/credgen/internal/scoring"
	"github.com/credgenhq/credgen/internal/session"
	"github.com/credgenhq/credgen/pkg/logging"
)

// ErrFraudClearanceRequired guards the stage ordering invariant: risk
// scoring never runs without a non-flagged fraud result.
var ErrFraudClearanceRequired = errors.New("underwriting: fraud clearance required")

// Band maps a contiguous risk range to a contiguous annual-rate range.
// The rate is interpolated linearly by the risk's position in the band.
type Band struct {
	RiskLow  float64
	RiskHigh float64
	RateLow  float64
	RateHigh float64
}

// Config is the underwriting policy, fixed at construction.
type Config struct {
	// RejectThreshold: risk scores at or above it are declined.
	RejectThreshold float64
	// Bands must be contiguous and ordered by RiskLow. The last band is
	// inclusive of its upper edge.
	Bands []Band
}

// DefaultConfig returns the production pricing policy.
func DefaultConfig() Config {
	return Config{
		RejectThreshold: 0.8,
		Bands: []Band{
			{RiskLow: 0.0, RiskHigh: 0.3, RateLow: 8.5, RateHigh: 9.5},
			{RiskLow: 0.3, RiskHigh: 0.7, RateLow: 9.5, RateHigh: 12.0},
			{RiskLow: 0.7, RiskHigh: 1.0, RateLow: 12.0, RateHigh: 15.0},
		},
	}
}

// BandFor returns the band containing risk. Bands are half-open except
// the last, which includes its upper edge.
func (c Config) BandFor(risk float64) (Band, bool) {
	for i, b := range c.Bands {
		last := i == len(c.Bands)-1
		if risk >= b.RiskLow && (risk < b.RiskHigh || (last && risk <= b.RiskHigh)) {
			return b, true
		}
	}
	return Band{}, false
}

// RateFor interpolates the annual rate for a risk score.
func (c Config) RateFor(risk float64) (float64, error) {
	band, ok := c.BandFor(risk)
	if !ok {
		return 0, fmt.Errorf("underwriting: risk %f outside configured bands", risk)
	}
	position := (risk - band.RiskLow) / (band.RiskHigh - band.RiskLow)
	return band.RateLow + position*(band.RateHigh-band.RateLow), nil
}

// EMI computes the equated monthly installment for an amortizing loan,
// rounded to the nearest rupee. A zero rate degenerates to principal
// divided by tenure.
func EMI(principal int64, annualRate float64, tenureMonths int) float64 {
	p := float64(principal)
	r := annualRate / 12 / 100
	n := float64(tenureMonths)
	if r == 0 {
		return math.Round(p / n)
	}
	power := math.Pow(1+r, n)
	return math.Round(p * r * power / (power - 1))
}

// FeatureCount is the length of the vector the risk scorer expects.
// Order is part of the collaborator contract and must not change.
const FeatureCount = 8

// Features builds the fixed-order vector from validated slots and the
// fraud score.
func Features(sess *session.Session) []float64 {
	amount := float64(sess.SlotInt64(session.FieldLoanAmount))
	income := float64(sess.SlotInt64(session.FieldAnnualIncome))
	tenure := float64(sess.SlotInt64(session.FieldTenureMonths))

	loanToIncome := 0.0
	emiToMonthlyIncome := 0.0
	if income > 0 {
		loanToIncome = amount / income
		// affordability probe priced at the middle of the medium band
		emiToMonthlyIncome = EMI(int64(amount), 10.75, int(tenure)) / (income / 12)
	}

	selfEmployed := 0.0
	if sess.SlotString(session.FieldEmploymentType) == "self-employed" {
		selfEmployed = 1
	}

	fraudScore := 0.0
	if sess.FraudResult != nil {
		fraudScore = sess.FraudResult.Score
	}

	return []float64{
		float64(sess.SlotInt64(session.FieldAge)),
		income,
		amount,
		tenure,
		loanToIncome,
		emiToMonthlyIncome,
		selfEmployed,
		fraudScore,
	}
}

// Engine runs the risk scorer and applies the approval and pricing policy.
type Engine struct {
	scorer scoring.Scorer
	cfg    Config
	logger *logging.Logger
	now    func() time.Time
}

// NewEngine creates an underwriting engine around the risk scorer.
func NewEngine(scorer scoring.Scorer, cfg Config, logger *logging.Logger) *Engine {
	if scorer == nil {
		panic("underwriting: scorer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		scorer: scorer,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Evaluate scores the application and prices it when approved. A scorer
// failure is returned as-is so the stage stays pending and retryable.
func (e *Engine) Evaluate(ctx context.Context, sess *session.Session) (session.UnderwritingResult, error) {
	if sess.FraudResult == nil || sess.FraudResult.Flagged {
		return session.UnderwritingResult{}, ErrFraudClearanceRequired
	}

	risk, err := e.scorer.Score(ctx, Features(sess))
	if err != nil {
		return session.UnderwritingResult{}, fmt.Errorf("underwriting: risk scoring failed: %w", err)
	}

	result := session.UnderwritingResult{
		RiskScore:   risk,
		EvaluatedAt: e.now().UTC(),
	}

	if risk >= e.cfg.RejectThreshold {
		e.logger.Info("underwriting declined",
			"session_id", sess.ID,
			"risk_score", risk,
			"threshold", e.cfg.RejectThreshold,
		)
		return result, nil
	}

	rate, err := e.cfg.RateFor(risk)
	if err != nil {
		return session.UnderwritingResult{}, err
	}
	result.Approved = true
	result.Rate = rate

	e.logger.Info("underwriting approved",
		"session_id", sess.ID,
		"risk_score", risk,
		"rate", rate,
	)
	return result, nil
}

// BuildOffer prices the approved terms into an offer.
func BuildOffer(sess *session.Session, result session.UnderwritingResult) *session.Offer {
	principal := sess.SlotInt64(session.FieldLoanAmount)
	tenure := int(sess.SlotInt64(session.FieldTenureMonths))
	return &session.Offer{
		Principal:    principal,
		TenureMonths: tenure,
		Rate:         result.Rate,
		EMI:          EMI(principal, result.Rate, tenure),
	}
}
