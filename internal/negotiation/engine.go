// Package negotiation implements the bounded counter-offer protocol on an
// approved underwriting result.
package negotiation

import (
	"errors"

	"github.com/credgenhq/credgen/internal/session"
	"github.com/credgenhq/credgen/internal/underwriting"
	"github.com/credgenhq/credgen/pkg/logging"
)

var (
	// ErrExhausted means the round limit was reached. Not a failure: the
	// current offer stands and is reported to the caller as the outcome.
	ErrExhausted = errors.New("negotiation: rounds exhausted")
	// ErrNoOffer means negotiation was requested without an approved
	// offer on the table.
	ErrNoOffer = errors.New("negotiation: approved offer required")
)

// Config is the negotiation policy, fixed at construction.
type Config struct {
	// Step is how much one round may lower the annual rate.
	Step float64
	// MaxRounds caps how many counter-offers a session gets.
	MaxRounds int
	// Bands give the rate floors; a negotiated rate never drops below
	// the floor of the band the risk score priced in.
	Bands []underwriting.Band
}

// DefaultConfig returns the production negotiation policy.
func DefaultConfig() Config {
	return Config{
		Step:      0.5,
		MaxRounds: 2,
		Bands:     underwriting.DefaultConfig().Bands,
	}
}

// FloorForBand returns the lowest rate negotiable for a risk score. The
// band floor equals the adjacent lower band's ceiling, so clamping here
// also satisfies the never-below-the-lower-band's-floor rule.
func (c Config) FloorForBand(risk float64) float64 {
	for i, b := range c.Bands {
		last := i == len(c.Bands)-1
		if risk >= b.RiskLow && (risk < b.RiskHigh || (last && risk <= b.RiskHigh)) {
			return b.RateLow
		}
	}
	if len(c.Bands) > 0 {
		return c.Bands[0].RateLow
	}
	return 0
}

// Engine applies counter-offer requests to a session.
type Engine struct {
	cfg    Config
	logger *logging.Logger
}

// NewEngine creates a negotiation engine.
func NewEngine(cfg Config, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// RoundsLeft reports how many counter-offers the session has left.
func (e *Engine) RoundsLeft(sess *session.Session) int {
	left := e.cfg.MaxRounds - sess.NegotiationRounds
	if left < 0 {
		return 0
	}
	return left
}

// Counter handles one negotiation request against the session's current
// offer. It lowers the rate by at most one step, clamped to the band
// floor, recomputes the EMI, and consumes a round. Once the limit is
// reached it returns ErrExhausted and leaves the offer untouched.
func (e *Engine) Counter(sess *session.Session) (*session.Offer, error) {
	if sess.UnderwritingResult == nil || !sess.UnderwritingResult.Approved || sess.Offer == nil {
		return nil, ErrNoOffer
	}

	if sess.NegotiationRounds >= e.cfg.MaxRounds {
		e.logger.Info("negotiation exhausted",
			"session_id", sess.ID,
			"rounds", sess.NegotiationRounds,
			"rate", sess.Offer.Rate,
		)
		return sess.Offer, ErrExhausted
	}

	floor := e.cfg.FloorForBand(sess.UnderwritingResult.RiskScore)
	newRate := sess.Offer.Rate - e.cfg.Step
	if newRate < floor {
		newRate = floor
	}

	offer := *sess.Offer
	offer.Rate = newRate
	offer.EMI = underwriting.EMI(offer.Principal, newRate, offer.TenureMonths)

	sess.Offer = &offer
	sess.NegotiationRounds++

	e.logger.Info("negotiation counter-offer",
		"session_id", sess.ID,
		"round", sess.NegotiationRounds,
		"rate", newRate,
		"floor", floor,
	)
	return sess.Offer, nil
}
