package negotiation

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/credgenhq/credgen/internal/session"
	"github.com/credgenhq/credgen/internal/underwriting"
)

func approvedSession(risk, rate float64) *session.Session {
	sess := session.New("app-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), 30*time.Minute)
	sess.SetSlot(session.FieldLoanAmount, "500000", int64(500000))
	sess.SetSlot(session.FieldTenureMonths, "36", int64(36))
	sess.UnderwritingResult = &session.UnderwritingResult{
		RiskScore:   risk,
		Approved:    true,
		Rate:        rate,
		EvaluatedAt: sess.CreatedAt,
	}
	sess.Offer = &session.Offer{
		Principal:    500000,
		TenureMonths: 36,
		Rate:         rate,
		EMI:          underwriting.EMI(500000, rate, 36),
	}
	return sess
}

func TestCounterLowersRateByStep(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)
	sess := approvedSession(0.5, 10.75)

	offer, err := engine.Counter(sess)
	if err != nil {
		t.Fatalf("Counter: %v", err)
	}
	if offer.Rate != 10.25 {
		t.Errorf("rate after round 1 = %f, want 10.25", offer.Rate)
	}
	if sess.NegotiationRounds != 1 {
		t.Errorf("rounds = %d, want 1", sess.NegotiationRounds)
	}
	if want := underwriting.EMI(500000, 10.25, 36); offer.EMI != want {
		t.Errorf("EMI not recomputed: %f, want %f", offer.EMI, want)
	}
}

func TestCounterClampsToBandFloor(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)
	// medium band [0.3,0.7) has floor 9.5; rate 9.6 - 0.5 would cross it
	sess := approvedSession(0.35, 9.6)

	offer, err := engine.Counter(sess)
	if err != nil {
		t.Fatalf("Counter: %v", err)
	}
	if offer.Rate != 9.5 {
		t.Errorf("rate = %f, want clamp at band floor 9.5", offer.Rate)
	}

	// a second round cannot go below the floor either
	offer, err = engine.Counter(sess)
	if err != nil {
		t.Fatalf("Counter round 2: %v", err)
	}
	if offer.Rate != 9.5 {
		t.Errorf("rate after round 2 = %f, want 9.5", offer.Rate)
	}
}

func TestCounterExhaustionFreezesOffer(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)
	sess := approvedSession(0.5, 10.75)

	for round := 1; round <= 2; round++ {
		if _, err := engine.Counter(sess); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
	}
	frozenRate := sess.Offer.Rate
	frozenEMI := sess.Offer.EMI

	offer, err := engine.Counter(sess)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("third request error = %v, want ErrExhausted", err)
	}
	if offer.Rate != frozenRate || offer.EMI != frozenEMI {
		t.Errorf("third request changed the offer: rate %f emi %f", offer.Rate, offer.EMI)
	}
	if sess.NegotiationRounds != 2 {
		t.Errorf("rounds = %d, want frozen at 2", sess.NegotiationRounds)
	}
}

func TestCounterRequiresApprovedOffer(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	sess := approvedSession(0.5, 10.75)
	sess.Offer = nil
	if _, err := engine.Counter(sess); !errors.Is(err, ErrNoOffer) {
		t.Errorf("no offer: error = %v, want ErrNoOffer", err)
	}

	sess = approvedSession(0.5, 10.75)
	sess.UnderwritingResult.Approved = false
	if _, err := engine.Counter(sess); !errors.Is(err, ErrNoOffer) {
		t.Errorf("not approved: error = %v, want ErrNoOffer", err)
	}
}

func TestFloorForBand(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		risk float64
		want float64
	}{
		{0.1, 8.5},
		{0.3, 9.5},
		{0.5, 9.5},
		{0.7, 12.0},
		{1.0, 12.0},
	}
	for _, tt := range tests {
		if got := cfg.FloorForBand(tt.risk); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("FloorForBand(%f) = %f, want %f", tt.risk, got, tt.want)
		}
	}
}
