// Package session holds per-applicant conversation state and the stores
// that keep it alive for the duration of a loan application.
package session

import (
	"time"
)

// State is the orchestrator stage a session is currently in. Transitions
// are monotonic except for the OFFER <-> NEGOTIATION loop.
type State string

const (
	StateGreeting       State = "GREETING"
	StateCollectingInfo State = "COLLECTING_INFO"
	StateKYC            State = "KYC"
	StateFraudCheck     State = "FRAUD_CHECK"
	StateUnderwriting   State = "UNDERWRITING"
	StateOffer          State = "OFFER"
	StateNegotiation    State = "NEGOTIATION"
	StateDocumentation  State = "DOCUMENTATION"
	StateDone           State = "DONE"
	StateRejected       State = "REJECTED"
)

// FinalStatus is the terminal marker of a session.
type FinalStatus string

const (
	FinalPending    FinalStatus = "pending"
	FinalApproved   FinalStatus = "approved"
	FinalRejected   FinalStatus = "rejected"
	FinalDocumented FinalStatus = "documented"
)

// Slot field names. The orchestrator and engines address slots only
// through these constants.
const (
	FieldName           = "name"
	FieldAge            = "age"
	FieldLoanAmount     = "loan_amount"
	FieldTenureMonths   = "tenure_months"
	FieldPurpose        = "purpose"
	FieldAnnualIncome   = "annual_income"
	FieldEmploymentType = "employment_type"
	FieldPAN            = "pan"
	FieldAadhaar        = "aadhaar"
	FieldAddress        = "address"
)

// BasicFields must all validate before the session leaves COLLECTING_INFO.
var BasicFields = []string{
	FieldName, FieldAge, FieldLoanAmount, FieldTenureMonths,
	FieldPurpose, FieldAnnualIncome, FieldEmploymentType,
}

// KYCFields must all validate before the session leaves KYC.
var KYCFields = []string{FieldPAN, FieldAadhaar, FieldAddress}

// Slot is one extracted-and-validated application field.
type Slot struct {
	Raw   string `json:"raw"`
	Value any    `json:"value,omitempty"`
	Valid bool   `json:"valid"`
}

// HistoryEntry is one line of the conversation transcript. History is
// append-only and feeds fraud feature construction.
type HistoryEntry struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// FraudResult is the outcome of the anomaly-scoring stage.
type FraudResult struct {
	Score       float64   `json:"score"`
	Flagged     bool      `json:"flagged"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// UnderwritingResult is the outcome of the risk-scoring stage.
type UnderwritingResult struct {
	RiskScore   float64   `json:"risk_score"`
	Approved    bool      `json:"approved"`
	Rate        float64   `json:"rate"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Offer is the loan terms currently on the table.
type Offer struct {
	Principal    int64   `json:"principal"`
	TenureMonths int     `json:"tenure_months"`
	Rate         float64 `json:"rate"`
	EMI          float64 `json:"emi"`
}

// Session is one applicant conversation. Mutated only through
// Store.Mutate, which serializes writers per id.
type Session struct {
	ID                 string              `json:"id"`
	State              State               `json:"state"`
	Slots              map[string]Slot     `json:"slots"`
	CreatedAt          time.Time           `json:"created_at"`
	LastActiveAt       time.Time           `json:"last_active_at"`
	ExpiresAt          time.Time           `json:"expires_at"`
	History            []HistoryEntry      `json:"history"`
	FraudResult        *FraudResult        `json:"fraud_result,omitempty"`
	UnderwritingResult *UnderwritingResult `json:"underwriting_result,omitempty"`
	Offer              *Offer              `json:"offer,omitempty"`
	NegotiationRounds  int                 `json:"negotiation_rounds"`
	FinalStatus        FinalStatus         `json:"final_status"`
	RejectReason       string              `json:"reject_reason,omitempty"`
}

// New creates a fresh session in GREETING.
func New(id string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:           id,
		State:        StateGreeting,
		Slots:        make(map[string]Slot),
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(ttl),
		FinalStatus:  FinalPending,
	}
}

// Touch refreshes the activity timestamps after a successful mutation.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.LastActiveAt = now
	s.ExpiresAt = now.Add(ttl)
}

// Expired reports whether the session TTL has lapsed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// AppendHistory records one conversation line.
func (s *Session) AppendHistory(speaker, text string, at time.Time) {
	s.History = append(s.History, HistoryEntry{Speaker: speaker, Text: text, At: at})
}

// SetSlot stores a validated slot value.
func (s *Session) SetSlot(field, raw string, value any) {
	s.Slots[field] = Slot{Raw: raw, Value: value, Valid: true}
}

// SlotFilled reports whether a field already passed validation.
func (s *Session) SlotFilled(field string) bool {
	slot, ok := s.Slots[field]
	return ok && slot.Valid
}

// MissingFields returns the subset of fields not yet validly filled,
// preserving the given order.
func (s *Session) MissingFields(fields []string) []string {
	var missing []string
	for _, f := range fields {
		if !s.SlotFilled(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// SlotString returns a validated slot's value as a string.
func (s *Session) SlotString(field string) string {
	slot, ok := s.Slots[field]
	if !ok || !slot.Valid {
		return ""
	}
	str, _ := slot.Value.(string)
	return str
}

// SlotInt64 returns a validated slot's value as an int64. JSON decoding
// turns numbers into float64, so both representations are accepted.
func (s *Session) SlotInt64(field string) int64 {
	slot, ok := s.Slots[field]
	if !ok || !slot.Valid {
		return 0
	}
	switch v := slot.Value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Clone deep-copies the session so callers can read it without holding
// store locks.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Slots = make(map[string]Slot, len(s.Slots))
	for k, v := range s.Slots {
		clone.Slots[k] = v
	}
	clone.History = append([]HistoryEntry(nil), s.History...)
	if s.FraudResult != nil {
		fr := *s.FraudResult
		clone.FraudResult = &fr
	}
	if s.UnderwritingResult != nil {
		uw := *s.UnderwritingResult
		clone.UnderwritingResult = &uw
	}
	if s.Offer != nil {
		offer := *s.Offer
		clone.Offer = &offer
	}
	return &clone
}

// Status is the read-only view served even for expired sessions.
type Status struct {
	State       State       `json:"state"`
	ExpiresAt   time.Time   `json:"expires_at"`
	FinalStatus FinalStatus `json:"final_status"`
}

func (s *Session) Status() Status {
	return Status{State: s.State, ExpiresAt: s.ExpiresAt, FinalStatus: s.FinalStatus}
}
