// Package conversation drives a loan application through its stages. It
// owns the state machine, the intent/slot front end that feeds it, and
// the queue-backed dispatcher the HTTP layer talks to.
package conversation

import (
	"context"
	"errors"

	"github.com/credgenhq/credgen/internal/session"
)

// Action tokens a turn response may carry, naming the downstream stage
// the caller should trigger next.
const (
	ActionFraud         = "fraud"
	ActionUnderwriting  = "underwriting"
	ActionSales         = "sales"
	ActionDocumentation = "documentation"
)

// Rejection reasons recorded on terminal sessions.
const (
	ReasonFraudRisk   = "fraud_risk"
	ReasonRiskTooHigh = "risk_too_high"
	ReasonCancelled   = "cancelled"
)

var (
	// ErrUnknownStage means the stage name is not one of the four tokens.
	ErrUnknownStage = errors.New("conversation: unknown stage")
	// ErrStageNotReady means the session is not in the state the requested
	// stage runs from. The caller is out of step, not the session.
	ErrStageNotReady = errors.New("conversation: session not ready for stage")
	// ErrStageUnavailable wraps collaborator failures. The stage did not
	// run to completion, the session did not move, and a retry is safe.
	ErrStageUnavailable = errors.New("conversation: stage collaborator unavailable")
)

// TurnRequest is one applicant message. A blank session id starts a new
// application under a generated id.
type TurnRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// StageRequest triggers one pipeline stage for a session. Negotiate only
// applies to the sales stage.
type StageRequest struct {
	SessionID string `json:"session_id"`
	Stage     string `json:"-"`
	Negotiate bool   `json:"negotiate,omitempty"`
}

// Response is what every entrypoint returns: the assistant message, the
// state after the turn, and optionally the next-stage action token and
// the offer on the table.
type Response struct {
	SessionID   string              `json:"session_id"`
	Message     string              `json:"message"`
	State       session.State       `json:"state"`
	Action      string              `json:"action,omitempty"`
	FinalStatus session.FinalStatus `json:"final_status"`
	Offer       *session.Offer      `json:"offer,omitempty"`
}

// Service is the conversation contract the HTTP handlers consume. The
// Engine implements it directly; the Orchestrator implements it by
// queueing work in front of an Engine.
type Service interface {
	ProcessTurn(ctx context.Context, req TurnRequest) (*Response, error)
	RunStage(ctx context.Context, req StageRequest) (*Response, error)
	Reset(ctx context.Context, sessionID string) (*Response, error)
}
