package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/credgenhq/credgen/internal/fraud"
	"github.com/credgenhq/credgen/internal/negotiation"
	"github.com/credgenhq/credgen/internal/observability/metrics"
	"github.com/credgenhq/credgen/internal/sanction"
	"github.com/credgenhq/credgen/internal/scoring"
	"github.com/credgenhq/credgen/internal/session"
	"github.com/credgenhq/credgen/internal/underwriting"
	"github.com/credgenhq/credgen/internal/validate"
	"github.com/credgenhq/credgen/pkg/logging"
)

// Engine is the state machine behind the conversation. Every turn and
// stage run goes through Store.Mutate, so a failing step rolls back and
// the session never moves on an error.
type Engine struct {
	store       session.Store
	fraud       *fraud.Adapter
	underwriter *underwriting.Engine
	negotiator  *negotiation.Engine
	documents   sanction.DocumentClient
	classifier  Classifier
	extractor   Extractor
	metrics     *metrics.DecisionMetrics
	logger      *logging.Logger
	now         func() time.Time
}

var _ Service = (*Engine)(nil)

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithClassifier replaces the default keyword classifier.
func WithClassifier(c Classifier) EngineOption {
	return func(e *Engine) {
		e.classifier = c
	}
}

// WithExtractor replaces the default regex extractor.
func WithExtractor(x Extractor) EngineOption {
	return func(e *Engine) {
		e.extractor = x
	}
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.DecisionMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine wires the conversation engine around its stage engines.
func NewEngine(
	store session.Store,
	fraudAdapter *fraud.Adapter,
	underwriter *underwriting.Engine,
	negotiator *negotiation.Engine,
	documents sanction.DocumentClient,
	opts ...EngineOption,
) *Engine {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if fraudAdapter == nil {
		panic("conversation: fraud adapter cannot be nil")
	}
	if underwriter == nil {
		panic("conversation: underwriting engine cannot be nil")
	}
	if negotiator == nil {
		panic("conversation: negotiation engine cannot be nil")
	}
	if documents == nil {
		panic("conversation: document client cannot be nil")
	}

	e := &Engine{
		store:       store,
		fraud:       fraudAdapter,
		underwriter: underwriter,
		negotiator:  negotiator,
		documents:   documents,
		classifier:  NewKeywordClassifier(),
		extractor:   NewRegexExtractor(),
		logger:      logging.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessTurn applies one applicant message to the session, creating it
// on first contact.
func (e *Engine) ProcessTurn(ctx context.Context, req TurnRequest) (*Response, error) {
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = uuid.NewString()
	}
	message := strings.TrimSpace(req.Message)

	if _, err := e.store.Get(ctx, id); err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			return nil, err
		}
		if _, err := e.store.Create(ctx, id); err != nil && !errors.Is(err, session.ErrAlreadyExists) {
			return nil, err
		}
	}

	intent := e.classifier.Classify(message)

	var resp *Response
	_, err := e.store.Mutate(ctx, id, func(sess *session.Session) error {
		sess.AppendHistory("user", message, e.now().UTC())
		r, err := e.step(sess, intent, message)
		if err != nil {
			return err
		}
		r.SessionID = id
		sess.AppendHistory("assistant", r.Message, e.now().UTC())
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.ObserveTurn(string(resp.State), string(intent))
	return resp, nil
}

// step routes one classified message through the state machine. It runs
// inside Mutate, so sess is the private copy and mutations are atomic.
func (e *Engine) step(sess *session.Session, intent Intent, message string) (*Response, error) {
	if intent == IntentCancel && sess.State != session.StateDone && sess.State != session.StateRejected {
		e.terminate(sess, ReasonCancelled)
		return e.respond(sess, rejectionMessage(ReasonCancelled), ""), nil
	}

	switch sess.State {
	case session.StateGreeting:
		sess.State = session.StateCollectingInfo
		// first contact often already carries details, but a bare "hi"
		// must not be mistaken for an answer
		return e.intake(sess, message, msgGreeting, false), nil

	case session.StateCollectingInfo, session.StateKYC:
		return e.intake(sess, message, "", true), nil

	case session.StateFraudCheck:
		return e.respond(sess, msgFraudPending, ActionFraud), nil

	case session.StateUnderwriting:
		return e.respond(sess, msgUnderwritingPending, ActionUnderwriting), nil

	case session.StateOffer, session.StateNegotiation:
		return e.offerTurn(sess, intent)

	case session.StateDocumentation:
		return e.respond(sess, msgDocumentationPending, ActionDocumentation), nil

	case session.StateDone:
		return e.respond(sess, msgDone, ""), nil

	case session.StateRejected:
		return e.respond(sess, rejectionMessage(sess.RejectReason), ""), nil
	}

	return nil, fmt.Errorf("conversation: session %s in unknown state %q", sess.ID, sess.State)
}

// intake feeds a message through extraction and validation for the
// fields the current stage still needs, advancing the stage when it
// completes. A completed COLLECTING_INFO rolls straight into KYC so a
// single rich message can clear both.
func (e *Engine) intake(sess *session.Session, message, prefix string, allowBare bool) *Response {
	for {
		var fields []string
		switch sess.State {
		case session.StateCollectingInfo:
			fields = session.BasicFields
		case session.StateKYC:
			fields = session.KYCFields
		default:
			return e.respond(sess, prefix+msgFraudPending, ActionFraud)
		}

		stored, failure := e.collect(sess, message, fields, allowBare)
		allowBare = false

		missing := sess.MissingFields(fields)
		if len(missing) > 0 {
			msg := prefix
			switch {
			case failure != nil:
				msg += "Sorry, " + failure.Reason + ". "
			case stored == 0 && prefix == "":
				msg += msgHelp
			}
			msg += promptFor(missing[0])
			return e.respond(sess, msg, "")
		}

		if sess.State == session.StateCollectingInfo {
			sess.State = session.StateKYC
			prefix += msgKYCIntro
		} else {
			sess.State = session.StateFraudCheck
		}
	}
}

// collect validates extracted candidates into slots. The first failing
// field is reported back so the applicant can correct it; already-valid
// slots are never overwritten.
func (e *Engine) collect(sess *session.Session, message string, fields []string, allowBare bool) (int, *validate.FieldError) {
	missing := sess.MissingFields(fields)
	candidates := e.extractor.Extract(message, missing)
	if len(candidates) == 0 && allowBare && len(missing) > 0 && message != "" {
		// bare replies answer the field just prompted for
		candidates = map[string]string{missing[0]: message}
	}

	stored := 0
	var failure *validate.FieldError
	for _, field := range fields {
		raw, ok := candidates[field]
		if !ok || sess.SlotFilled(field) {
			continue
		}
		if err := applySlot(sess, field, raw); err != nil {
			var fieldErr *validate.FieldError
			if errors.As(err, &fieldErr) && failure == nil {
				failure = fieldErr
			}
			continue
		}
		stored++
	}
	return stored, failure
}

func applySlot(sess *session.Session, field, raw string) error {
	switch field {
	case session.FieldName:
		v, err := validate.Name(raw)
		if err != nil {
			return err
		}
		sess.SetSlot(field, raw, v)
	case session.FieldAge:
		v, err := validate.Age(raw)
		if err != nil {
			return err
		}
		sess.SetSlot(field, raw, int64(v))
	case session.FieldLoanAmount:
		v, err := validate.LoanAmount(raw)
		if err != nil {
			return err
		}
		sess.SetSlot(field, raw, v)
	case session.FieldTenureMonths:
		v, err := validate.TenureMonths(raw)
		if err != nil {
			return err
		}
		sess.SetSlot(field, raw, int64(v))
	case session.FieldPurpose:
		v, err := validate.Purpose(raw)
		if err != nil {
			return err
		}
		sess.SetSlot(field, raw, v)
	case session.FieldAnnualIncome:
		v, err := validate.AnnualIncome(raw)
		if err != nil {
			return err
		}
		sess.SetSlot(field, raw, v)
	case session.FieldEmploymentType:
		v, err := validate.EmploymentType(raw)
		if err != nil {
			return err
		}
		sess.SetSlot(field, raw, v)
	case session.FieldPAN:
		v, err := validate.PAN(raw)
		if err != nil {
			return err
		}
		sess.SetSlot(field, raw, v)
	case session.FieldAadhaar:
		v, err := validate.Aadhaar(raw)
		if err != nil {
			return err
		}
		sess.SetSlot(field, raw, v)
	case session.FieldAddress:
		v, err := validate.Address(raw)
		if err != nil {
			return err
		}
		sess.SetSlot(field, raw, v)
	default:
		return fmt.Errorf("conversation: unknown field %q", field)
	}
	return nil
}

// offerTurn handles the OFFER <-> NEGOTIATION loop.
func (e *Engine) offerTurn(sess *session.Session, intent Intent) (*Response, error) {
	switch intent {
	case IntentAccept:
		sess.State = session.StateDocumentation
		return e.respond(sess, "Excellent! "+msgDocumentationPending, ActionDocumentation), nil

	case IntentNegotiate:
		sess.State = session.StateNegotiation
		offer, err := e.negotiator.Counter(sess)
		if errors.Is(err, negotiation.ErrExhausted) {
			return e.respond(sess, finalOfferMessage(offer), ""), nil
		}
		if err != nil {
			return nil, err
		}
		return e.respond(sess, counterOfferMessage(offer, e.negotiator.RoundsLeft(sess)), ""), nil

	case IntentRateInquiry:
		return e.respond(sess, rateInquiryMessage(sess.Offer), ""), nil

	default:
		return e.respond(sess, msgHelp+rateInquiryMessage(sess.Offer)+" You can accept, or ask me for a better rate.", ""), nil
	}
}

// RunStage executes one pipeline stage for the session.
func (e *Engine) RunStage(ctx context.Context, req StageRequest) (*Response, error) {
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		return nil, session.ErrNotFound
	}

	switch req.Stage {
	case ActionFraud:
		return e.runFraud(ctx, id)
	case ActionUnderwriting:
		return e.runUnderwriting(ctx, id)
	case ActionSales:
		return e.runSales(ctx, id, req.Negotiate)
	case ActionDocumentation:
		return e.runDocumentation(ctx, id)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, req.Stage)
	}
}

func (e *Engine) runFraud(ctx context.Context, id string) (*Response, error) {
	var resp *Response
	_, err := e.store.Mutate(ctx, id, func(sess *session.Session) error {
		if sess.State != session.StateFraudCheck {
			return fmt.Errorf("%w: fraud screening runs from FRAUD_CHECK, session is in %s", ErrStageNotReady, sess.State)
		}

		result, err := e.fraud.Evaluate(ctx, sess)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStageUnavailable, err)
		}
		sess.FraudResult = &result

		if result.Flagged {
			e.terminate(sess, ReasonFraudRisk)
			resp = e.respond(sess, rejectionMessage(ReasonFraudRisk), "")
		} else {
			sess.State = session.StateUnderwriting
			resp = e.respond(sess, msgUnderwritingPending, ActionUnderwriting)
		}
		resp.SessionID = id
		sess.AppendHistory("assistant", resp.Message, e.now().UTC())
		return nil
	})
	if err != nil {
		e.metrics.ObserveStage(ActionFraud, "error")
		return nil, err
	}
	outcome := "cleared"
	if resp.State == session.StateRejected {
		outcome = "flagged"
	}
	e.metrics.ObserveStage(ActionFraud, outcome)
	return resp, nil
}

func (e *Engine) runUnderwriting(ctx context.Context, id string) (*Response, error) {
	var resp *Response
	_, err := e.store.Mutate(ctx, id, func(sess *session.Session) error {
		if sess.State != session.StateUnderwriting {
			return fmt.Errorf("%w: underwriting runs from UNDERWRITING, session is in %s", ErrStageNotReady, sess.State)
		}

		result, err := e.underwriter.Evaluate(ctx, sess)
		if err != nil {
			if errors.Is(err, scoring.ErrUnavailable) {
				return fmt.Errorf("%w: %w", ErrStageUnavailable, err)
			}
			return err
		}
		sess.UnderwritingResult = &result

		if !result.Approved {
			e.terminate(sess, ReasonRiskTooHigh)
			resp = e.respond(sess, rejectionMessage(ReasonRiskTooHigh), "")
		} else {
			sess.Offer = underwriting.BuildOffer(sess, result)
			sess.State = session.StateOffer
			sess.FinalStatus = session.FinalApproved
			resp = e.respond(sess, offerMessage(sess.SlotString(session.FieldName), sess.Offer), ActionSales)
		}
		resp.SessionID = id
		sess.AppendHistory("assistant", resp.Message, e.now().UTC())
		return nil
	})
	if err != nil {
		e.metrics.ObserveStage(ActionUnderwriting, "error")
		return nil, err
	}
	outcome := "approved"
	if resp.State == session.StateRejected {
		outcome = "declined"
	}
	e.metrics.ObserveStage(ActionUnderwriting, outcome)
	return resp, nil
}

func (e *Engine) runSales(ctx context.Context, id string, negotiate bool) (*Response, error) {
	var resp *Response
	outcome := "presented"
	_, err := e.store.Mutate(ctx, id, func(sess *session.Session) error {
		if sess.State != session.StateOffer && sess.State != session.StateNegotiation {
			return fmt.Errorf("%w: sales runs from OFFER or NEGOTIATION, session is in %s", ErrStageNotReady, sess.State)
		}

		if !negotiate {
			resp = e.respond(sess, offerMessage(sess.SlotString(session.FieldName), sess.Offer), "")
		} else {
			sess.State = session.StateNegotiation
			offer, err := e.negotiator.Counter(sess)
			switch {
			case errors.Is(err, negotiation.ErrExhausted):
				outcome = "exhausted"
				resp = e.respond(sess, finalOfferMessage(offer), "")
			case err != nil:
				return err
			default:
				outcome = "countered"
				resp = e.respond(sess, counterOfferMessage(offer, e.negotiator.RoundsLeft(sess)), "")
			}
		}
		resp.SessionID = id
		sess.AppendHistory("assistant", resp.Message, e.now().UTC())
		return nil
	})
	if err != nil {
		e.metrics.ObserveStage(ActionSales, "error")
		return nil, err
	}
	e.metrics.ObserveStage(ActionSales, outcome)
	return resp, nil
}

func (e *Engine) runDocumentation(ctx context.Context, id string) (*Response, error) {
	var resp *Response
	_, err := e.store.Mutate(ctx, id, func(sess *session.Session) error {
		if sess.State != session.StateDocumentation {
			return fmt.Errorf("%w: documentation runs from DOCUMENTATION, session is in %s", ErrStageNotReady, sess.State)
		}

		terms, err := sanction.TermsFromSession(sess, e.now().UTC())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStageNotReady, err)
		}

		ref, err := e.documents.Generate(ctx, terms)
		if err != nil {
			if errors.Is(err, sanction.ErrUnavailable) {
				return fmt.Errorf("%w: %w", ErrStageUnavailable, err)
			}
			return err
		}

		sess.State = session.StateDone
		sess.FinalStatus = session.FinalDocumented
		resp = e.respond(sess, msgDone+" Your sanction letter reference is "+ref.ID+".", "")
		resp.SessionID = id
		sess.AppendHistory("assistant", resp.Message, e.now().UTC())
		return nil
	})
	if err != nil {
		e.metrics.ObserveStage(ActionDocumentation, "error")
		return nil, err
	}
	e.metrics.ObserveStage(ActionDocumentation, "documented")
	return resp, nil
}

// Reset discards the session and starts over under the same id.
func (e *Engine) Reset(ctx context.Context, sessionID string) (*Response, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, session.ErrNotFound
	}
	sess, err := e.store.Reset(ctx, id)
	if err != nil {
		return nil, err
	}
	e.logger.Info("session reset", "session_id", id)
	return &Response{
		SessionID:   id,
		Message:     msgGreeting + promptFor(session.FieldName),
		State:       sess.State,
		FinalStatus: sess.FinalStatus,
	}, nil
}

func (e *Engine) terminate(sess *session.Session, reason string) {
	sess.State = session.StateRejected
	sess.FinalStatus = session.FinalRejected
	sess.RejectReason = reason
	e.logger.Info("session closed", "session_id", sess.ID, "reason", reason)
}

func (e *Engine) respond(sess *session.Session, message, action string) *Response {
	return &Response{
		SessionID:   sess.ID,
		Message:     message,
		State:       sess.State,
		Action:      action,
		FinalStatus: sess.FinalStatus,
		Offer:       sess.Offer,
	}
}
