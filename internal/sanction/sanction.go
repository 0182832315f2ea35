// Package sanction assembles the finalized loan terms and hands them to
// the external document-generation collaborator.
package sanction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/credgenhq/credgen/internal/session"
	"github.com/credgenhq/credgen/pkg/logging"
)

// ErrUnavailable marks document-service timeouts and transport failures.
// The documentation stage stays pending and the caller may retry.
var ErrUnavailable = errors.New("sanction: document service unavailable")

// ErrIncomplete means the session lacks an accepted offer or KYC fields,
// so no terms payload can be assembled.
var ErrIncomplete = errors.New("sanction: session missing accepted offer or KYC fields")

// Terms is the finalized payload the document collaborator receives. It
// is opaque to the collaborator contract beyond being valid JSON.
type Terms struct {
	SessionID     string    `json:"session_id"`
	ApplicantName string    `json:"applicant_name"`
	PAN           string    `json:"pan"`
	Aadhaar       string    `json:"aadhaar"`
	Address       string    `json:"address"`
	Principal     int64     `json:"principal"`
	TenureMonths  int       `json:"tenure_months"`
	Rate          float64   `json:"rate"`
	EMI           float64   `json:"emi"`
	SanctionedAt  time.Time `json:"sanctioned_at"`
}

// TermsFromSession builds the payload from an accepted offer.
func TermsFromSession(sess *session.Session, now time.Time) (Terms, error) {
	if sess.Offer == nil {
		return Terms{}, ErrIncomplete
	}
	for _, field := range session.KYCFields {
		if !sess.SlotFilled(field) {
			return Terms{}, ErrIncomplete
		}
	}
	return Terms{
		SessionID:     sess.ID,
		ApplicantName: sess.SlotString(session.FieldName),
		PAN:           sess.SlotString(session.FieldPAN),
		Aadhaar:       sess.SlotString(session.FieldAadhaar),
		Address:       sess.SlotString(session.FieldAddress),
		Principal:     sess.Offer.Principal,
		TenureMonths:  sess.Offer.TenureMonths,
		Rate:          sess.Offer.Rate,
		EMI:           sess.Offer.EMI,
		SanctionedAt:  now.UTC(),
	}, nil
}

// DocumentRef is the opaque reference the collaborator returns.
type DocumentRef struct {
	ID  string `json:"document_id"`
	URL string `json:"url,omitempty"`
}

// DocumentClient generates a sanction letter from finalized terms.
type DocumentClient interface {
	Generate(ctx context.Context, terms Terms) (DocumentRef, error)
}

// Client is an HTTP client for the document collaborator.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout bounds each document-generation call.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a document-service client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate posts the terms and returns the document reference.
func (c *Client) Generate(ctx context.Context, terms Terms) (DocumentRef, error) {
	body, err := json.Marshal(terms)
	if err != nil {
		return DocumentRef{}, fmt.Errorf("sanction: failed to encode terms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents", bytes.NewReader(body))
	if err != nil {
		return DocumentRef{}, fmt.Errorf("sanction: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("document generation failed", "error", err, "session_id", terms.SessionID)
		return DocumentRef{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return DocumentRef{}, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return DocumentRef{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var ref DocumentRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		return DocumentRef{}, fmt.Errorf("sanction: failed to decode response: %w", err)
	}
	if ref.ID == "" {
		return DocumentRef{}, errors.New("sanction: collaborator returned empty document reference")
	}

	c.logger.Info("sanction letter generated", "session_id", terms.SessionID, "document_id", ref.ID)
	return ref, nil
}
