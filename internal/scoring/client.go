// Package scoring talks to the external model-scoring collaborators. A
// scorer receives a fixed-order numeric feature vector and returns a
// probability in [0,1]; anything else is an explicit error, never a
// silent default score.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/credgenhq/credgen/pkg/logging"
)

// ErrUnavailable marks timeouts and transport failures. Callers treat it
// as a retryable stage failure: the session state stays put.
var ErrUnavailable = errors.New("scoring: collaborator unavailable")

// Scorer is the contract both the fraud and underwriting stages consume.
type Scorer interface {
	Score(ctx context.Context, features []float64) (float64, error)
}

type scoreRequest struct {
	Features []float64 `json:"features"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
	Error string  `json:"error,omitempty"`
}

// Client is an HTTP client for a scoring collaborator.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	tracer     trace.Tracer
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

// WithTimeout bounds each scoring call.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a scoring client for the collaborator at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logging.Default(),
		tracer: otel.Tracer("credgen.internal.scoring"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Score posts the feature vector and returns the probability.
func (c *Client) Score(ctx context.Context, features []float64) (float64, error) {
	ctx, span := c.tracer.Start(ctx, "scoring.score")
	defer span.End()

	body, err := json.Marshal(scoreRequest{Features: features})
	if err != nil {
		return 0, fmt.Errorf("scoring: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("scoring: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("scoring call failed", "error", err, "url", c.baseURL)
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("scoring call returned non-200",
			"status", resp.StatusCode,
			"url", c.baseURL,
			"elapsed", time.Since(start),
		)
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var result scoreResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return 0, fmt.Errorf("scoring: failed to decode response: %w", err)
	}
	if result.Error != "" {
		return 0, fmt.Errorf("scoring: collaborator error: %s", result.Error)
	}
	if result.Score < 0 || result.Score > 1 {
		return 0, fmt.Errorf("scoring: score %f outside [0,1]", result.Score)
	}

	c.logger.Debug("scoring call completed",
		"score", result.Score,
		"elapsed", time.Since(start),
	)
	return result.Score, nil
}
