// Package banking is the HTTP client for the external authorization,
// capture, and refund service. Declines are results, not errors: a 402 from
// the bank is a terminal business outcome the caller records, while transport
// failures and 5xx responses surface as unavailability.
package banking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"payflow/internal/platform/config"
	"payflow/internal/platform/middleware"
	"payflow/pkg/platform/sentinel"
	"payflow/pkg/requestcontext"
)

// AuthorizationRequest carries everything the bank needs to authorize a
// payment. Card fields travel in plaintext only on this internal hop.
type AuthorizationRequest struct {
	TransactionID  string `json:"transaction_id"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
	CardNumber     string `json:"card_number,omitempty"`
	ExpiryMonth    int    `json:"expiry_month,omitempty"`
	ExpiryYear     int    `json:"expiry_year,omitempty"`
	CVV            string `json:"cvv,omitempty"`
	CardholderName string `json:"cardholder_name,omitempty"`
}

// AuthorizationResult is the outcome of an authorization attempt.
type AuthorizationResult struct {
	Approved        bool
	AuthorizationID string
	DeclineCode     string
	Message         string
}

// CaptureResult is the outcome of capturing an authorized payment.
type CaptureResult struct {
	CaptureID string
}

// RefundResult is the bank's reference for a processed refund.
type RefundResult struct {
	RefundID string
}

// Client talks to the banking API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
}

// NewClient creates a banking API client.
func NewClient(cfg config.BankingConfig, logger *slog.Logger, metrics *Metrics) *Client {
	return &Client{
		baseURL:    cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

type authorizeResponse struct {
	Status          string `json:"status"`
	AuthorizationID string `json:"authorization_id"`
	DeclineCode     string `json:"decline_code"`
	Message         string `json:"message"`
}

// Authorize asks the bank to place a hold for the payment. A 402 response is
// returned as a declined result; there is no retry, a decline is final.
func (c *Client) Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResult, error) {
	start := time.Now()

	var resp authorizeResponse
	status, err := c.post(ctx, "/api/v1/authorize", req, &resp)
	if err != nil {
		c.metrics.ObserveRequest("authorize", "error", start)
		return nil, err
	}

	switch status {
	case http.StatusOK:
		c.metrics.ObserveRequest("authorize", "approved", start)
		c.logger.InfoContext(ctx, "payment authorized",
			"transaction_id", req.TransactionID,
			"authorization_id", resp.AuthorizationID,
			"request_id", requestcontext.CorrelationID(ctx),
		)
		return &AuthorizationResult{Approved: true, AuthorizationID: resp.AuthorizationID}, nil
	case http.StatusPaymentRequired:
		c.metrics.ObserveRequest("authorize", "declined", start)
		c.logger.WarnContext(ctx, "payment declined",
			"transaction_id", req.TransactionID,
			"decline_code", resp.DeclineCode,
			"request_id", requestcontext.CorrelationID(ctx),
		)
		message := resp.Message
		if message == "" {
			message = "payment declined"
		}
		return &AuthorizationResult{Approved: false, DeclineCode: resp.DeclineCode, Message: message}, nil
	default:
		c.metrics.ObserveRequest("authorize", "error", start)
		return nil, fmt.Errorf("banking authorize returned status %d: %w", status, sentinel.ErrUnavailable)
	}
}

type captureRequest struct {
	AuthorizationID string `json:"authorization_id"`
}

type captureResponse struct {
	Status    string `json:"status"`
	CaptureID string `json:"capture_id"`
}

// Capture settles a previously authorized payment.
func (c *Client) Capture(ctx context.Context, authorizationID string) (*CaptureResult, error) {
	start := time.Now()

	var resp captureResponse
	status, err := c.post(ctx, "/api/v1/capture", captureRequest{AuthorizationID: authorizationID}, &resp)
	if err != nil {
		c.metrics.ObserveRequest("capture", "error", start)
		return nil, err
	}
	if status != http.StatusOK {
		c.metrics.ObserveRequest("capture", "error", start)
		return nil, fmt.Errorf("banking capture returned status %d: %w", status, sentinel.ErrUnavailable)
	}

	c.metrics.ObserveRequest("capture", "captured", start)
	c.logger.InfoContext(ctx, "payment captured",
		"authorization_id", authorizationID,
		"capture_id", resp.CaptureID,
		"request_id", requestcontext.CorrelationID(ctx),
	)
	return &CaptureResult{CaptureID: resp.CaptureID}, nil
}

type refundRequest struct {
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
}

type refundResponse struct {
	Status   string `json:"status"`
	RefundID string `json:"refund_id"`
}

// Refund sends funds back to the cardholder for a captured payment.
func (c *Client) Refund(ctx context.Context, transactionID string, amountCents int64) (*RefundResult, error) {
	start := time.Now()

	var resp refundResponse
	status, err := c.post(ctx, "/api/v1/refund", refundRequest{TransactionID: transactionID, AmountCents: amountCents}, &resp)
	if err != nil {
		c.metrics.ObserveRequest("refund", "error", start)
		return nil, err
	}
	if status != http.StatusOK {
		c.metrics.ObserveRequest("refund", "error", start)
		return nil, fmt.Errorf("banking refund returned status %d: %w", status, sentinel.ErrUnavailable)
	}

	c.metrics.ObserveRequest("refund", "refunded", start)
	c.logger.InfoContext(ctx, "refund processed",
		"transaction_id", transactionID,
		"bank_refund_id", resp.RefundID,
		"request_id", requestcontext.CorrelationID(ctx),
	)
	return &RefundResult{RefundID: resp.RefundID}, nil
}

// Health probes the banking service.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("banking health check: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("banking health returned status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	return nil
}

// post sends a JSON request and decodes the JSON response body regardless of
// status so callers can read decline payloads. The HTTP status is returned
// for the caller to interpret.
func (c *Client) post(ctx context.Context, path string, payload, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal banking request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build banking request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if correlationID := requestcontext.CorrelationID(ctx); correlationID != "" {
		req.Header.Set(middleware.CorrelationHeader, correlationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("banking request %s: %w", path, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && resp.StatusCode < http.StatusInternalServerError {
			return 0, fmt.Errorf("decode banking response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
