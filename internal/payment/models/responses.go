package models

import "time"

// PaymentResponse is returned by the process endpoint once the workflow ends.
type PaymentResponse struct {
	TransactionID   string         `json:"transaction_id"`
	Status          PaymentStatus  `json:"status"`
	Amount          int64          `json:"amount_cents"`
	Currency        string         `json:"currency"`
	PaymentMethod   PaymentMethod  `json:"payment_method"`
	CardLastFour    string         `json:"card_last_four,omitempty"`
	AuthorizationID string         `json:"authorization_id,omitempty"`
	CaptureID       string         `json:"capture_id,omitempty"`
	Description     string         `json:"description,omitempty"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ExpiresAt       time.Time      `json:"expires_at"`
}

// RefundResponse is returned by the refund endpoint.
type RefundResponse struct {
	RefundID         string         `json:"refund_id"`
	TransactionID    string         `json:"transaction_id"`
	Amount           int64          `json:"amount_cents"`
	Currency         string         `json:"currency"`
	Status           RefundStatus   `json:"status"`
	Reason           string         `json:"reason,omitempty"`
	ExternalRefundID string         `json:"external_refund_id,omitempty"`
	Metadata         map[string]any `json:"metadata"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty"`
}
