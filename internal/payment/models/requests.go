package models

import (
	"strings"

	dErrors "payflow/pkg/domain-errors"
)

// CardData carries raw card details from the request. It is encrypted before
// persistence and never logged; only the last four digits survive in clear.
type CardData struct {
	CardNumber     string `json:"card_number"`
	ExpiryMonth    int    `json:"expiry_month"`
	ExpiryYear     int    `json:"expiry_year"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholder_name"`
}

// Normalize strips spaces and dashes from the card number in place.
func (c *CardData) Normalize() {
	var b strings.Builder
	for _, r := range c.CardNumber {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	c.CardNumber = b.String()
}

// Validate checks card fields after normalization.
func (c *CardData) Validate() error {
	if n := len(c.CardNumber); n < 13 || n > 19 {
		return dErrors.New(dErrors.CodeBadRequest, "invalid card number length")
	}
	if c.ExpiryMonth < 1 || c.ExpiryMonth > 12 {
		return dErrors.New(dErrors.CodeBadRequest, "invalid card expiry month")
	}
	if c.ExpiryYear < 2024 || c.ExpiryYear > 2050 {
		return dErrors.New(dErrors.CodeBadRequest, "invalid card expiry year")
	}
	if n := len(c.CVV); n < 3 || n > 4 {
		return dErrors.New(dErrors.CodeBadRequest, "invalid cvv")
	}
	if c.CardholderName == "" || len(c.CardholderName) > 100 {
		return dErrors.New(dErrors.CodeBadRequest, "invalid cardholder name")
	}
	return nil
}

// LastFour returns the trailing digits retained in clear for display.
func (c *CardData) LastFour() string {
	if len(c.CardNumber) < 4 {
		return c.CardNumber
	}
	return c.CardNumber[len(c.CardNumber)-4:]
}

// PaymentRequest is the POST /api/v1/payments/process body.
type PaymentRequest struct {
	MerchantID    string         `json:"merchant_id"`
	Amount        int64          `json:"amount_cents"`
	Currency      string         `json:"currency"`
	PaymentMethod PaymentMethod  `json:"payment_method"`
	CardData      *CardData      `json:"card_data,omitempty"`
	Description   string         `json:"description,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Validate normalizes and checks the request. Currency defaults to USD and is
// uppercased; merchant IDs are at least three chars of [A-Za-z0-9_].
func (r *PaymentRequest) Validate() error {
	if !validMerchantID(r.MerchantID) {
		return dErrors.New(dErrors.CodeBadRequest, "invalid merchant ID")
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	if r.Currency == "" {
		r.Currency = "USD"
	}
	r.Currency = strings.ToUpper(r.Currency)
	if !validCurrency(r.Currency) {
		return dErrors.New(dErrors.CodeBadRequest, "currency must be a 3-letter code")
	}
	if !r.PaymentMethod.Valid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid payment method")
	}
	if len(r.Description) > 500 {
		return dErrors.New(dErrors.CodeBadRequest, "description too long")
	}
	if r.CardData != nil {
		r.CardData.Normalize()
		if err := r.CardData.Validate(); err != nil {
			return err
		}
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	return nil
}

// RefundRequest is the POST /api/v1/payments/{id}/refund body. A nil amount
// requests the full remaining refundable balance.
type RefundRequest struct {
	Amount   *int64         `json:"amount_cents,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the refund request.
func (r *RefundRequest) Validate() error {
	if r.Amount != nil && *r.Amount <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "refund amount must be positive")
	}
	if len(r.Reason) > 100 {
		return dErrors.New(dErrors.CodeBadRequest, "reason too long")
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	return nil
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func validMerchantID(id string) bool {
	if len(id) < 3 || len(id) > 100 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
