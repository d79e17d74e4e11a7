package models

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the lifecycle state of a transaction. Transactions are
// never deleted; terminal states end the soft lifecycle.
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusAuthorized PaymentStatus = "authorized"
	StatusCaptured   PaymentStatus = "captured"
	StatusFailed     PaymentStatus = "failed"
	StatusCancelled  PaymentStatus = "cancelled"
	StatusExpired    PaymentStatus = "expired"
)

// paymentTransitions encodes the allowed status graph. The success path is
// pending -> authorized -> captured; declines and capture failures end in
// failed, the expiry worker moves stale non-terminal transactions to expired.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	StatusPending:    {StatusAuthorized, StatusFailed, StatusCancelled, StatusExpired},
	StatusAuthorized: {StatusCaptured, StatusFailed, StatusExpired},
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
// Terminal states allow nothing.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s PaymentStatus) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAuthorized, StatusCaptured, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// RefundStatus is the lifecycle state of a refund.
type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundFailed     RefundStatus = "failed"
	RefundCancelled  RefundStatus = "cancelled"
)

var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundPending:    {RefundProcessing, RefundFailed, RefundCancelled},
	RefundProcessing: {RefundCompleted, RefundFailed},
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s RefundStatus) CanTransitionTo(next RefundStatus) bool {
	for _, allowed := range refundTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentMethod identifies how the payment is funded.
type PaymentMethod string

const (
	MethodCreditCard    PaymentMethod = "credit_card"
	MethodDebitCard     PaymentMethod = "debit_card"
	MethodBankTransfer  PaymentMethod = "bank_transfer"
	MethodDigitalWallet PaymentMethod = "digital_wallet"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCreditCard, MethodDebitCard, MethodBankTransfer, MethodDigitalWallet:
		return true
	}
	return false
}

// Transaction is the persisted payment record. Amounts are int64 minor units
// (cents) so refund-balance arithmetic stays exact. The transaction ID is
// immutable; only status and the provider references mutate, and only through
// the orchestration transitions.
type Transaction struct {
	ID                string
	MerchantID        string
	Amount            int64
	Currency          string
	Status            PaymentStatus
	PaymentMethod     PaymentMethod
	CardLastFour      string
	EncryptedCardData string
	AuthorizationID   string
	CaptureID         string
	Description       string
	Metadata          map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExpiresAt         time.Time
}

// Refund is a persisted refund record linked to exactly one transaction.
type Refund struct {
	ID               string
	TransactionID    string
	Amount           int64
	Currency         string
	Status           RefundStatus
	Reason           string
	ExternalRefundID string
	Metadata         map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ProcessedAt      *time.Time
}

// StatusSnapshot is the cached view of a transaction returned by status
// lookups. It mirrors the persisted record minus the encrypted card blob.
type StatusSnapshot struct {
	TransactionID   string         `json:"transaction_id"`
	MerchantID      string         `json:"merchant_id"`
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

// Snapshot builds the cacheable status view of a transaction.
func (t *Transaction) Snapshot() StatusSnapshot {
	meta := t.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return StatusSnapshot{
		TransactionID:   t.ID,
		MerchantID:      t.MerchantID,
		Status:          t.Status,
		Amount:          t.Amount,
		Currency:        t.Currency,
		PaymentMethod:   t.PaymentMethod,
		CardLastFour:    t.CardLastFour,
		AuthorizationID: t.AuthorizationID,
		CaptureID:       t.CaptureID,
		Description:     t.Description,
		Metadata:        meta,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		ExpiresAt:       t.ExpiresAt,
	}
}

// NewTransactionID generates the external transaction identifier (txn_ + 16 hex).
func NewTransactionID() string {
	return "txn_" + shortHex()
}

// NewRefundID generates the external refund identifier (ref_ + 16 hex).
func NewRefundID() string {
	return "ref_" + shortHex()
}

func shortHex() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}
