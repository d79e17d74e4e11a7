// Package events fans out domain events describing payment and refund
// lifecycle changes. Consumers are other systems (settlement, notifications);
// the service itself never reads its own events back.
package events

import (
	"context"
	"time"
)

// Event names follow entity.action. Exactly one event is published per
// status transition, plus one for each created entity.
const (
	PaymentCreated    = "payment.created"
	PaymentAuthorized = "payment.authorized"
	PaymentCaptured   = "payment.captured"
	PaymentFailed     = "payment.failed"
	PaymentExpired    = "payment.expired"

	RefundCreated    = "refund.created"
	RefundProcessing = "refund.processing"
	RefundCompleted  = "refund.completed"
	RefundFailed     = "refund.failed"
)

// Event is the payload published to the bus. Payment events key and
// partition on TransactionID so per-transaction ordering holds.
type Event struct {
	Name          string         `json:"event"`
	TransactionID string         `json:"transaction_id"`
	RefundID      string         `json:"refund_id,omitempty"`
	MerchantID    string         `json:"merchant_id,omitempty"`
	OldStatus     string         `json:"old_status,omitempty"`
	NewStatus     string         `json:"new_status,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Refund reports whether the event belongs on the refund topic.
func (e Event) Refund() bool {
	return e.RefundID != ""
}

// Publisher delivers domain events. Publish must not block payment
// processing on consumer slowness; implementations buffer or fan out
// in-process.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close(ctx context.Context) error
}
