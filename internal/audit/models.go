package audit

import "time"

// Event is emitted from domain logic to capture key payment actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp     time.Time
	EventType     string
	EntityType    string
	EntityID      string
	MerchantID    string
	CorrelationID string
	Data          map[string]any
}

// Entity types recorded in the audit trail.
const (
	EntityTransaction = "transaction"
	EntityRefund      = "refund"
)

// Event types. Status changes carry old_status/new_status in Data so the
// trail reconstructs the full lifecycle of a transaction.
const (
	EventPaymentCreated    = "payment_created"
	EventPaymentAuthorized = "payment_authorized"
	EventPaymentCaptured   = "payment_captured"
	EventPaymentFailed     = "payment_failed"
	EventPaymentExpired    = "payment_expired"

	EventRefundCreated    = "refund_created"
	EventRefundProcessing = "refund_processing"
	EventRefundCompleted  = "refund_completed"
	EventRefundFailed     = "refund_failed"
)
