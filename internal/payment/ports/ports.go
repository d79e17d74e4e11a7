// Package ports defines the payment module's outbound interfaces. They are
// declared here, on the consumer side, so service tests can mock the bank and
// the event sinks without importing their implementations.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Bank,EventPublisher,AuditPublisher

import (
	"context"

	"payflow/internal/audit"
	"payflow/internal/banking"
	"payflow/internal/events"
)

// Bank is the external authorization/capture/refund provider.
type Bank interface {
	Authorize(ctx context.Context, req banking.AuthorizationRequest) (*banking.AuthorizationResult, error)
	Capture(ctx context.Context, authorizationID string) (*banking.CaptureResult, error)
	Refund(ctx context.Context, transactionID string, amountCents int64) (*banking.RefundResult, error)
}

// EventPublisher delivers domain events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// AuditPublisher records audit events for compliance.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
