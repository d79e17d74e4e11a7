package audit

import (
	"context"
	"time"

	"payflow/pkg/requestcontext"
)

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit appends one event, filling in the timestamp and the correlation id
// from the request context when the caller left them empty.
func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now().UTC()
	}
	if base.CorrelationID == "" {
		base.CorrelationID = requestcontext.CorrelationID(ctx)
	}
	return p.store.Append(ctx, base)
}

// ListByEntity returns the trail for one transaction or refund.
func (p *Publisher) ListByEntity(ctx context.Context, entityType, entityID string) ([]Event, error) {
	return p.store.ListByEntity(ctx, entityType, entityID)
}

// ListByCorrelation returns every event recorded under one request.
func (p *Publisher) ListByCorrelation(ctx context.Context, correlationID string) ([]Event, error) {
	return p.store.ListByCorrelation(ctx, correlationID)
}
