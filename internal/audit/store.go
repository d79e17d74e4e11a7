package audit

import "context"

// Store is an append-only audit sink with query access for reconstructing
// what happened to an entity or a request.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]Event, error)
	ListByCorrelation(ctx context.Context, correlationID string) ([]Event, error)
}
