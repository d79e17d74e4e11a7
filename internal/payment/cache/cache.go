package cache

import (
	"context"

	"payflow/internal/payment/models"
)

// StatusCache is a TTL cache of transaction status snapshots. A miss is not
// an error: Get returns (nil, nil) so callers fall through to the store.
// Writers overwrite unconditionally; the persisted record is always the
// source of truth.
type StatusCache interface {
	Get(ctx context.Context, transactionID string) (*models.StatusSnapshot, error)
	Set(ctx context.Context, snapshot models.StatusSnapshot) error
	Invalidate(ctx context.Context, transactionID string) error
}
