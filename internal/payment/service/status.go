package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"payflow/internal/payment/models"
	dErrors "payflow/pkg/domain-errors"
	"payflow/pkg/platform/sentinel"
	"payflow/pkg/requestcontext"
)

// Status returns the cached status snapshot for a transaction, falling
// through to the store and refreshing the cache on a miss.
func (s *Service) Status(ctx context.Context, transactionID string) (*models.StatusSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "payment.status")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))

	snapshot, err := s.cache.Get(ctx, transactionID)
	if err != nil {
		s.logger.WarnContext(ctx, "status cache read failed",
			"transaction_id", transactionID, "error", err)
	}
	if snapshot != nil {
		if s.metrics != nil {
			s.metrics.CacheHits.Inc()
		}
		return scopeSnapshot(ctx, snapshot)
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "transaction not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transaction")
	}

	fresh := txn.Snapshot()
	if err := s.cache.Set(ctx, fresh); err != nil {
		s.logger.WarnContext(ctx, "status cache refresh failed",
			"transaction_id", transactionID, "error", err)
	}
	return scopeSnapshot(ctx, &fresh)
}

// scopeSnapshot hides transactions that belong to a different merchant than
// the authenticated one. They are reported as missing, not forbidden, so the
// API does not leak which transaction ids exist.
func scopeSnapshot(ctx context.Context, snapshot *models.StatusSnapshot) (*models.StatusSnapshot, error) {
	if authenticated := requestcontext.MerchantID(ctx); authenticated != "" && authenticated != snapshot.MerchantID {
		return nil, dErrors.New(dErrors.CodeNotFound, "transaction not found")
	}
	return snapshot, nil
}
