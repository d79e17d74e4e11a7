package service

import (
	"context"
	"time"

	"payflow/internal/audit"
	"payflow/internal/events"
	"payflow/internal/payment/models"
	"payflow/internal/payment/store"
)

// Expirer periodically moves overdue pending and authorized transactions to
// expired, through the same transition path as the orchestration so each
// expiry produces its audit entry and domain event.
type Expirer struct {
	service  *Service
	interval time.Duration
	batch    int
}

// NewExpirer creates an expiry worker scanning at the given interval.
func NewExpirer(service *Service, interval time.Duration, batch int) *Expirer {
	if batch <= 0 {
		batch = 100
	}
	return &Expirer{service: service, interval: interval, batch: batch}
}

func (e *Expirer) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			e.sweep(ctx, now.UTC())
		}
	}
}

func (e *Expirer) sweep(ctx context.Context, now time.Time) {
	s := e.service

	txns, err := s.store.ListExpirable(ctx, now, e.batch)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry scan failed", "error", err)
		return
	}

	for _, txn := range txns {
		if _, err := s.transition(ctx, txn, models.StatusExpired, store.ProviderRef{}, transitionEvents{
			auditType: audit.EventPaymentExpired,
			eventName: events.PaymentExpired,
			payload:   map[string]any{"expired_at": now.Format(time.RFC3339)},
		}); err != nil {
			// A concurrent capture or failure can win the race; that is fine.
			s.logger.WarnContext(ctx, "expiry transition skipped",
				"transaction_id", txn.ID, "error", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.ExpiredTotal.Inc()
		}
		s.logger.InfoContext(ctx, "transaction expired", "transaction_id", txn.ID)
	}
}
