package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"payflow/internal/audit"
	"payflow/internal/events"
	"payflow/internal/payment/models"
	dErrors "payflow/pkg/domain-errors"
	"payflow/pkg/platform/sentinel"
	"payflow/pkg/requestcontext"
)

// Refund runs the refund sub-workflow for a captured transaction. A nil
// request amount refunds the full remaining balance. The refund moves
// pending -> processing -> completed|failed, with one audit entry and one
// domain event per transition.
func (s *Service) Refund(ctx context.Context, transactionID string, req models.RefundRequest) (*models.Refund, error) {
	ctx, span := s.tracer.Start(ctx, "payment.refund")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "transaction not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transaction")
	}
	if authenticated := requestcontext.MerchantID(ctx); authenticated != "" && authenticated != txn.MerchantID {
		return nil, dErrors.New(dErrors.CodeNotFound, "transaction not found")
	}
	if txn.Status != models.StatusCaptured {
		return nil, dErrors.New(dErrors.CodeInvalidState, "can only refund captured transactions")
	}

	// Reserved includes refunds still in flight at the bank, so a second
	// request cannot claim balance an earlier one already holds.
	reserved, err := s.store.ReservedRefundTotal(ctx, transactionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute refunded total")
	}
	remaining := txn.Amount - reserved
	if remaining <= 0 {
		return nil, dErrors.New(dErrors.CodeConflict, "no refundable balance remains")
	}

	amount := remaining
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount > remaining {
		return nil, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("refund amount exceeds remaining balance of %d", remaining))
	}

	now := requestcontext.Now(ctx).UTC()
	refund := &models.Refund{
		ID:            models.NewRefundID(),
		TransactionID: transactionID,
		Amount:        amount,
		Currency:      txn.Currency,
		Status:        models.RefundPending,
		Reason:        req.Reason,
		Metadata:      req.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.logger.InfoContext(ctx, "processing refund",
		"transaction_id", transactionID,
		"refund_id", refund.ID,
		"amount_cents", amount,
		"request_id", requestcontext.CorrelationID(ctx),
	)

	if err := s.store.CreateRefund(ctx, refund); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "transaction not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidState, "can only refund captured transactions")
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "refund amount exceeds remaining balance")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create refund")
		}
	}
	s.recordRefundCreated(ctx, txn, refund)

	refund, err = s.transitionRefund(ctx, txn, refund, models.RefundProcessing, "", nil, transitionEvents{
		auditType: audit.EventRefundProcessing,
		eventName: events.RefundProcessing,
	})
	if err != nil {
		return nil, err
	}

	result, bankErr := s.bank.Refund(ctx, transactionID, amount)
	if bankErr != nil {
		if _, failErr := s.transitionRefund(ctx, txn, refund, models.RefundFailed, "", nil, transitionEvents{
			auditType: audit.EventRefundFailed,
			eventName: events.RefundFailed,
			payload:   map[string]any{"failure_reason": "bank_unavailable"},
		}); failErr != nil {
			s.logger.ErrorContext(ctx, "failed to record refund failure",
				"refund_id", refund.ID, "error", failErr)
		}
		s.observeRefund(models.RefundFailed, start)
		return nil, dErrors.Wrap(bankErr, dErrors.CodeUnavailable, "banking service unavailable")
	}

	processedAt := time.Now().UTC()
	refund, err = s.transitionRefund(ctx, txn, refund, models.RefundCompleted, result.RefundID, &processedAt, transitionEvents{
		auditType: audit.EventRefundCompleted,
		eventName: events.RefundCompleted,
	})
	if err != nil {
		return nil, err
	}

	s.observeRefund(refund.Status, start)
	s.logger.InfoContext(ctx, "refund processed",
		"refund_id", refund.ID,
		"status", refund.Status,
		"request_id", requestcontext.CorrelationID(ctx),
	)
	return refund, nil
}

// transitionRefund mirrors transition for refund records: compare-and-set
// move plus exactly one audit entry and one domain event.
func (s *Service) transitionRefund(ctx context.Context, txn *models.Transaction, refund *models.Refund, to models.RefundStatus, externalRefundID string, processedAt *time.Time, ev transitionEvents) (*models.Refund, error) {
	from := refund.Status
	if !from.CanTransitionTo(to) {
		return nil, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("cannot transition refund from %s to %s", from, to))
	}

	updated, err := s.store.TransitionRefund(ctx, refund.ID, from, to, externalRefundID, processedAt)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "refund not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidState, "refund status changed concurrently")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update refund status")
		}
	}

	data := map[string]any{
		"old_status": string(from),
		"new_status": string(to),
	}
	for k, v := range ev.payload {
		data[k] = v
	}
	s.emitAudit(ctx, audit.Event{
		EventType:  ev.auditType,
		EntityType: audit.EntityRefund,
		EntityID:   updated.ID,
		MerchantID: txn.MerchantID,
		Data:       data,
	})
	s.publish(ctx, events.Event{
		Name:          ev.eventName,
		TransactionID: txn.ID,
		RefundID:      updated.ID,
		MerchantID:    txn.MerchantID,
		OldStatus:     string(from),
		NewStatus:     string(to),
		CorrelationID: requestcontext.CorrelationID(ctx),
		OccurredAt:    time.Now().UTC(),
		Payload:       ev.payload,
	})

	return updated, nil
}

func (s *Service) recordRefundCreated(ctx context.Context, txn *models.Transaction, refund *models.Refund) {
	s.emitAudit(ctx, audit.Event{
		EventType:  audit.EventRefundCreated,
		EntityType: audit.EntityRefund,
		EntityID:   refund.ID,
		MerchantID: txn.MerchantID,
		Data: map[string]any{
			"transaction_id": txn.ID,
			"amount_cents":   refund.Amount,
			"new_status":     string(refund.Status),
		},
	})
	s.publish(ctx, events.Event{
		Name:          events.RefundCreated,
		TransactionID: txn.ID,
		RefundID:      refund.ID,
		MerchantID:    txn.MerchantID,
		NewStatus:     string(refund.Status),
		CorrelationID: requestcontext.CorrelationID(ctx),
		OccurredAt:    time.Now().UTC(),
	})
}

func (s *Service) observeRefund(status models.RefundStatus, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveRefund(string(status), start)
	}
}
