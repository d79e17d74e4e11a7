// Package service orchestrates the payment workflow: validate, encrypt card
// data, persist a pending transaction, authorize and capture against the
// bank, and record every status transition with one audit entry and one
// domain event.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"payflow/internal/audit"
	"payflow/internal/banking"
	"payflow/internal/events"
	"payflow/internal/payment/cache"
	"payflow/internal/payment/metrics"
	"payflow/internal/payment/models"
	"payflow/internal/payment/ports"
	"payflow/internal/payment/secrets"
	"payflow/internal/payment/store"
	dErrors "payflow/pkg/domain-errors"
	"payflow/pkg/platform/sentinel"
	"payflow/pkg/requestcontext"
)

// Type aliases for shared interfaces.
type (
	Bank           = ports.Bank
	EventPublisher = ports.EventPublisher
	AuditPublisher = ports.AuditPublisher
)

// Service runs the payment orchestration.
type Service struct {
	store     store.Store
	cache     cache.StatusCache
	bank      Bank
	vault     *secrets.Vault
	publisher EventPublisher
	auditor   AuditPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	expiry    time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithEventPublisher(publisher EventPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithAuditPublisher(auditor AuditPublisher) Option {
	return func(s *Service) { s.auditor = auditor }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTransactionExpiry overrides the default 24h expiry window.
func WithTransactionExpiry(d time.Duration) Option {
	return func(s *Service) { s.expiry = d }
}

func New(st store.Store, statusCache cache.StatusCache, bank Bank, vault *secrets.Vault, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("payment store is required")
	}
	if statusCache == nil {
		return nil, fmt.Errorf("status cache is required")
	}
	if bank == nil {
		return nil, fmt.Errorf("banking client is required")
	}
	if vault == nil {
		return nil, fmt.Errorf("card vault is required")
	}

	svc := &Service{
		store:  st,
		cache:  statusCache,
		bank:   bank,
		vault:  vault,
		logger: slog.Default(),
		tracer: otel.Tracer("payflow/payment"),
		expiry: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Process runs the full workflow for one payment request. Declines are not
// errors: the returned transaction carries status failed and the caller
// reports it as a completed (unsuccessful) payment.
func (s *Service) Process(ctx context.Context, req models.PaymentRequest) (*models.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "payment.process")
	defer span.End()
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if authenticated := requestcontext.MerchantID(ctx); authenticated != "" && authenticated != req.MerchantID {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "merchant ID does not match credentials")
	}

	cardMethod := req.PaymentMethod == models.MethodCreditCard || req.PaymentMethod == models.MethodDebitCard
	if cardMethod && req.CardData == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "card data is required for card payments")
	}

	var encryptedCard, lastFour string
	if req.CardData != nil {
		encrypted, err := s.vault.EncryptCard(req.CardData)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to secure card data")
		}
		encryptedCard = encrypted
		lastFour = req.CardData.LastFour()
	}

	now := requestcontext.Now(ctx).UTC()
	txn := &models.Transaction{
		ID:                models.NewTransactionID(),
		MerchantID:        req.MerchantID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Status:            models.StatusPending,
		PaymentMethod:     req.PaymentMethod,
		CardLastFour:      lastFour,
		EncryptedCardData: encryptedCard,
		Description:       req.Description,
		Metadata:          req.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(s.expiry),
	}
	span.SetAttributes(
		attribute.String("transaction.id", txn.ID),
		attribute.String("merchant.id", txn.MerchantID),
	)

	s.logger.InfoContext(ctx, "processing payment",
		"transaction_id", txn.ID,
		"merchant_id", txn.MerchantID,
		"amount_cents", txn.Amount,
		"currency", txn.Currency,
		"request_id", requestcontext.CorrelationID(ctx),
	)

	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create transaction")
	}
	s.recordCreated(ctx, txn)

	txn, err := s.authorize(ctx, txn, &req)
	if err != nil {
		s.observePayment(models.StatusFailed, start)
		return nil, err
	}
	if txn.Status == models.StatusFailed {
		s.observePayment(models.StatusFailed, start)
		return txn, nil
	}

	txn, err = s.capture(ctx, txn)
	if err != nil {
		s.observePayment(models.StatusFailed, start)
		return nil, err
	}

	s.observePayment(txn.Status, start)
	s.logger.InfoContext(ctx, "payment processed",
		"transaction_id", txn.ID,
		"status", txn.Status,
		"request_id", requestcontext.CorrelationID(ctx),
	)
	return txn, nil
}

// authorize places the hold with the bank. A decline moves the transaction to
// failed and returns it; a transport failure also moves it to failed but
// surfaces an error since the outcome was never decided by the bank.
func (s *Service) authorize(ctx context.Context, txn *models.Transaction, req *models.PaymentRequest) (*models.Transaction, error) {
	authReq := banking.AuthorizationRequest{
		TransactionID: txn.ID,
		AmountCents:   txn.Amount,
		Currency:      txn.Currency,
	}
	if req.CardData != nil {
		authReq.CardNumber = req.CardData.CardNumber
		authReq.ExpiryMonth = req.CardData.ExpiryMonth
		authReq.ExpiryYear = req.CardData.ExpiryYear
		authReq.CVV = req.CardData.CVV
		authReq.CardholderName = req.CardData.CardholderName
	}

	result, err := s.bank.Authorize(ctx, authReq)
	if err != nil {
		if _, failErr := s.transition(ctx, txn, models.StatusFailed, store.ProviderRef{}, transitionEvents{
			auditType: audit.EventPaymentFailed,
			eventName: events.PaymentFailed,
			payload:   map[string]any{"failure_reason": "bank_unavailable"},
		}); failErr != nil {
			s.logger.ErrorContext(ctx, "failed to record authorization failure",
				"transaction_id", txn.ID, "error", failErr)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "banking service unavailable")
	}

	if !result.Approved {
		return s.transition(ctx, txn, models.StatusFailed, store.ProviderRef{}, transitionEvents{
			auditType: audit.EventPaymentFailed,
			eventName: events.PaymentFailed,
			payload: map[string]any{
				"failure_reason": "declined",
				"decline_code":   result.DeclineCode,
				"message":        result.Message,
			},
		})
	}

	return s.transition(ctx, txn, models.StatusAuthorized, store.ProviderRef{AuthorizationID: result.AuthorizationID}, transitionEvents{
		auditType: audit.EventPaymentAuthorized,
		eventName: events.PaymentAuthorized,
	})
}

// capture settles the authorized hold.
func (s *Service) capture(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	result, err := s.bank.Capture(ctx, txn.AuthorizationID)
	if err != nil {
		if _, failErr := s.transition(ctx, txn, models.StatusFailed, store.ProviderRef{}, transitionEvents{
			auditType: audit.EventPaymentFailed,
			eventName: events.PaymentFailed,
			payload:   map[string]any{"failure_reason": "capture_failed"},
		}); failErr != nil {
			s.logger.ErrorContext(ctx, "failed to record capture failure",
				"transaction_id", txn.ID, "error", failErr)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "banking service unavailable")
	}

	return s.transition(ctx, txn, models.StatusCaptured, store.ProviderRef{CaptureID: result.CaptureID}, transitionEvents{
		auditType: audit.EventPaymentCaptured,
		eventName: events.PaymentCaptured,
	})
}

// transitionEvents names the audit entry and domain event for one transition.
type transitionEvents struct {
	auditType string
	eventName string
	payload   map[string]any
}

// transition performs the compare-and-set status move, refreshes the cache,
// and emits exactly one audit entry and one domain event. Sink failures are
// logged, not propagated; the persisted status is already authoritative.
func (s *Service) transition(ctx context.Context, txn *models.Transaction, to models.PaymentStatus, ref store.ProviderRef, ev transitionEvents) (*models.Transaction, error) {
	from := txn.Status
	if !from.CanTransitionTo(to) {
		return nil, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("cannot transition from %s to %s", from, to))
	}

	updated, err := s.store.TransitionTransaction(ctx, txn.ID, from, to, ref)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "transaction not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidState, "transaction status changed concurrently")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update transaction status")
		}
	}

	if err := s.cache.Set(ctx, updated.Snapshot()); err != nil {
		s.logger.WarnContext(ctx, "status cache refresh failed",
			"transaction_id", updated.ID, "error", err)
	}

	correlationID := requestcontext.CorrelationID(ctx)
	data := map[string]any{
		"old_status": string(from),
		"new_status": string(to),
	}
	for k, v := range ev.payload {
		data[k] = v
	}
	s.emitAudit(ctx, audit.Event{
		EventType:  ev.auditType,
		EntityType: audit.EntityTransaction,
		EntityID:   updated.ID,
		MerchantID: updated.MerchantID,
		Data:       data,
	})
	s.publish(ctx, events.Event{
		Name:          ev.eventName,
		TransactionID: updated.ID,
		MerchantID:    updated.MerchantID,
		OldStatus:     string(from),
		NewStatus:     string(to),
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
		Payload:       ev.payload,
	})

	return updated, nil
}

// recordCreated emits the creation audit entry and event. Creation is not a
// transition, so there is no old status.
func (s *Service) recordCreated(ctx context.Context, txn *models.Transaction) {
	s.emitAudit(ctx, audit.Event{
		EventType:  audit.EventPaymentCreated,
		EntityType: audit.EntityTransaction,
		EntityID:   txn.ID,
		MerchantID: txn.MerchantID,
		Data: map[string]any{
			"amount_cents":   txn.Amount,
			"currency":       txn.Currency,
			"payment_method": string(txn.PaymentMethod),
			"new_status":     string(txn.Status),
		},
	})
	s.publish(ctx, events.Event{
		Name:          events.PaymentCreated,
		TransactionID: txn.ID,
		MerchantID:    txn.MerchantID,
		NewStatus:     string(txn.Status),
		CorrelationID: requestcontext.CorrelationID(ctx),
		OccurredAt:    time.Now().UTC(),
	})
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"event_type", event.EventType, "entity_id", event.EntityID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			"event", event.Name, "transaction_id", event.TransactionID, "error", err)
	}
}

func (s *Service) observePayment(status models.PaymentStatus, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObservePayment(string(status), start)
	}
}
