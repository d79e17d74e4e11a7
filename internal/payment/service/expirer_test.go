package service

import (
	"time"

	"payflow/internal/audit"
	"payflow/internal/events"
	"payflow/internal/payment/models"
	"payflow/internal/payment/store"
)

func (s *ServiceSuite) seedTransaction(status models.PaymentStatus, expiresAt time.Time) *models.Transaction {
	now := time.Now().UTC().Add(-time.Hour)
	txn := &models.Transaction{
		ID:            models.NewTransactionID(),
		MerchantID:    "merchant_001",
		Amount:        25_00,
		Currency:      "USD",
		Status:        status,
		PaymentMethod: models.MethodCreditCard,
		Metadata:      map[string]any{},
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     expiresAt,
	}
	s.Require().NoError(s.store.CreateTransaction(s.ctx, txn))
	return txn
}

func (s *ServiceSuite) TestSweepExpiresOverdueTransactions() {
	now := time.Now().UTC()
	pending := s.seedTransaction(models.StatusPending, now.Add(-time.Minute))
	authorized := s.seedTransaction(models.StatusAuthorized, now.Add(-time.Minute))

	expirer := NewExpirer(s.service, time.Minute, 100)
	expirer.sweep(s.ctx, now)

	for _, id := range []string{pending.ID, authorized.ID} {
		txn, err := s.store.GetTransaction(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.StatusExpired, txn.Status)

		trail, err := s.auditStore.ListByEntity(s.ctx, audit.EntityTransaction, id)
		s.Require().NoError(err)
		s.Require().Len(trail, 1)
		s.Equal(audit.EventPaymentExpired, trail[0].EventType)
		s.NotEmpty(trail[0].Data["expired_at"])
	}

	s.Require().Len(s.bus.History(), 2)
	for _, event := range s.bus.History() {
		s.Equal(events.PaymentExpired, event.Name)
		s.Equal("expired", event.NewStatus)
	}
}

func (s *ServiceSuite) TestSweepLeavesFreshAndTerminalAlone() {
	now := time.Now().UTC()
	fresh := s.seedTransaction(models.StatusPending, now.Add(time.Hour))
	captured := s.seedTransaction(models.StatusCaptured, now.Add(-time.Minute))
	failed := s.seedTransaction(models.StatusFailed, now.Add(-time.Minute))

	expirer := NewExpirer(s.service, time.Minute, 100)
	expirer.sweep(s.ctx, now)

	for id, want := range map[string]models.PaymentStatus{
		fresh.ID:    models.StatusPending,
		captured.ID: models.StatusCaptured,
		failed.ID:   models.StatusFailed,
	} {
		txn, err := s.store.GetTransaction(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(want, txn.Status)
	}
	s.Empty(s.bus.History())
}

func (s *ServiceSuite) TestSweepUpdatesStatusCache() {
	now := time.Now().UTC()
	txn := s.seedTransaction(models.StatusPending, now.Add(-time.Minute))

	expirer := NewExpirer(s.service, time.Minute, 100)
	expirer.sweep(s.ctx, now)

	snapshot, err := s.cache.Get(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Require().NotNil(snapshot)
	s.Equal(models.StatusExpired, snapshot.Status)
}

func (s *ServiceSuite) TestSweepSurvivesTransitionRace() {
	now := time.Now().UTC()
	txn := s.seedTransaction(models.StatusPending, now.Add(-time.Minute))

	// Another writer wins between the scan and the transition.
	stale := *txn
	_, err := s.store.TransitionTransaction(s.ctx, txn.ID, models.StatusPending, models.StatusFailed, store.ProviderRef{})
	s.Require().NoError(err)

	_, err = s.service.transition(s.ctx, &stale, models.StatusExpired, store.ProviderRef{}, transitionEvents{
		auditType: audit.EventPaymentExpired,
		eventName: events.PaymentExpired,
	})
	s.Require().Error(err, "losing the race must surface, not overwrite")

	got, err := s.store.GetTransaction(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, got.Status)
}
