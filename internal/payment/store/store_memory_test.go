package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"payflow/internal/payment/models"
	"payflow/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) seedTransaction(status models.PaymentStatus, amount int64) *models.Transaction {
	now := time.Now().UTC()
	txn := &models.Transaction{
		ID:            models.NewTransactionID(),
		MerchantID:    "merchant_001",
		Amount:        amount,
		Currency:      "USD",
		Status:        status,
		PaymentMethod: models.MethodCreditCard,
		CardLastFour:  "1111",
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(24 * time.Hour),
	}
	s.Require().NoError(s.store.CreateTransaction(s.ctx, txn))
	return txn
}

func (s *MemoryStoreSuite) seedRefund(transactionID string, status models.RefundStatus, amount int64) *models.Refund {
	now := time.Now().UTC()
	refund := &models.Refund{
		ID:            models.NewRefundID(),
		TransactionID: transactionID,
		Amount:        amount,
		Currency:      "USD",
		Status:        models.RefundPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.Require().NoError(s.store.CreateRefund(s.ctx, refund))
	if status == models.RefundPending {
		return refund
	}
	updated, err := s.store.TransitionRefund(s.ctx, refund.ID, models.RefundPending, models.RefundProcessing, "", nil)
	s.Require().NoError(err)
	if status == models.RefundProcessing {
		return updated
	}
	updated, err = s.store.TransitionRefund(s.ctx, refund.ID, models.RefundProcessing, status, "bank_ref_1", &now)
	s.Require().NoError(err)
	return updated
}

func (s *MemoryStoreSuite) TestCreateTransaction() {
	s.Run("stores and reads back", func() {
		txn := s.seedTransaction(models.StatusPending, 10_00)

		got, err := s.store.GetTransaction(s.ctx, txn.ID)
		s.Require().NoError(err)
		s.Equal(txn.ID, got.ID)
		s.Equal(models.StatusPending, got.Status)
		s.Equal(int64(10_00), got.Amount)
	})

	s.Run("duplicate id conflicts", func() {
		txn := s.seedTransaction(models.StatusPending, 10_00)
		err := s.store.CreateTransaction(s.ctx, txn)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("unknown id not found", func() {
		_, err := s.store.GetTransaction(s.ctx, "txn_missing")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestTransitionTransaction() {
	s.Run("compare-and-set succeeds from expected status", func() {
		txn := s.seedTransaction(models.StatusPending, 10_00)

		got, err := s.store.TransitionTransaction(s.ctx, txn.ID, models.StatusPending, models.StatusAuthorized, ProviderRef{AuthorizationID: "auth_1"})
		s.Require().NoError(err)
		s.Equal(models.StatusAuthorized, got.Status)
		s.Equal("auth_1", got.AuthorizationID)
	})

	s.Run("provider refs accumulate across transitions", func() {
		txn := s.seedTransaction(models.StatusPending, 10_00)

		_, err := s.store.TransitionTransaction(s.ctx, txn.ID, models.StatusPending, models.StatusAuthorized, ProviderRef{AuthorizationID: "auth_1"})
		s.Require().NoError(err)
		got, err := s.store.TransitionTransaction(s.ctx, txn.ID, models.StatusAuthorized, models.StatusCaptured, ProviderRef{CaptureID: "cap_1"})
		s.Require().NoError(err)
		s.Equal("auth_1", got.AuthorizationID)
		s.Equal("cap_1", got.CaptureID)
	})

	s.Run("stale expected status rejected", func() {
		txn := s.seedTransaction(models.StatusPending, 10_00)
		_, err := s.store.TransitionTransaction(s.ctx, txn.ID, models.StatusPending, models.StatusFailed, ProviderRef{})
		s.Require().NoError(err)

		_, err = s.store.TransitionTransaction(s.ctx, txn.ID, models.StatusPending, models.StatusAuthorized, ProviderRef{})
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown transaction not found", func() {
		_, err := s.store.TransitionTransaction(s.ctx, "txn_missing", models.StatusPending, models.StatusAuthorized, ProviderRef{})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestCreateRefund() {
	s.Run("captured parent accepts refund", func() {
		txn := s.seedTransaction(models.StatusCaptured, 50_00)
		refund := s.seedRefund(txn.ID, models.RefundPending, 20_00)

		got, err := s.store.GetRefund(s.ctx, refund.ID)
		s.Require().NoError(err)
		s.Equal(models.RefundPending, got.Status)
	})

	s.Run("non-captured parent rejected", func() {
		txn := s.seedTransaction(models.StatusAuthorized, 50_00)
		err := s.store.CreateRefund(s.ctx, &models.Refund{
			ID:            models.NewRefundID(),
			TransactionID: txn.ID,
			Amount:        10_00,
			Currency:      "USD",
			Status:        models.RefundPending,
		})
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("missing parent not found", func() {
		err := s.store.CreateRefund(s.ctx, &models.Refund{
			ID:            models.NewRefundID(),
			TransactionID: "txn_missing",
			Amount:        10_00,
			Status:        models.RefundPending,
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("amount over remaining balance conflicts", func() {
		txn := s.seedTransaction(models.StatusCaptured, 50_00)
		s.seedRefund(txn.ID, models.RefundCompleted, 40_00)

		err := s.store.CreateRefund(s.ctx, &models.Refund{
			ID:            models.NewRefundID(),
			TransactionID: txn.ID,
			Amount:        20_00,
			Currency:      "USD",
			Status:        models.RefundPending,
		})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("exact remaining balance accepted", func() {
		txn := s.seedTransaction(models.StatusCaptured, 50_00)
		s.seedRefund(txn.ID, models.RefundCompleted, 40_00)
		s.seedRefund(txn.ID, models.RefundPending, 10_00)
	})

	s.Run("in-flight refund reserves balance", func() {
		txn := s.seedTransaction(models.StatusCaptured, 50_00)
		s.seedRefund(txn.ID, models.RefundProcessing, 30_00)

		err := s.store.CreateRefund(s.ctx, &models.Refund{
			ID:            models.NewRefundID(),
			TransactionID: txn.ID,
			Amount:        30_00,
			Currency:      "USD",
			Status:        models.RefundPending,
		})
		s.ErrorIs(err, sentinel.ErrConflict)

		s.seedRefund(txn.ID, models.RefundPending, 20_00)
	})

	s.Run("failed refund releases balance", func() {
		txn := s.seedTransaction(models.StatusCaptured, 50_00)
		s.seedRefund(txn.ID, models.RefundFailed, 50_00)
		s.seedRefund(txn.ID, models.RefundPending, 50_00)
	})
}

func (s *MemoryStoreSuite) TestCompletedRefundTotal() {
	txn := s.seedTransaction(models.StatusCaptured, 100_00)
	s.seedRefund(txn.ID, models.RefundCompleted, 30_00)
	s.seedRefund(txn.ID, models.RefundCompleted, 20_00)
	s.seedRefund(txn.ID, models.RefundFailed, 25_00)
	s.seedRefund(txn.ID, models.RefundPending, 10_00)

	total, err := s.store.CompletedRefundTotal(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(int64(50_00), total)
}

func (s *MemoryStoreSuite) TestListExpirable() {
	now := time.Now().UTC()

	stale := s.seedTransaction(models.StatusPending, 10_00)
	_, err := s.store.TransitionTransaction(s.ctx, stale.ID, models.StatusPending, models.StatusAuthorized, ProviderRef{})
	s.Require().NoError(err)
	s.store.mu.Lock()
	s.store.transactions[stale.ID].ExpiresAt = now.Add(-time.Hour)
	s.store.mu.Unlock()

	captured := s.seedTransaction(models.StatusCaptured, 10_00)
	s.store.mu.Lock()
	s.store.transactions[captured.ID].ExpiresAt = now.Add(-time.Hour)
	s.store.mu.Unlock()

	s.seedTransaction(models.StatusPending, 10_00) // fresh, not expirable yet

	txns, err := s.store.ListExpirable(s.ctx, now, 10)
	s.Require().NoError(err)
	s.Require().Len(txns, 1)
	s.Equal(stale.ID, txns[0].ID)
}

func (s *MemoryStoreSuite) TestConcurrentTransitions() {
	txn := s.seedTransaction(models.StatusPending, 10_00)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for range 20 {
		wg.Go(func() {
			_, err := s.store.TransitionTransaction(s.ctx, txn.ID, models.StatusPending, models.StatusAuthorized, ProviderRef{AuthorizationID: "auth_1"})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	s.Equal(1, winners)
	got, err := s.store.GetTransaction(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAuthorized, got.Status)
}

func (s *MemoryStoreSuite) TestConcurrentRefundBalance() {
	txn := s.seedTransaction(models.StatusCaptured, 100_00)
	s.seedRefund(txn.ID, models.RefundCompleted, 90_00)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	for range 20 {
		wg.Go(func() {
			err := s.store.CreateRefund(s.ctx, &models.Refund{
				ID:            models.NewRefundID(),
				TransactionID: txn.ID,
				Amount:        10_00,
				Currency:      "USD",
				Status:        models.RefundPending,
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	// Pending refunds reserve balance on insert, so only one claim on the
	// remaining 10.00 wins.
	s.Equal(1, accepted)
	reserved, err := s.store.ReservedRefundTotal(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(int64(100_00), reserved)
	total, err := s.store.CompletedRefundTotal(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(int64(90_00), total)
}
