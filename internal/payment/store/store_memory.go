package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"payflow/internal/payment/models"
	"payflow/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store used in tests and for running the service
// without PostgreSQL. It mirrors the PostgresStore guard semantics exactly,
// including compare-and-set transitions under concurrency.
type MemoryStore struct {
	mu           sync.Mutex
	transactions map[string]*models.Transaction
	refunds      map[string]*models.Refund
}

// NewMemory constructs an empty in-memory payment store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*models.Transaction),
		refunds:      make(map[string]*models.Refund),
	}
}

func (s *MemoryStore) CreateTransaction(_ context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[txn.ID]; ok {
		return fmt.Errorf("create transaction %s: %w", txn.ID, sentinel.ErrConflict)
	}
	clone := *txn
	s.transactions[txn.ID] = &clone
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, transactionID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[transactionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *txn
	return &clone, nil
}

func (s *MemoryStore) TransitionTransaction(_ context.Context, transactionID string, from, to models.PaymentStatus, ref ProviderRef) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[transactionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if txn.Status != from {
		return nil, fmt.Errorf("transaction %s in status %s: %w", transactionID, txn.Status, sentinel.ErrInvalidState)
	}
	txn.Status = to
	if ref.AuthorizationID != "" {
		txn.AuthorizationID = ref.AuthorizationID
	}
	if ref.CaptureID != "" {
		txn.CaptureID = ref.CaptureID
	}
	txn.UpdatedAt = time.Now().UTC()
	clone := *txn
	return &clone, nil
}

func (s *MemoryStore) ListExpirable(_ context.Context, now time.Time, limit int) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var txns []*models.Transaction
	for _, txn := range s.transactions {
		if txn.Status != models.StatusPending && txn.Status != models.StatusAuthorized {
			continue
		}
		if txn.ExpiresAt.After(now) {
			continue
		}
		clone := *txn
		txns = append(txns, &clone)
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].ExpiresAt.Before(txns[j].ExpiresAt) })
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

func (s *MemoryStore) CreateRefund(_ context.Context, refund *models.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[refund.TransactionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if txn.Status != models.StatusCaptured {
		return fmt.Errorf("transaction %s in status %s: %w", txn.ID, txn.Status, sentinel.ErrInvalidState)
	}
	if refund.Amount > txn.Amount-s.reservedRefundTotalLocked(refund.TransactionID) {
		return fmt.Errorf("refund exceeds refundable balance of %s: %w", txn.ID, sentinel.ErrConflict)
	}
	if _, ok := s.refunds[refund.ID]; ok {
		return fmt.Errorf("create refund %s: %w", refund.ID, sentinel.ErrConflict)
	}
	clone := *refund
	s.refunds[refund.ID] = &clone
	return nil
}

func (s *MemoryStore) GetRefund(_ context.Context, refundID string) (*models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refund, ok := s.refunds[refundID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *refund
	return &clone, nil
}

func (s *MemoryStore) TransitionRefund(_ context.Context, refundID string, from, to models.RefundStatus, externalRefundID string, processedAt *time.Time) (*models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refund, ok := s.refunds[refundID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if refund.Status != from {
		return nil, fmt.Errorf("refund %s in status %s: %w", refundID, refund.Status, sentinel.ErrInvalidState)
	}
	refund.Status = to
	if externalRefundID != "" {
		refund.ExternalRefundID = externalRefundID
	}
	if processedAt != nil {
		refund.ProcessedAt = processedAt
	}
	refund.UpdatedAt = time.Now().UTC()
	clone := *refund
	return &clone, nil
}

func (s *MemoryStore) CompletedRefundTotal(_ context.Context, transactionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completedRefundTotalLocked(transactionID), nil
}

func (s *MemoryStore) completedRefundTotalLocked(transactionID string) int64 {
	var total int64
	for _, refund := range s.refunds {
		if refund.TransactionID == transactionID && refund.Status == models.RefundCompleted {
			total += refund.Amount
		}
	}
	return total
}

func (s *MemoryStore) ReservedRefundTotal(_ context.Context, transactionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reservedRefundTotalLocked(transactionID), nil
}

func (s *MemoryStore) reservedRefundTotalLocked(transactionID string) int64 {
	var total int64
	for _, refund := range s.refunds {
		if refund.TransactionID != transactionID {
			continue
		}
		switch refund.Status {
		case models.RefundPending, models.RefundProcessing, models.RefundCompleted:
			total += refund.Amount
		}
	}
	return total
}
