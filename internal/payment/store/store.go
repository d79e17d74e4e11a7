package store

import (
	"context"
	"time"

	"payflow/internal/payment/models"
)

// ProviderRef carries the bank-issued references persisted with a transition.
// Empty fields leave the stored value untouched.
type ProviderRef struct {
	AuthorizationID string
	CaptureID       string
}

// Store is the persistence contract for transactions and refunds. It is
// interface-driven so the orchestration stays testable and the postgres and
// in-memory implementations stay swappable.
//
// Transition methods are compare-and-set on the current status: they return
// sentinel.ErrInvalidState when the stored status no longer matches the
// expected one, which is what keeps the status graph monotonic under
// concurrent writers.
type Store interface {
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error)
	TransitionTransaction(ctx context.Context, transactionID string, from, to models.PaymentStatus, ref ProviderRef) (*models.Transaction, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]*models.Transaction, error)

	// CreateRefund inserts a pending refund only when the parent transaction
	// is captured and the amount fits the unreserved refundable balance.
	// Returns sentinel.ErrNotFound, sentinel.ErrInvalidState or
	// sentinel.ErrConflict respectively when those guards fail.
	CreateRefund(ctx context.Context, refund *models.Refund) error
	GetRefund(ctx context.Context, refundID string) (*models.Refund, error)
	TransitionRefund(ctx context.Context, refundID string, from, to models.RefundStatus, externalRefundID string, processedAt *time.Time) (*models.Refund, error)
	CompletedRefundTotal(ctx context.Context, transactionID string) (int64, error)

	// ReservedRefundTotal sums the refunds currently holding refundable
	// balance: pending and processing refunds reserve their amount the moment
	// they are created, completed ones hold it permanently. Failed and
	// cancelled refunds release it. This total is what CreateRefund guards
	// against, so a refund in flight at the bank blocks a second refund of
	// the same balance.
	ReservedRefundTotal(ctx context.Context, transactionID string) (int64, error)
}
