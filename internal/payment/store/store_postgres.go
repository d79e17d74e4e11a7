package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"payflow/internal/payment/models"
	"payflow/pkg/platform/sentinel"
	txcontext "payflow/pkg/platform/tx"
)

// querier is satisfied by both pgxpool.Pool and pgx.Tx so store methods can
// join an ambient transaction smuggled through context.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists transactions and refunds in PostgreSQL.
// This store is pure I/O - transition legality and balance policy live in the
// service; the SQL only enforces the compare-and-set and balance guards that
// must hold under concurrent writers.
type PostgresStore struct {
	db querier
}

// NewPostgres constructs a PostgreSQL-backed payment store.
func NewPostgres(db querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const transactionColumns = `
	transaction_id, merchant_id, amount_cents, currency, status, payment_method,
	card_last_four, encrypted_card_data, authorization_id, capture_id,
	description, metadata, created_at, updated_at, expires_at
`

func (s *PostgresStore) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	metadata, err := json.Marshal(txn.Metadata)
	if err != nil {
		return fmt.Errorf("marshal transaction metadata: %w", err)
	}

	query := `
		INSERT INTO transactions (
			transaction_id, merchant_id, amount_cents, currency, status, payment_method,
			card_last_four, encrypted_card_data, description, metadata,
			created_at, updated_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.execer(ctx).Exec(ctx, query,
		txn.ID,
		txn.MerchantID,
		txn.Amount,
		txn.Currency,
		string(txn.Status),
		string(txn.PaymentMethod),
		txn.CardLastFour,
		txn.EncryptedCardData,
		txn.Description,
		metadata,
		txn.CreatedAt,
		txn.UpdatedAt,
		txn.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("create transaction %s: %w", txn.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1`
	txn, err := scanTransaction(s.execer(ctx).QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return txn, nil
}

// TransitionTransaction performs the compare-and-set status update. Provider
// references are only overwritten when non-empty so an authorization id
// survives the capture transition.
func (s *PostgresStore) TransitionTransaction(ctx context.Context, transactionID string, from, to models.PaymentStatus, ref ProviderRef) (*models.Transaction, error) {
	query := `
		UPDATE transactions
		SET status = $3,
		    authorization_id = COALESCE(NULLIF($4, ''), authorization_id),
		    capture_id = COALESCE(NULLIF($5, ''), capture_id),
		    updated_at = $6
		WHERE transaction_id = $1 AND status = $2
		RETURNING ` + transactionColumns
	txn, err := scanTransaction(s.execer(ctx).QueryRow(ctx, query,
		transactionID, string(from), string(to), ref.AuthorizationID, ref.CaptureID, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.transitionMiss(ctx, transactionID)
		}
		return nil, fmt.Errorf("transition transaction: %w", err)
	}
	return txn, nil
}

// transitionMiss disambiguates a failed compare-and-set: missing row vs
// status moved underneath us.
func (s *PostgresStore) transitionMiss(ctx context.Context, transactionID string) error {
	var status string
	err := s.execer(ctx).QueryRow(ctx,
		`SELECT status FROM transactions WHERE transaction_id = $1`, transactionID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("inspect transaction status: %w", err)
	}
	return fmt.Errorf("transaction %s in status %s: %w", transactionID, status, sentinel.ErrInvalidState)
}

func (s *PostgresStore) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status IN ('pending', 'authorized') AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`
	rows, err := s.execer(ctx).Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expirable transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expirable transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// CreateRefund inserts the refund only when the parent is captured and the
// amount fits the balance not already held by completed or in-flight
// refunds. The guard runs inside the INSERT so concurrent refunds cannot
// overdraw the transaction, including while an earlier refund is still at
// the bank.
func (s *PostgresStore) CreateRefund(ctx context.Context, refund *models.Refund) error {
	metadata, err := json.Marshal(refund.Metadata)
	if err != nil {
		return fmt.Errorf("marshal refund metadata: %w", err)
	}

	query := `
		INSERT INTO refunds (
			refund_id, transaction_id, amount_cents, currency, status, reason, metadata,
			created_at, updated_at
		)
		SELECT $1, t.transaction_id, $3, $4, $5, $6, $7, $8, $8
		FROM transactions t
		WHERE t.transaction_id = $2
		  AND t.status = 'captured'
		  AND t.amount_cents - COALESCE((
		        SELECT SUM(r.amount_cents) FROM refunds r
		        WHERE r.transaction_id = t.transaction_id
		          AND r.status IN ('pending', 'processing', 'completed')
		      ), 0) >= $3
	`
	tag, err := s.execer(ctx).Exec(ctx, query,
		refund.ID,
		refund.TransactionID,
		refund.Amount,
		refund.Currency,
		string(refund.Status),
		refund.Reason,
		metadata,
		refund.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.refundGuardMiss(ctx, refund.TransactionID)
	}
	return nil
}

func (s *PostgresStore) refundGuardMiss(ctx context.Context, transactionID string) error {
	var status string
	err := s.execer(ctx).QueryRow(ctx,
		`SELECT status FROM transactions WHERE transaction_id = $1`, transactionID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("inspect transaction status: %w", err)
	}
	if models.PaymentStatus(status) != models.StatusCaptured {
		return fmt.Errorf("transaction %s in status %s: %w", transactionID, status, sentinel.ErrInvalidState)
	}
	return fmt.Errorf("refund exceeds refundable balance of %s: %w", transactionID, sentinel.ErrConflict)
}

const refundColumns = `
	refund_id, transaction_id, amount_cents, currency, status, reason,
	external_refund_id, metadata, created_at, updated_at, processed_at
`

func (s *PostgresStore) GetRefund(ctx context.Context, refundID string) (*models.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE refund_id = $1`
	refund, err := scanRefund(s.execer(ctx).QueryRow(ctx, query, refundID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get refund: %w", err)
	}
	return refund, nil
}

func (s *PostgresStore) TransitionRefund(ctx context.Context, refundID string, from, to models.RefundStatus, externalRefundID string, processedAt *time.Time) (*models.Refund, error) {
	query := `
		UPDATE refunds
		SET status = $3,
		    external_refund_id = COALESCE(NULLIF($4, ''), external_refund_id),
		    processed_at = COALESCE($5, processed_at),
		    updated_at = $6
		WHERE refund_id = $1 AND status = $2
		RETURNING ` + refundColumns
	refund, err := scanRefund(s.execer(ctx).QueryRow(ctx, query,
		refundID, string(from), string(to), externalRefundID, processedAt, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.refundTransitionMiss(ctx, refundID)
		}
		return nil, fmt.Errorf("transition refund: %w", err)
	}
	return refund, nil
}

func (s *PostgresStore) refundTransitionMiss(ctx context.Context, refundID string) error {
	var status string
	err := s.execer(ctx).QueryRow(ctx,
		`SELECT status FROM refunds WHERE refund_id = $1`, refundID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("inspect refund status: %w", err)
	}
	return fmt.Errorf("refund %s in status %s: %w", refundID, status, sentinel.ErrInvalidState)
}

func (s *PostgresStore) CompletedRefundTotal(ctx context.Context, transactionID string) (int64, error) {
	var total int64
	err := s.execer(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM refunds
		WHERE transaction_id = $1 AND status = 'completed'
	`, transactionID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum completed refunds: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) ReservedRefundTotal(ctx context.Context, transactionID string) (int64, error) {
	var total int64
	err := s.execer(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM refunds
		WHERE transaction_id = $1 AND status IN ('pending', 'processing', 'completed')
	`, transactionID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum reserved refunds: %w", err)
	}
	return total, nil
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var (
		txn      models.Transaction
		status   string
		method   string
		metadata []byte
	)
	err := row.Scan(
		&txn.ID,
		&txn.MerchantID,
		&txn.Amount,
		&txn.Currency,
		&status,
		&method,
		&txn.CardLastFour,
		&txn.EncryptedCardData,
		&txn.AuthorizationID,
		&txn.CaptureID,
		&txn.Description,
		&metadata,
		&txn.CreatedAt,
		&txn.UpdatedAt,
		&txn.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	txn.Status = models.PaymentStatus(status)
	txn.PaymentMethod = models.PaymentMethod(method)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &txn.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal transaction metadata: %w", err)
		}
	}
	return &txn, nil
}

func scanRefund(row pgx.Row) (*models.Refund, error) {
	var (
		refund   models.Refund
		status   string
		metadata []byte
	)
	err := row.Scan(
		&refund.ID,
		&refund.TransactionID,
		&refund.Amount,
		&refund.Currency,
		&status,
		&refund.Reason,
		&refund.ExternalRefundID,
		&metadata,
		&refund.CreatedAt,
		&refund.UpdatedAt,
		&refund.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	refund.Status = models.RefundStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &refund.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal refund metadata: %w", err)
		}
	}
	return &refund, nil
}
