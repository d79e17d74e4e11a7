package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists audit events in the audit_logs table.
type PostgresStore struct {
	db querier
}

func NewPostgres(db querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal audit event data: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO audit_logs (event_type, entity_type, entity_id, merchant_id, correlation_id, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.EventType, event.EntityType, event.EntityID, event.MerchantID, event.CorrelationID, data, event.Timestamp)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByEntity(ctx context.Context, entityType, entityID string) ([]Event, error) {
	return s.list(ctx, `
		SELECT event_type, entity_type, entity_id, merchant_id, correlation_id, event_data, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id
	`, entityType, entityID)
}

func (s *PostgresStore) ListByCorrelation(ctx context.Context, correlationID string) ([]Event, error) {
	return s.list(ctx, `
		SELECT event_type, entity_type, entity_id, merchant_id, correlation_id, event_data, created_at
		FROM audit_logs
		WHERE correlation_id = $1
		ORDER BY id
	`, correlationID)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var data []byte
		if err := rows.Scan(
			&event.EventType,
			&event.EntityType,
			&event.EntityID,
			&event.MerchantID,
			&event.CorrelationID,
			&data,
			&event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &event.Data); err != nil {
				return nil, fmt.Errorf("unmarshal audit event data: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
