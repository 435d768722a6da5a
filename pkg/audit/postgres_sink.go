package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx used by PostgresSink
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
}

// PostgresSink writes events to the audit_logs table
type PostgresSink struct {
	db DBTX
}

func NewPostgresSink(db DBTX) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Write(ctx context.Context, e Event) error {
	metadata := []byte("{}")
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
		metadata = b
	}

	var accountID *uuid.UUID
	if e.AccountID != uuid.Nil {
		accountID = &e.AccountID
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_logs (id, account_id, event_type, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), accountID, e.EventType, e.Description, metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}
