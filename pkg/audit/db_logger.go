package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const insertEvent = `
	INSERT INTO audit_events (
		id, occurred_at, event_type, status,
		actor_id, actor_role, organization_id,
		resource_type, resource_id, operation,
		rule, reason, request_id,
		message, error_message, metadata
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

// DBLogger inserts events into the audit_events table created by
// migrations/001_orgscope.sql. The database handle belongs to the caller.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger verifies that audit_events exists and returns a logger for it
func NewDBLogger(ctx context.Context, db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}

	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT to_regclass('audit_events') IS NOT NULL`).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up audit_events: %w", err)
	}
	if !exists {
		return nil, errors.New("audit_events table does not exist; apply migrations first")
	}
	return &DBLogger{db: db}, nil
}

// nullable stores empty strings as NULL
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Log implements Logger
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(event.Metadata); err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
	}

	_, err := l.db.ExecContext(ctx, insertEvent,
		event.ID, event.Timestamp, string(event.EventType), string(event.Status),
		nullable(event.ActorID), nullable(event.ActorRole), nullable(event.OrganizationID),
		nullable(event.ResourceType), nullable(event.ResourceID), nullable(event.Operation),
		nullable(event.Rule), nullable(event.Reason), nullable(event.RequestID),
		nullable(event.Message), nullable(event.ErrorMessage), metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close implements Logger
func (l *DBLogger) Close() error {
	return nil
}
