package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBLogger implements audit logging to PostgreSQL
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}
	return logger, nil
}

// ensureTable creates the audit_logs table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id VARCHAR(255),
		tenant_id VARCHAR(255),
		subject_id VARCHAR(255),
		role VARCHAR(100),
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant_id ON audit_logs(tenant_id);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, event_type, status,
			user_id, tenant_id, subject_id, role,
			request_id, method, path, reason
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11
		) RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.UserID, event.TenantID, event.SubjectID, event.Role,
		event.RequestID, event.Method, event.Path, event.Reason,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Search retrieves audit events filtered by user, tenant or event
// type, newest first.
type SearchFilter struct {
	UserID    string
	TenantID  string
	EventType EventType
	Limit     int
}

// Search queries the audit log.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]Event, error) {
	query := `
		SELECT id, timestamp, event_type, status,
		       user_id, tenant_id, subject_id, role,
		       request_id, method, path, reason
		FROM audit_logs
		WHERE ($1 = '' OR user_id = $1)
		  AND ($2 = '' OR tenant_id = $2)
		  AND ($3 = '' OR event_type = $3)
		ORDER BY timestamp DESC
		LIMIT $4
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, query, filter.UserID, filter.TenantID, string(filter.EventType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var userID, tenantID, subjectID, role, requestID, method, path, reason sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.Status,
			&userID, &tenantID, &subjectID, &role,
			&requestID, &method, &path, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		e.UserID = userID.String
		e.TenantID = tenantID.String
		e.SubjectID = subjectID.String
		e.Role = role.String
		e.RequestID = requestID.String
		e.Method = method.String
		e.Path = path.String
		e.Reason = reason.String
		events = append(events, e)
	}
	return events, rows.Err()
}
