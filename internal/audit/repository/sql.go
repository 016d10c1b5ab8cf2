package repository

import (
	"context"
	"database/sql"

	"keyrotation-auth/internal/audit/domain"
	"keyrotation-auth/internal/db"
)

type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns an audit log repository over conn.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: conn, dialect: dialect}
}

// Create persists the audit log. The entry must have ID set.
func (r *SQLRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`INSERT INTO audit_logs (id, principal_id, action, outcome, ip, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		a.ID,
		sql.NullString{String: a.PrincipalID, Valid: a.PrincipalID != ""},
		a.Action, a.Outcome, a.IP,
		sql.NullString{String: a.Metadata, Valid: a.Metadata != ""},
		a.CreatedAt,
	)
	return err
}

// ListByPrincipal returns the newest entries for principalID, at most limit.
func (r *SQLRepository) ListByPrincipal(ctx context.Context, principalID string, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`SELECT id, principal_id, action, outcome, ip, metadata, created_at
		FROM audit_logs WHERE principal_id = ? ORDER BY created_at DESC, id LIMIT ?`), principalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a         domain.AuditLog
			pid, meta sql.NullString
		)
		if err := rows.Scan(&a.ID, &pid, &a.Action, &a.Outcome, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.PrincipalID = pid.String
		a.Metadata = meta.String
		out = append(out, &a)
	}
	return out, rows.Err()
}
