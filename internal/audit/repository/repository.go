package repository

import (
	"context"

	"keyrotation-auth/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByPrincipal(ctx context.Context, principalID string, limit int) ([]*domain.AuditLog, error)
}
