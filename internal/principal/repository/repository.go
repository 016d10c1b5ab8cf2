package repository

import (
	"context"
	"errors"

	"keyrotation-auth/internal/principal/domain"
)

// ErrDuplicatePhone is returned by Create when the phone is already registered.
var ErrDuplicatePhone = errors.New("principal with this phone already exists")

// Repository defines persistence for principals.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Principal, error)
	Create(ctx context.Context, p *domain.Principal) error
	// UpdateSigningKey replaces the key unconditionally. Returns rows affected.
	UpdateSigningKey(ctx context.Context, id, key string, updatedAt int64) (int64, error)
	// SwapSigningKey replaces the key only if it still equals current. Returns rows affected.
	SwapSigningKey(ctx context.Context, id, current, next string, updatedAt int64) (int64, error)
}
