// Package keystore holds the durable per-principal current signing key.
//
// Rotation is a single-row update; there is no key history, so replacing the key is the only
// revocation primitive. Keys are always read from the database: a cache would let a request
// observe a key that a concurrent rotation has already discarded.
package keystore

import (
	"context"
	"fmt"
	"time"

	"keyrotation-auth/internal/principal/domain"
	"keyrotation-auth/internal/security"
)

// PrincipalRepository is the persistence the store needs.
type PrincipalRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	UpdateSigningKey(ctx context.Context, id, key string, updatedAt int64) (int64, error)
	SwapSigningKey(ctx context.Context, id, current, next string, updatedAt int64) (int64, error)
}

// Store reads and rotates principal signing keys.
type Store struct {
	repo   PrincipalRepository
	newKey func() (string, error)
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithKeyGenerator replaces the random key source. Used in tests.
func WithKeyGenerator(f func() (string, error)) Option {
	return func(s *Store) { s.newKey = f }
}

// WithClock sets the clock used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store over repo.
func New(repo PrincipalRepository, opts ...Option) *Store {
	s := &Store{repo: repo, newKey: security.NewSigningKey, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Lookup returns the principal row including its current key and status.
// Returns security.ErrPrincipalNotFound if there is no such principal.
func (s *Store) Lookup(ctx context.Context, principalID string) (*domain.Principal, error) {
	p, err := s.repo.GetByID(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("keystore: lookup principal: %w", err)
	}
	if p == nil {
		return nil, security.ErrPrincipalNotFound
	}
	return p, nil
}

// GetCurrentKey returns the principal's current signing key.
func (s *Store) GetCurrentKey(ctx context.Context, principalID string) (string, error) {
	p, err := s.Lookup(ctx, principalID)
	if err != nil {
		return "", err
	}
	return p.SigningKey, nil
}

// RotateKey replaces the principal's key with a fresh random one and returns it. Every token signed
// under the previous key stops verifying once this returns. A persistence error means the caller
// cannot know whether rotation happened and must not issue tokens.
func (s *Store) RotateKey(ctx context.Context, principalID string) (string, error) {
	key, err := s.newKey()
	if err != nil {
		return "", fmt.Errorf("keystore: generate key: %w", err)
	}
	n, err := s.repo.UpdateSigningKey(ctx, principalID, key, s.now().Unix())
	if err != nil {
		return "", fmt.Errorf("keystore: rotate key: %w", err)
	}
	if n == 0 {
		return "", security.ErrPrincipalNotFound
	}
	return key, nil
}

// RotateKeyFrom replaces the key only if it still equals currentKey. If another rotation won the
// race, it returns an error wrapping security.ErrInvalidSignature: the key the caller verified
// under is no longer current.
func (s *Store) RotateKeyFrom(ctx context.Context, principalID, currentKey string) (string, error) {
	key, err := s.newKey()
	if err != nil {
		return "", fmt.Errorf("keystore: generate key: %w", err)
	}
	n, err := s.repo.SwapSigningKey(ctx, principalID, currentKey, key, s.now().Unix())
	if err != nil {
		return "", fmt.Errorf("keystore: rotate key: %w", err)
	}
	if n == 0 {
		if _, err := s.Lookup(ctx, principalID); err != nil {
			return "", err
		}
		return "", fmt.Errorf("keystore: key superseded: %w", security.ErrInvalidSignature)
	}
	return key, nil
}
