package repository

import (
	"context"
	"errors"
	"testing"

	"keyrotation-auth/internal/db"
	"keyrotation-auth/internal/db/dbtest"
	"keyrotation-auth/internal/principal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *SQLRepository {
	t.Helper()
	return NewSQLRepository(dbtest.NewSQLite(t), db.DialectSQLite)
}

func samplePrincipal(id, phone string) *domain.Principal {
	age := 30
	return &domain.Principal{
		ID: id, Phone: phone, PasswordHash: "$2a$04$hash", SigningKey: "key-" + id,
		Status: domain.StatusActive, Role: domain.RoleUser, Name: "alice", Age: &age,
		CreatedAt: 1700000000, UpdatedAt: 1700000000,
	}
}

func TestSQLRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Create(ctx, samplePrincipal("p1", "13800000000")))

	got, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "13800000000", got.Phone)
	assert.Equal(t, "key-p1", got.SigningKey)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, domain.RoleUser, got.Role)
	assert.Equal(t, "alice", got.Name)
	require.NotNil(t, got.Age)
	assert.Equal(t, 30, *got.Age)
	assert.Nil(t, got.Gender)

	byPhone, err := repo.GetByPhone(ctx, "13800000000")
	require.NoError(t, err)
	require.NotNil(t, byPhone)
	assert.Equal(t, "p1", byPhone.ID)
}

func TestSQLRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	p, err := repo.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = repo.GetByPhone(ctx, "19999999999")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSQLRepository_DuplicatePhone(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Create(ctx, samplePrincipal("p1", "13800000000")))
	err := repo.Create(ctx, samplePrincipal("p2", "13800000000"))
	assert.True(t, errors.Is(err, ErrDuplicatePhone), "err = %v", err)
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.Create(ctx, samplePrincipal("p1", "13800000000")))

	// Duplicate primary key.
	err := repo.Create(ctx, samplePrincipal("p1", "13800000001"))
	assert.True(t, errors.Is(err, ErrDuplicatePhone), "err = %v", err)

	// A NOT NULL failure is a schema error, not a duplicate.
	_, err = repo.db.ExecContext(ctx, `INSERT INTO principals (id, phone) VALUES ('p2', '13800000002')`)
	require.Error(t, err)
	assert.False(t, isUniqueViolation(err), "err = %v", err)
	assert.False(t, isUniqueViolation(nil))
}

func TestSQLRepository_UpdateSigningKey(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.Create(ctx, samplePrincipal("p1", "13800000000")))

	n, err := repo.UpdateSigningKey(ctx, "p1", "next", 1700000100)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "next", got.SigningKey)
	assert.EqualValues(t, 1700000100, got.UpdatedAt)

	n, err = repo.UpdateSigningKey(ctx, "missing", "x", 1700000100)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestSQLRepository_SwapSigningKey(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.Create(ctx, samplePrincipal("p1", "13800000000")))

	n, err := repo.SwapSigningKey(ctx, "p1", "key-p1", "second", 1700000100)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// Stale current key loses.
	n, err = repo.SwapSigningKey(ctx, "p1", "key-p1", "third", 1700000200)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	got, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.SigningKey)
}
