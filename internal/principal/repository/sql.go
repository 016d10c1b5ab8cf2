package repository

import (
	"context"
	"database/sql"
	"errors"

	"keyrotation-auth/internal/db"
	"keyrotation-auth/internal/principal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const principalColumns = `id, phone, password_hash, signing_key, status, role, name, age, gender, created_at, updated_at`

type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns a principal repository over conn. Placeholders are rebound for dialect.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: conn, dialect: dialect}
}

// GetByID returns the principal for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+principalColumns+` FROM principals WHERE id = ?`), id)
	return scanPrincipal(row)
}

// GetByPhone returns the principal with the given phone, or nil if not found.
func (r *SQLRepository) GetByPhone(ctx context.Context, phone string) (*domain.Principal, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+principalColumns+` FROM principals WHERE phone = ?`), phone)
	return scanPrincipal(row)
}

// Create persists the principal. The principal must have ID and SigningKey set.
// Returns ErrDuplicatePhone on a unique violation.
func (r *SQLRepository) Create(ctx context.Context, p *domain.Principal) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`INSERT INTO principals (`+principalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Phone, p.PasswordHash, p.SigningKey, int(p.Status), string(p.Role),
		nullString(p.Name), nullInt(p.Age), nullInt(p.Gender), p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicatePhone
	}
	return err
}

// UpdateSigningKey sets the principal's signing key in a single-row update.
func (r *SQLRepository) UpdateSigningKey(ctx context.Context, id, key string, updatedAt int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`UPDATE principals SET signing_key = ?, updated_at = ? WHERE id = ?`),
		key, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SwapSigningKey sets the signing key only while the stored key equals current.
// Of two concurrent swaps from the same key, at most one affects a row.
func (r *SQLRepository) SwapSigningKey(ctx context.Context, id, current, next string, updatedAt int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`UPDATE principals SET signing_key = ?, updated_at = ? WHERE id = ? AND signing_key = ?`),
		next, updatedAt, id, current)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping verifies the underlying connection.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func scanPrincipal(row *sql.Row) (*domain.Principal, error) {
	var (
		p      domain.Principal
		status int
		role   string
		name   sql.NullString
		age    sql.NullInt64
		gender sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.Phone, &p.PasswordHash, &p.SigningKey, &status, &role,
		&name, &age, &gender, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Status = domain.Status(status)
	p.Role = domain.Role(role)
	if name.Valid {
		p.Name = name.String
	}
	p.Age = intPtr(age)
	p.Gender = intPtr(gender)
	return &p, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
