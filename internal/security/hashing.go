package security

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies principal passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to 4–31. Zero selects bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	cost = max(bcrypt.MinCost, min(cost, bcrypt.MaxCost))
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt digest of password suitable for the principals.password_hash column.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies password against digest. Returns ErrPasswordMismatch when they do not match;
// any other error means the stored digest is unusable.
func (h *Hasher) Compare(digest string, password []byte) error {
	err := bcrypt.CompareHashAndPassword([]byte(digest), password)
	if err == bcrypt.ErrMismatchedHashAndPassword {
		return ErrPasswordMismatch
	}
	return err
}
