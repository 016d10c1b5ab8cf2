package security

import (
	"crypto/rand"
	"encoding/hex"
)

// SigningKeyBytes is the entropy of a principal signing key; the stored form is hex (64 chars).
const SigningKeyBytes = 32

// NewSigningKey returns a fresh random HS256 key as lowercase hex.
func NewSigningKey() (string, error) {
	b := make([]byte, SigningKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
