package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access from refresh tokens. It is carried in the "type" claim.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the flat claim set of both token types. Access tokens carry the profile snapshot;
// refresh tokens carry only id, type, exp and iat.
type Claims struct {
	PrincipalID string    `json:"id"`
	Phone       string    `json:"phone,omitempty"`
	Status      int       `json:"status,omitempty"`
	Role        string    `json:"role,omitempty"`
	Name        string    `json:"name,omitempty"`
	Age         *int      `json:"age,omitempty"`
	Gender      *int      `json:"gender,omitempty"`
	Type        TokenType `json:"type"`
	jwt.RegisteredClaims
}

// RequireType returns ErrWrongTokenType unless the claims carry want.
func (c *Claims) RequireType(want TokenType) error {
	if c.Type != want {
		return ErrWrongTokenType
	}
	return nil
}

// TokenCodec encodes and decodes HS256 tokens signed with a caller-supplied key. It holds no key
// material itself; the key is always the principal's current signing key.
type TokenCodec struct {
	now func() time.Time
}

// NewTokenCodec returns a TokenCodec using the wall clock.
func NewTokenCodec() *TokenCodec {
	return NewTokenCodecWithClock(time.Now)
}

// NewTokenCodecWithClock returns a TokenCodec that reads time from now. Used in tests to pin exp/iat.
func NewTokenCodecWithClock(now func() time.Time) *TokenCodec {
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{now: now}
}

// Encode signs claims with key, setting iat to now and exp to now+ttl.
// Returns the compact token and its expiry. Identical inputs at the same clock reading yield identical tokens.
func (c *TokenCodec) Encode(claims Claims, key string, ttl time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errors.New("signing key is empty")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp.Truncate(time.Second), nil
}

// Peek parses token without verifying its signature. The result identifies which principal's key
// to fetch and must never be used for authorization.
func (c *TokenCodec) Peek(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrMalformedToken
	}
	if claims.PrincipalID == "" {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

// Decode verifies token against key and returns its claims. The signature is checked before expiry,
// so a token under a stale key fails ErrInvalidSignature whatever its exp.
// Errors: ErrMalformedToken, ErrInvalidSignature, ErrTokenExpired.
func (c *TokenCodec) Decode(token, key string) (*Claims, error) {
	if key == "" {
		return nil, ErrInvalidSignature
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(key), nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrMalformedToken
	}
	if claims.PrincipalID == "" {
		return nil, ErrMalformedToken
	}
	return claims, nil
}
