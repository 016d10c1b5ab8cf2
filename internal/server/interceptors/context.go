package interceptors

import (
	"context"

	"keyrotation-auth/internal/security"
)

type contextKey struct{ name string }

var (
	identityKey = contextKey{"identity"}
	clientIPKey = contextKey{"client_ip"}
)

// Identity is the verified caller attached to the request context by the gate.
type Identity struct {
	PrincipalID string
	Claims      *security.Claims
	// SigningKey is the key the token verified under. Refresh passes it to the key store so that
	// rotation only succeeds if no other request rotated first.
	SigningKey string
	TokenType  security.TokenType
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity set by WithIdentity and true, or nil, false.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}

// GetPrincipalID returns the verified principal id from context, or "", false.
func GetPrincipalID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return "", false
	}
	return id.PrincipalID, true
}

// WithClientIP returns a context carrying the HTTP client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}
