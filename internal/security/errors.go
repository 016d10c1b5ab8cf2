package security

import "errors"

// Authentication failure reasons. Callers outside this module see one uniform
// unauthorized outcome; these values are for logs and audit only.
var (
	// ErrUnauthenticated is returned when no usable credential was presented
	// (missing header or cookie, wrong scheme, empty credential).
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMalformedToken is returned when a token cannot be parsed.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature is returned when a token does not verify against the principal's current key.
	// Tampering and use after rotation produce the same error.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrTokenExpired is returned when a correctly signed token is past its exp.
	ErrTokenExpired = errors.New("token expired")
	// ErrWrongTokenType is returned when an access token is used where a refresh token is required, or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")

	ErrPrincipalNotFound = errors.New("principal not found")
	ErrPrincipalInactive = errors.New("principal inactive")

	// ErrPasswordMismatch is returned by login only.
	ErrPasswordMismatch = errors.New("password mismatch")
)

// IsAuthFailure reports whether err is one of the authentication failure reasons above.
func IsAuthFailure(err error) bool {
	for _, target := range []error{
		ErrUnauthenticated, ErrMalformedToken, ErrInvalidSignature, ErrTokenExpired,
		ErrWrongTokenType, ErrPrincipalNotFound, ErrPrincipalInactive, ErrPasswordMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
