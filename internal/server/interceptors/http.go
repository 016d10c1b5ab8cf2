package interceptors

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"

	"keyrotation-auth/internal/security"
	"keyrotation-auth/internal/server/httpx"
)

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

const bearerPrefix = "Bearer "

// BearerToken extracts the credential from an Authorization header value. The scheme must be
// exactly "Bearer" followed by a single space and a non-empty token.
func BearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", security.ErrUnauthenticated
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", security.ErrUnauthenticated
	}
	return token, nil
}

// RequestContext stores the request id (echoed from X-Request-ID or generated) and the client IP
// in the request context. Forwarding headers count only when sent by one of trusted.
func RequestContext(trusted TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if id == "" {
				id = "req-" + strings.ReplaceAll(uuid.NewString(), "-", "")
			}
			w.Header().Set(RequestIDHeader, id)
			ctx := httpx.WithRequestID(r.Context(), id)
			ctx = WithClientIP(ctx, trusted.RequestIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Recover turns a handler panic into the 500 envelope.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.ErrorContext(r.Context(), "handler panic",
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", httpx.RequestIDFrom(r.Context()),
						"stack", string(debug.Stack()),
					)
					httpx.Internal(w, r)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequireBearer authenticates an access token from the Authorization header.
func RequireBearer(g *Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				_ = g.reject(r.Context(), StageNoCredential, "", "", err)
				httpx.Unauthorized(w, r)
				return
			}
			serveVerified(g, next, w, r, raw, security.TokenTypeAccess)
		})
	}
}

// RequireRefreshCookie authenticates a refresh token from the named cookie.
func RequireRefreshCookie(g *Gate, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(name)
			if err != nil || c.Value == "" {
				_ = g.reject(r.Context(), StageNoCredential, "", "", security.ErrUnauthenticated)
				httpx.Unauthorized(w, r)
				return
			}
			serveVerified(g, next, w, r, c.Value, security.TokenTypeRefresh)
		})
	}
}

func serveVerified(g *Gate, next http.Handler, w http.ResponseWriter, r *http.Request, raw string, want security.TokenType) {
	id, err := g.Verify(r.Context(), raw, want)
	if err != nil {
		if IsRejection(err) {
			httpx.Unauthorized(w, r)
			return
		}
		g.log.ErrorContext(r.Context(), "authentication failed", "error", err)
		httpx.Internal(w, r)
		return
	}
	next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
}
