package server

import (
	"log/slog"
	"net/http"

	healthhandler "keyrotation-auth/internal/health/handler"
	identityhandler "keyrotation-auth/internal/identity/handler"
	"keyrotation-auth/internal/server/httpx"
	"keyrotation-auth/internal/server/interceptors"
)

// HTTPDeps holds the dependencies of the HTTP API.
type HTTPDeps struct {
	Identity *identityhandler.Handler
	Health   *healthhandler.Checker
	// Metrics serves /metrics when set (Prometheus exporter).
	Metrics http.Handler
	// TrustedProxies may set the client IP through X-Forwarded-For / X-Real-IP.
	TrustedProxies interceptors.TrustedProxies
	Logger         *slog.Logger
}

// NewHTTPHandler returns the HTTP API: identity routes, /healthz and optionally /metrics,
// wrapped with request-id/client-ip context and panic recovery.
func NewHTTPHandler(deps HTTPDeps) http.Handler {
	mux := http.NewServeMux()
	if deps.Identity != nil {
		deps.Identity.Register(mux)
	}
	mux.Handle("GET /healthz", healthhandler.HTTP(deps.Health))
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}
	mux.HandleFunc("/", httpx.NotFound)
	return interceptors.RequestContext(deps.TrustedProxies)(interceptors.Recover(deps.Logger)(mux))
}
