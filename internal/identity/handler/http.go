// Package handler exposes the session issuer over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	auditdomain "keyrotation-auth/internal/audit/domain"
	"keyrotation-auth/internal/identity/service"
	"keyrotation-auth/internal/policy/engine"
	"keyrotation-auth/internal/principal/domain"
	"keyrotation-auth/internal/ratelimit"
	"keyrotation-auth/internal/security"
	"keyrotation-auth/internal/server/httpx"
	"keyrotation-auth/internal/server/interceptors"
)

// Issuer is the session issuer used by the handler.
type Issuer interface {
	Register(ctx context.Context, in service.NewPrincipal) (*domain.Principal, error)
	Login(ctx context.Context, identifier, password string, client service.ClientInfo) (*service.TokenPair, error)
	Refresh(ctx context.Context, principalID string, claims *security.Claims, verifiedKey string) (*service.TokenPair, error)
	Logout(ctx context.Context, principalID string) (string, error)
	Revoke(ctx context.Context, actorID, targetID string) error
}

// CookieConfig controls the refresh token cookie.
type CookieConfig struct {
	Name   string
	Path   string
	MaxAge time.Duration
	Secure bool
}

// AuditReader lists a principal's audit trail, newest first.
type AuditReader interface {
	ListByPrincipal(ctx context.Context, principalID string, limit int) ([]*auditdomain.AuditLog, error)
}

// Option configures optional Handler collaborators.
type Option func(*Handler)

// WithAuditReader enables GET /api/v1/admin/principals/{id}/audit.
func WithAuditReader(r AuditReader) Option { return func(h *Handler) { h.audits = r } }

// Handler serves registration, login, refresh, logout, profile and the admin routes.
type Handler struct {
	issuer Issuer
	gate   *interceptors.Gate
	authz  engine.Authorizer
	audits AuditReader
	cookie CookieConfig
	log    *slog.Logger
}

// New returns a Handler. authz may be nil, in which case admin routes always answer 403.
func New(issuer Issuer, gate *interceptors.Gate, authz engine.Authorizer, cookie CookieConfig, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		issuer: issuer,
		gate:   gate,
		authz:  authz,
		cookie: cookie,
		log:    logger.With("component", "identity_http"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds the routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	bearer := interceptors.RequireBearer(h.gate)
	refresh := interceptors.RequireRefreshCookie(h.gate, h.cookie.Name)

	mux.HandleFunc("GET /api/ping", h.ping)
	mux.HandleFunc("POST /api/v1/user", h.register)
	mux.HandleFunc("POST /api/v1/user/login", h.login)
	mux.Handle("POST /api/v1/user/token", refresh(http.HandlerFunc(h.token)))
	mux.Handle("POST /api/v1/user/logout", bearer(http.HandlerFunc(h.logout)))
	mux.Handle("GET /api/v1/user/me", bearer(http.HandlerFunc(h.me)))
	mux.Handle("POST /api/v1/admin/principals/{id}/revoke", bearer(http.HandlerFunc(h.revoke)))
	mux.Handle("GET /api/v1/admin/principals/{id}/audit", bearer(http.HandlerFunc(h.auditTrail)))
}

type userInfo struct {
	ID     string `json:"id"`
	Phone  string `json:"phone"`
	Name   string `json:"name,omitempty"`
	Age    *int   `json:"age,omitempty"`
	Gender *int   `json:"gender,omitempty"`
	Role   string `json:"role"`
	Status int    `json:"status"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresIn int64     `json:"refresh_expires_in"`
	UserInfo         *userInfo `json:"user_info,omitempty"`
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w, r, "pong")
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.BadRequest(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.BadRequest(w, r, err)
		return
	}
	p, err := h.issuer.Register(r.Context(), service.NewPrincipal{
		Phone:    req.Phone,
		Password: req.Password,
		Name:     req.Name,
		Age:      req.Age,
		Gender:   req.Gender,
	})
	if err != nil {
		h.writeError(w, r, "register", err)
		return
	}
	httpx.OK(w, r, map[string]string{"id": p.ID})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.BadRequest(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.BadRequest(w, r, err)
		return
	}
	pair, err := h.issuer.Login(r.Context(), req.Phone, req.Password, service.ClientInfo{
		IP:        interceptors.ClientIP(r.Context()),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}
	h.writePair(w, r, pair)
}

func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFrom(r.Context())
	if !ok {
		httpx.Unauthorized(w, r)
		return
	}
	pair, err := h.issuer.Refresh(r.Context(), id.PrincipalID, id.Claims, id.SigningKey)
	if err != nil {
		// The presented refresh token is dead whatever happened.
		h.clearCookie(w)
		h.writeError(w, r, "refresh", err)
		return
	}
	h.writePair(w, r, pair)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFrom(r.Context())
	if !ok {
		httpx.Unauthorized(w, r)
		return
	}
	principalID, err := h.issuer.Logout(r.Context(), id.PrincipalID)
	if err != nil {
		h.writeError(w, r, "logout", err)
		return
	}
	h.clearCookie(w)
	httpx.OK(w, r, map[string]string{"id": principalID})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFrom(r.Context())
	if !ok {
		httpx.Unauthorized(w, r)
		return
	}
	c := id.Claims
	httpx.OK(w, r, &userInfo{
		ID:     c.PrincipalID,
		Phone:  c.Phone,
		Name:   c.Name,
		Age:    c.Age,
		Gender: c.Gender,
		Role:   c.Role,
		Status: c.Status,
	})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	id, target, ok := h.authorizeAdmin(w, r, engine.ActionRevokePrincipal)
	if !ok {
		return
	}
	if err := h.issuer.Revoke(r.Context(), id.PrincipalID, target); err != nil {
		if errors.Is(err, security.ErrPrincipalNotFound) {
			httpx.NotFound(w, r)
			return
		}
		h.writeError(w, r, "revoke", err)
		return
	}
	httpx.OK(w, r, map[string]string{"id": target})
}

type auditEntry struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	Outcome   string `json:"outcome"`
	IP        string `json:"ip"`
	Metadata  string `json:"metadata,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

func (h *Handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	if h.audits == nil {
		httpx.NotFound(w, r)
		return
	}
	_, target, ok := h.authorizeAdmin(w, r, engine.ActionReadAudit)
	if !ok {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			httpx.BadRequest(w, r, &httpx.ValidationError{Field: "limit", Message: "must be between 1 and 500"})
			return
		}
		limit = n
	}
	logs, err := h.audits.ListByPrincipal(r.Context(), target, limit)
	if err != nil {
		h.writeError(w, r, "audit", err)
		return
	}
	items := make([]auditEntry, 0, len(logs))
	for _, l := range logs {
		items = append(items, auditEntry{
			ID:        l.ID,
			Action:    l.Action,
			Outcome:   l.Outcome,
			IP:        l.IP,
			Metadata:  l.Metadata,
			CreatedAt: l.CreatedAt,
		})
	}
	httpx.OK(w, r, map[string]any{"items": items, "total": len(items)})
}

// authorizeAdmin checks the policy for action on the {id} path value. On failure the response
// has been written and ok is false.
func (h *Handler) authorizeAdmin(w http.ResponseWriter, r *http.Request, action string) (id *interceptors.Identity, target string, ok bool) {
	id, ok = interceptors.IdentityFrom(r.Context())
	if !ok {
		httpx.Unauthorized(w, r)
		return nil, "", false
	}
	target = r.PathValue("id")
	if target == "" {
		httpx.BadRequest(w, r, &httpx.ValidationError{Field: "id", Message: "is required"})
		return nil, "", false
	}
	if h.authz == nil {
		httpx.Forbidden(w, r)
		return nil, "", false
	}
	allowed, err := h.authz.Allow(r.Context(), engine.Request{
		SubjectID:     id.PrincipalID,
		SubjectRole:   id.Claims.Role,
		SubjectStatus: id.Claims.Status,
		Action:        action,
		ResourceID:    target,
	})
	if err != nil {
		h.log.ErrorContext(r.Context(), "policy evaluation failed", "action", action, "error", err)
	}
	if !allowed {
		httpx.Forbidden(w, r)
		return nil, "", false
	}
	return id, target, true
}

func (h *Handler) writePair(w http.ResponseWriter, r *http.Request, pair *service.TokenPair) {
	http.SetCookie(w, h.refreshCookie(pair.RefreshToken, int(pair.RefreshExpiresIn.Seconds())))
	resp := tokenResponse{
		AccessToken:      pair.AccessToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(pair.AccessExpiresIn.Seconds()),
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresIn: int64(pair.RefreshExpiresIn.Seconds()),
	}
	if p := pair.Principal; p != nil {
		resp.UserInfo = &userInfo{
			ID:     p.ID,
			Phone:  p.Phone,
			Name:   p.Name,
			Age:    p.Age,
			Gender: p.Gender,
			Role:   string(p.Role),
			Status: int(p.Status),
		}
	}
	httpx.OK(w, r, resp)
}

func (h *Handler) refreshCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Path:     h.cookie.Path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, h.refreshCookie("", -1))
}

// writeError maps service errors to envelopes. Every authentication failure gets the same 401;
// the reason only reaches the log.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ve *httpx.ValidationError
	switch {
	case errors.As(err, &ve):
		httpx.BadRequest(w, r, err)
	case errors.Is(err, ratelimit.ErrRateLimited):
		httpx.TooManyAttempts(w, r)
	case security.IsAuthFailure(err):
		h.log.InfoContext(r.Context(), "request unauthorized", "operation", op, "reason", err.Error())
		httpx.Unauthorized(w, r)
	case errors.Is(err, service.ErrPrincipalExists):
		httpx.RecordExists(w, r)
	default:
		h.log.ErrorContext(r.Context(), "request failed", "operation", op, "error", err)
		httpx.Internal(w, r)
	}
}
