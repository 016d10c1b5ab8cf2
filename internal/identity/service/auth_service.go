package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"keyrotation-auth/internal/audit"
	"keyrotation-auth/internal/principal/domain"
	"keyrotation-auth/internal/principal/repository"
	"keyrotation-auth/internal/ratelimit"
	"keyrotation-auth/internal/security"
	"keyrotation-auth/internal/telemetry"
)

// Sentinel errors for the session issuer; handlers map them to response codes.
// Authentication failures use the security package sentinels.
var (
	ErrPrincipalExists = errors.New("principal already exists")
	// ErrIssuanceAfterRotation means the key was rotated but tokens could not be produced. Earlier
	// tokens are already dead; the caller must not retry rotation on the client's behalf.
	ErrIssuanceAfterRotation = errors.New("token issuance failed after key rotation")
)

// TokenPair is the result of Login and Refresh. Both tokens are signed with the same key.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresIn  time.Duration
	RefreshExpiresIn time.Duration
	Principal        *domain.Principal
}

// ClientInfo describes the caller of Login for throttling and audit.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// NewPrincipal is the input to Register.
type NewPrincipal struct {
	Phone    string
	Password string
	Name     string
	Age      *int
	Gender   *int
	Role     domain.Role
}

// PrincipalRepo is the minimal principal repository needed by the session issuer.
type PrincipalRepo interface {
	GetByPhone(ctx context.Context, phone string) (*domain.Principal, error)
	Create(ctx context.Context, p *domain.Principal) error
}

// KeyStore is the signing key store needed by the session issuer.
type KeyStore interface {
	Lookup(ctx context.Context, principalID string) (*domain.Principal, error)
	RotateKey(ctx context.Context, principalID string) (string, error)
	RotateKeyFrom(ctx context.Context, principalID, currentKey string) (string, error)
}

// PasswordHasher hashes and verifies passwords. Compare returns security.ErrPasswordMismatch on mismatch.
type PasswordHasher interface {
	Hash(password []byte) (string, error)
	Compare(digest string, password []byte) error
}

// LoginLimiter throttles failed logins. CheckLogin reserves an attempt up front; attempts that
// do not end as failed logins are handed back with Reset (success) or Release (internal error).
type LoginLimiter interface {
	CheckLogin(ctx context.Context, identifier, ip string) error
	Release(ctx context.Context, identifier, ip string) error
	Reset(ctx context.Context, identifier, ip string) error
}

// Option configures optional collaborators of SessionIssuer.
type Option func(*SessionIssuer)

func WithLimiter(l LoginLimiter) Option { return func(s *SessionIssuer) { s.limiter = l } }

func WithAudit(a audit.AuditLogger) Option { return func(s *SessionIssuer) { s.audit = a } }

func WithMetrics(m *telemetry.AuthMetrics) Option { return func(s *SessionIssuer) { s.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(s *SessionIssuer) { s.log = l } }

// SessionIssuer implements login, refresh, logout and forced revocation on top of per-principal key
// rotation. Every operation that rotates a key either returns a complete token pair signed with the
// new key or an error; it never retries rotation.
type SessionIssuer struct {
	principals PrincipalRepo
	keys       KeyStore
	codec      *security.TokenCodec
	hasher     PasswordHasher
	accessTTL  time.Duration
	refreshTTL time.Duration

	limiter LoginLimiter
	audit   audit.AuditLogger
	metrics *telemetry.AuthMetrics
	log     *slog.Logger
	now     func() time.Time

	// dummyDigest is compared against when the phone is unknown so that every failed login
	// costs one bcrypt comparison.
	dummyDigest string
}

// NewSessionIssuer returns a SessionIssuer with the given dependencies.
func NewSessionIssuer(
	principals PrincipalRepo,
	keys KeyStore,
	codec *security.TokenCodec,
	hasher PasswordHasher,
	accessTTL, refreshTTL time.Duration,
	opts ...Option,
) *SessionIssuer {
	s := &SessionIssuer{
		principals: principals,
		keys:       keys,
		codec:      codec,
		hasher:     hasher,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "session_issuer")
	if d, err := hasher.Hash([]byte(uuid.NewString())); err == nil {
		s.dummyDigest = d
	} else {
		s.log.Warn("dummy password digest unavailable", "error", err)
	}
	return s
}

// Register creates a principal with a hashed password and an initial signing key.
func (s *SessionIssuer) Register(ctx context.Context, in NewPrincipal) (*domain.Principal, error) {
	phone := strings.TrimSpace(in.Phone)
	existing, err := s.principals.GetByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w", err)
	}
	if existing != nil {
		return nil, ErrPrincipalExists
	}
	hashed, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	key, err := security.NewSigningKey()
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	now := s.now().Unix()
	p := &domain.Principal{
		ID:           uuid.New().String(),
		Phone:        phone,
		PasswordHash: hashed,
		SigningKey:   key,
		Status:       domain.StatusActive,
		Role:         in.Role,
		Name:         strings.TrimSpace(in.Name),
		Age:          in.Age,
		Gender:       in.Gender,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.principals.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicatePhone) {
			return nil, ErrPrincipalExists
		}
		return nil, fmt.Errorf("create principal: %w", err)
	}
	s.auditEvent(ctx, p.ID, audit.ActionRegister, audit.OutcomeSuccess, nil)
	return p, nil
}

// Login verifies identifier and password, rotates the principal's key and issues a fresh pair.
// All checks run before the key is touched, so a failed login never invalidates existing tokens.
func (s *SessionIssuer) Login(ctx context.Context, identifier, password string, client ClientInfo) (*TokenPair, error) {
	identifier = strings.TrimSpace(identifier)
	reserved := false
	if s.limiter != nil {
		err := s.limiter.CheckLogin(ctx, identifier, client.IP)
		switch {
		case err == nil:
			reserved = true
		case errors.Is(err, ratelimit.ErrRateLimited):
			s.metrics.Login(ctx, "rate_limited")
			s.auditEvent(ctx, "", audit.ActionLoginFailure, audit.OutcomeFailure, map[string]string{"phone": identifier, "reason": err.Error()})
			return nil, err
		default:
			// Throttling is advisory; an unavailable limiter must not lock everyone out.
			s.log.WarnContext(ctx, "login limiter check failed", "error", err)
		}
	}
	// The reserved attempt counts as a failure unless settled otherwise below.
	settled := false
	if reserved {
		defer func() {
			if !settled {
				s.limiterCall(ctx, "release", s.limiter.Release(ctx, identifier, client.IP))
			}
		}()
	}
	fail := func(principalID string, reason error) error {
		settled = true
		return s.loginFailed(ctx, principalID, identifier, reason)
	}

	p, err := s.principals.GetByPhone(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w", err)
	}
	if p == nil {
		_ = s.hasher.Compare(s.dummyDigest, []byte(password))
		return nil, fail("", security.ErrPrincipalNotFound)
	}
	if !p.IsActive() {
		_ = s.hasher.Compare(p.PasswordHash, []byte(password))
		return nil, fail(p.ID, security.ErrPrincipalInactive)
	}
	if err := s.hasher.Compare(p.PasswordHash, []byte(password)); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return nil, fail(p.ID, security.ErrPasswordMismatch)
		}
		return nil, fmt.Errorf("verify password: %w", err)
	}

	key, err := s.keys.RotateKey(ctx, p.ID)
	if err != nil {
		s.metrics.Login(ctx, "error")
		return nil, err
	}
	s.metrics.KeyRotation(ctx, "login")
	pair, err := s.issue(p, key)
	if err != nil {
		s.log.ErrorContext(ctx, "issuance failed after rotation", "principal_id", p.ID, "operation", "login", "error", err)
		s.metrics.Login(ctx, "error")
		return nil, fmt.Errorf("%w: %v", ErrIssuanceAfterRotation, err)
	}

	if reserved {
		settled = true
		s.limiterCall(ctx, "reset", s.limiter.Reset(ctx, identifier, client.IP))
	}
	s.metrics.Login(ctx, "success")
	s.auditEvent(ctx, p.ID, audit.ActionLoginSuccess, audit.OutcomeSuccess, map[string]string{"user_agent": client.UserAgent})
	return pair, nil
}

// Refresh exchanges verified refresh claims for a new pair. verifiedKey is the key the refresh token
// was verified under; rotation succeeds only if it is still current, so of several concurrent refreshes
// presenting the same token exactly one wins and the rest fail security.ErrInvalidSignature.
// The presented refresh token is dead once this returns, whatever the outcome.
func (s *SessionIssuer) Refresh(ctx context.Context, principalID string, claims *security.Claims, verifiedKey string) (*TokenPair, error) {
	pair, err := s.refresh(ctx, principalID, claims, verifiedKey)
	if err != nil {
		outcome := "failure"
		if !security.IsAuthFailure(err) {
			outcome = "error"
		}
		s.metrics.Refresh(ctx, outcome)
		s.auditEvent(ctx, principalID, audit.ActionRefreshFailure, audit.OutcomeFailure, map[string]string{"reason": err.Error()})
		return nil, err
	}
	s.metrics.Refresh(ctx, "success")
	s.auditEvent(ctx, principalID, audit.ActionRefresh, audit.OutcomeSuccess, nil)
	return pair, nil
}

func (s *SessionIssuer) refresh(ctx context.Context, principalID string, claims *security.Claims, verifiedKey string) (*TokenPair, error) {
	if claims == nil {
		return nil, security.ErrUnauthenticated
	}
	if err := claims.RequireType(security.TokenTypeRefresh); err != nil {
		return nil, err
	}
	if principalID == "" || claims.PrincipalID != principalID {
		return nil, security.ErrUnauthenticated
	}
	p, err := s.keys.Lookup(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive() {
		return nil, security.ErrPrincipalInactive
	}
	key, err := s.keys.RotateKeyFrom(ctx, principalID, verifiedKey)
	if err != nil {
		return nil, err
	}
	s.metrics.KeyRotation(ctx, "refresh")
	pair, err := s.issue(p, key)
	if err != nil {
		s.log.ErrorContext(ctx, "issuance failed after rotation", "principal_id", p.ID, "operation", "refresh", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrIssuanceAfterRotation, err)
	}
	return pair, nil
}

// Logout rotates the principal's key and issues nothing. Every token issued before the call,
// access and refresh alike, stops verifying. Returns the principal id.
func (s *SessionIssuer) Logout(ctx context.Context, principalID string) (string, error) {
	if _, err := s.keys.RotateKey(ctx, principalID); err != nil {
		s.metrics.Logout(ctx, "failure")
		return "", err
	}
	s.metrics.KeyRotation(ctx, "logout")
	s.metrics.Logout(ctx, "success")
	s.auditEvent(ctx, principalID, audit.ActionLogout, audit.OutcomeSuccess, nil)
	return principalID, nil
}

// Revoke force-logs-out targetID on behalf of actorID. Authorization is the caller's job.
func (s *SessionIssuer) Revoke(ctx context.Context, actorID, targetID string) error {
	if _, err := s.keys.RotateKey(ctx, targetID); err != nil {
		return err
	}
	s.metrics.KeyRotation(ctx, "revoke")
	s.auditEvent(ctx, targetID, audit.ActionPrincipalRevoked, audit.OutcomeSuccess, map[string]string{"actor_id": actorID})
	return nil
}

// issue encodes an access token carrying the profile snapshot and a refresh token carrying only
// the id, both under key.
func (s *SessionIssuer) issue(p *domain.Principal, key string) (*TokenPair, error) {
	access, _, err := s.codec.Encode(security.Claims{
		PrincipalID: p.ID,
		Phone:       p.Phone,
		Status:      int(p.Status),
		Role:        string(p.Role),
		Name:        p.Name,
		Age:         p.Age,
		Gender:      p.Gender,
		Type:        security.TokenTypeAccess,
	}, key, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("encode access token: %w", err)
	}
	refresh, _, err := s.codec.Encode(security.Claims{
		PrincipalID: p.ID,
		Type:        security.TokenTypeRefresh,
	}, key, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("encode refresh token: %w", err)
	}
	issued := *p
	issued.SigningKey = key
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresIn:  s.accessTTL,
		RefreshExpiresIn: s.refreshTTL,
		Principal:        &issued,
	}, nil
}

func (s *SessionIssuer) loginFailed(ctx context.Context, principalID, identifier string, reason error) error {
	s.log.InfoContext(ctx, "login failed", "principal_id", principalID, "reason", reason.Error())
	s.metrics.Login(ctx, "failure")
	s.auditEvent(ctx, principalID, audit.ActionLoginFailure, audit.OutcomeFailure, map[string]string{"phone": identifier, "reason": reason.Error()})
	return reason
}

func (s *SessionIssuer) limiterCall(ctx context.Context, op string, err error) {
	if err != nil {
		s.log.WarnContext(ctx, "login limiter "+op+" failed", "error", err)
	}
}

func (s *SessionIssuer) auditEvent(ctx context.Context, principalID, action, outcome string, metadata map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, principalID, action, outcome, metadata)
}
