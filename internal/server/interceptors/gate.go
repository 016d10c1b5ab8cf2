package interceptors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"keyrotation-auth/internal/audit"
	"keyrotation-auth/internal/principal/domain"
	"keyrotation-auth/internal/security"
	"keyrotation-auth/internal/telemetry"
)

// Stage is a step of the per-request verification state machine.
type Stage int

const (
	StageNoCredential Stage = iota
	StageExtractedRaw
	StageDecodedUnverified
	StageKeyFetched
	StageVerified
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageNoCredential:
		return "no_credential"
	case StageExtractedRaw:
		return "extracted_raw"
	case StageDecodedUnverified:
		return "decoded_unverified"
	case StageKeyFetched:
		return "key_fetched"
	case StageVerified:
		return "verified"
	case StageRejected:
		return "rejected"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Rejection is returned by the gate when a credential does not authenticate. Stage is the last
// stage reached before rejecting; Reason is one of the security sentinels. Callers must respond
// with the uniform unauthorized outcome and keep Reason for diagnostics.
type Rejection struct {
	Stage  Stage
	Reason error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("gate: rejected at %s: %v", r.Stage, r.Reason)
}

func (r *Rejection) Unwrap() error { return r.Reason }

// IsRejection reports whether err is a gate rejection.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

// KeyLookup returns the principal row with its current signing key.
// It returns security.ErrPrincipalNotFound for unknown principals.
type KeyLookup interface {
	Lookup(ctx context.Context, principalID string) (*domain.Principal, error)
}

// GateOption configures a Gate.
type GateOption func(*Gate)

func WithGateMetrics(m *telemetry.AuthMetrics) GateOption { return func(g *Gate) { g.metrics = m } }

func WithGateAudit(a audit.AuditLogger) GateOption { return func(g *Gate) { g.audit = a } }

func WithGateLogger(l *slog.Logger) GateOption { return func(g *Gate) { g.log = l } }

// Gate verifies a raw token against the principal's current key. The bearer and cookie transports
// both run through Verify.
type Gate struct {
	codec   *security.TokenCodec
	keys    KeyLookup
	metrics *telemetry.AuthMetrics
	audit   audit.AuditLogger
	log     *slog.Logger
}

// NewGate returns a Gate.
func NewGate(codec *security.TokenCodec, keys KeyLookup, opts ...GateOption) *Gate {
	g := &Gate{codec: codec, keys: keys}
	for _, o := range opts {
		o(g)
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	g.log = g.log.With("component", "auth_gate")
	return g
}

// Verify runs raw through the state machine and returns the verified identity. Authentication
// failures are *Rejection; any other error is an infrastructure failure (e.g. the database is down).
// The unverified peek is used only to find the principal; nothing from it is trusted.
func (g *Gate) Verify(ctx context.Context, raw string, want security.TokenType) (*Identity, error) {
	if raw == "" {
		return nil, g.reject(ctx, StageNoCredential, "", "", security.ErrUnauthenticated)
	}

	// ExtractedRaw
	peeked, err := g.codec.Peek(raw)
	if err != nil {
		return nil, g.reject(ctx, StageExtractedRaw, "", raw, err)
	}

	// DecodedUnverified
	p, err := g.keys.Lookup(ctx, peeked.PrincipalID)
	if err != nil {
		if errors.Is(err, security.ErrPrincipalNotFound) {
			return nil, g.reject(ctx, StageKeyFetched, "", raw, err)
		}
		return nil, fmt.Errorf("gate: fetch key: %w", err)
	}

	// KeyFetched
	if !p.IsActive() {
		return nil, g.reject(ctx, StageKeyFetched, p.ID, raw, security.ErrPrincipalInactive)
	}
	claims, err := g.codec.Decode(raw, p.SigningKey)
	if err != nil {
		return nil, g.reject(ctx, StageKeyFetched, p.ID, raw, err)
	}
	if err := claims.RequireType(want); err != nil {
		return nil, g.reject(ctx, StageKeyFetched, p.ID, raw, err)
	}
	if claims.PrincipalID != p.ID {
		return nil, g.reject(ctx, StageKeyFetched, p.ID, raw, security.ErrInvalidSignature)
	}

	return &Identity{
		PrincipalID: p.ID,
		Claims:      claims,
		SigningKey:  p.SigningKey,
		TokenType:   want,
	}, nil
}

// reject records a rejection and returns it. principalID is empty until the principal is known;
// only rejections naming a principal are audited. The raw token is recorded as a fingerprint only.
func (g *Gate) reject(ctx context.Context, stage Stage, principalID, raw string, reason error) error {
	label := reasonLabel(reason)
	fp := security.Fingerprint(raw)
	g.log.InfoContext(ctx, "credential rejected", "stage", stage.String(), "reason", label, "principal_id", principalID, "token_fp", fp)
	g.metrics.GateRejection(ctx, stage.String(), label)
	if g.audit != nil && principalID != "" {
		g.audit.LogEvent(ctx, principalID, audit.ActionGateRejected, audit.OutcomeFailure, map[string]string{
			"stage":    stage.String(),
			"reason":   label,
			"token_fp": fp,
		})
	}
	return &Rejection{Stage: stage, Reason: reason}
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, security.ErrMalformedToken):
		return "malformed"
	case errors.Is(err, security.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, security.ErrTokenExpired):
		return "expired"
	case errors.Is(err, security.ErrWrongTokenType):
		return "wrong_type"
	case errors.Is(err, security.ErrPrincipalNotFound):
		return "principal_not_found"
	case errors.Is(err, security.ErrPrincipalInactive):
		return "principal_inactive"
	default:
		return "unauthenticated"
	}
}
