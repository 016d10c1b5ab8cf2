// Package audit records authentication events. Recording is best-effort: a failed write is logged
// and never changes the outcome of the operation being audited.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"keyrotation-auth/internal/audit/domain"
	auditrepo "keyrotation-auth/internal/audit/repository"
	"keyrotation-auth/internal/telemetry"
)

// Actions.
const (
	ActionLoginSuccess     = "login_success"
	ActionLoginFailure     = "login_failure"
	ActionLogout           = "logout"
	ActionRefresh          = "refresh"
	ActionRefreshFailure   = "refresh_failure"
	ActionGateRejected     = "gate_rejected"
	ActionPrincipalRevoked = "principal_revoked"
	ActionRegister         = "register"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event. Used by the session issuer and the authentication gate.
type AuditLogger interface {
	LogEvent(ctx context.Context, principalID, action, outcome string, metadata map[string]string)
}

// Logger implements AuditLogger: it persists to the repository and mirrors the event to an EventEmitter.
type Logger struct {
	repo        auditrepo.Repository
	emitter     telemetry.EventEmitter
	ipExtractor IPExtractor
	log         *slog.Logger
	now         func() time.Time
}

// NewLogger returns a Logger. Any of repo, emitter and ipExtractor may be nil; without an extractor
// the IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, emitter telemetry.EventEmitter, ipExtractor IPExtractor, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		repo:        repo,
		emitter:     emitter,
		ipExtractor: ipExtractor,
		log:         logger.With("component", "audit"),
		now:         time.Now,
	}
}

// LogEvent writes one audit entry. Errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, principalID, action, outcome string, metadata map[string]string) {
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	now := l.now().UTC()

	if l.repo != nil {
		var meta string
		if len(metadata) > 0 {
			b, err := json.Marshal(metadata)
			if err != nil {
				l.log.Warn("encode audit metadata", "action", action, "error", err)
			} else {
				meta = string(b)
			}
		}
		entry := &domain.AuditLog{
			ID:          uuid.New().String(),
			PrincipalID: principalID,
			Action:      action,
			Outcome:     outcome,
			IP:          ip,
			Metadata:    meta,
			CreatedAt:   now.Unix(),
		}
		if err := l.repo.Create(ctx, entry); err != nil {
			l.log.Error("failed to log event", "action", action, "principal_id", principalID, "error", err)
		}
	}

	telemetry.EmitAsync(l.emitter, l.log, &telemetry.Event{
		PrincipalID: principalID,
		Action:      action,
		Outcome:     outcome,
		IP:          ip,
		Metadata:    metadata,
		CreatedAt:   now,
	})
}
