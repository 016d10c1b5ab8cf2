package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "keyrotation-auth"

// AuthMetrics holds the counters for session operations and gate decisions.
type AuthMetrics struct {
	logins         metric.Int64Counter
	refreshes      metric.Int64Counter
	logouts        metric.Int64Counter
	keyRotations   metric.Int64Counter
	gateRejections metric.Int64Counter
}

// NewAuthMetrics creates the counters on provider. A nil provider yields no-op counters.
func NewAuthMetrics(provider metric.MeterProvider) (*AuthMetrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)
	var (
		m   AuthMetrics
		err error
	)
	if m.logins, err = meter.Int64Counter("auth.login", metric.WithDescription("Login attempts by outcome")); err != nil {
		return nil, err
	}
	if m.refreshes, err = meter.Int64Counter("auth.refresh", metric.WithDescription("Token refreshes by outcome")); err != nil {
		return nil, err
	}
	if m.logouts, err = meter.Int64Counter("auth.logout", metric.WithDescription("Logouts by outcome")); err != nil {
		return nil, err
	}
	if m.keyRotations, err = meter.Int64Counter("auth.key_rotations", metric.WithDescription("Signing key rotations by trigger")); err != nil {
		return nil, err
	}
	if m.gateRejections, err = meter.Int64Counter("auth.gate.rejections", metric.WithDescription("Requests rejected by the authentication gate")); err != nil {
		return nil, err
	}
	return &m, nil
}

// Login records a login attempt. Nil receivers are no-ops so callers need not guard.
func (m *AuthMetrics) Login(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *AuthMetrics) Refresh(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *AuthMetrics) Logout(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.logouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// KeyRotation records a successful rotation; trigger is login, refresh, logout or revoke.
func (m *AuthMetrics) KeyRotation(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	m.keyRotations.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// GateRejection records a rejected request with the stage and internal reason.
func (m *AuthMetrics) GateRejection(ctx context.Context, stage, reason string) {
	if m == nil {
		return
	}
	m.gateRejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("reason", reason),
	))
}
