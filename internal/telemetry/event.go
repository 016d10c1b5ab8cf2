// Package telemetry defines auth events and metrics shared by the audit trail and the transports.
package telemetry

import (
	"context"
	"time"
)

// Event is one security-relevant occurrence (login, refresh, gate rejection, ...).
type Event struct {
	PrincipalID string
	Action      string
	Outcome     string
	IP          string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// EventEmitter emits events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
