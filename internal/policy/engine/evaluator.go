package engine

import (
	"context"
)

// Request is the input to an authorization decision on an admin action.
type Request struct {
	SubjectID     string
	SubjectRole   string
	SubjectStatus int
	Action        string
	ResourceID    string
}

// Authorizer decides whether an authenticated principal may perform an admin action.
type Authorizer interface {
	// Allow returns true only when the policy grants the request. Evaluation errors deny.
	Allow(ctx context.Context, req Request) (bool, error)
	// HealthCheck verifies the policy compiles and evaluates.
	HealthCheck(ctx context.Context) error
}

// Admin actions.
const (
	// ActionRevokePrincipal is the forced logout of another principal.
	ActionRevokePrincipal = "principal.revoke"
	ActionReadAudit       = "audit.read"
)
