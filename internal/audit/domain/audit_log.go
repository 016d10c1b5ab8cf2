package domain

// AuditLog represents one persisted authentication event.
type AuditLog struct {
	ID          string
	PrincipalID string // empty when the principal is unknown (e.g. login for an unregistered phone)
	Action      string
	Outcome     string
	IP          string
	Metadata    string // JSON object
	CreatedAt   int64  // unix seconds
}
