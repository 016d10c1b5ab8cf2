package domain

import (
	"errors"
	"regexp"
)

// Principal is the authenticated account tokens are issued for.
// SigningKey is the only key tokens for this principal verify against.
type Principal struct {
	ID           string
	Phone        string
	PasswordHash string
	SigningKey   string
	Status       Status
	Role         Role
	Name         string
	Age          *int
	Gender       *int
	CreatedAt    int64 // unix seconds
	UpdatedAt    int64 // unix seconds
}

type Status int

const (
	StatusActive   Status = 1
	StatusDisabled Status = 2
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var phonePattern = regexp.MustCompile(`^\d{11}$`)

// IsActive reports whether the principal may authenticate.
func (p *Principal) IsActive() bool {
	return p != nil && p.Status == StatusActive
}

// ValidPhone reports whether s is an 11-digit login identifier.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// Validate validates the principal for persistence. Returns an error describing the first validation failure.
func (p *Principal) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if !ValidPhone(p.Phone) {
		return errors.New("phone must be 11 digits")
	}
	if p.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if p.SigningKey == "" {
		return errors.New("signing key is required")
	}
	if p.Status == 0 {
		p.Status = StatusActive
	}
	if p.Role == "" {
		p.Role = RoleUser
	}
	return nil
}
