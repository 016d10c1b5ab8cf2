package handler

import (
	"strings"
	"unicode"

	"keyrotation-auth/internal/principal/domain"
	"keyrotation-auth/internal/server/httpx"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 64
	maxNameLen     = 64
)

// RegisterRequest is the body of POST /api/v1/user.
type RegisterRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Age      *int   `json:"age"`
	Gender   *int   `json:"gender"`
}

// Validate checks field formats before any principal is created.
func (r *RegisterRequest) Validate() error {
	if err := validatePhone(r.Phone); err != nil {
		return err
	}
	if err := validatePassword(r.Password); err != nil {
		return err
	}
	if len(strings.TrimSpace(r.Name)) > maxNameLen {
		return &httpx.ValidationError{Field: "name", Message: "must be at most 64 characters"}
	}
	if r.Age != nil && (*r.Age < 0 || *r.Age > 200) {
		return &httpx.ValidationError{Field: "age", Message: "must be between 0 and 200"}
	}
	if r.Gender != nil && (*r.Gender < 0 || *r.Gender > 2) {
		return &httpx.ValidationError{Field: "gender", Message: "must be 0, 1 or 2"}
	}
	return nil
}

// LoginRequest is the body of POST /api/v1/user/login.
type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Validate checks presence and shape only; password strength is not re-checked at login.
func (r *LoginRequest) Validate() error {
	if err := validatePhone(r.Phone); err != nil {
		return err
	}
	if r.Password == "" {
		return &httpx.ValidationError{Field: "password", Message: "is required"}
	}
	if len(r.Password) > maxPasswordLen {
		return &httpx.ValidationError{Field: "password", Message: "must be at most 64 characters"}
	}
	return nil
}

func validatePhone(phone string) error {
	if !domain.ValidPhone(strings.TrimSpace(phone)) {
		return &httpx.ValidationError{Field: "phone", Message: "must be 11 digits"}
	}
	return nil
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLen || len(pw) > maxPasswordLen {
		return &httpx.ValidationError{Field: "password", Message: "must be 8 to 64 characters"}
	}
	var upper, lower, digit bool
	for _, c := range pw {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return &httpx.ValidationError{Field: "password", Message: "must contain upper case, lower case and a digit"}
	}
	return nil
}
