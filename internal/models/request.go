// Package models - API request types and input validation.
package models

import (
	"errors"
	"strings"
)

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate rejects requests with a missing email or password. The password is
// not trimmed: whitespace may be part of it.
func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("email is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// Normalize lower-cases and trims the email.
func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}
