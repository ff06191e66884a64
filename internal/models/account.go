package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account is a login identity as returned by the account directory.
// PasswordHash is a bcrypt or argon2id encoded hash and is never serialized
// into API responses.
type Account struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"password_hash"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewAccount creates an account with a fresh ID. The email is normalized.
func NewAccount(email, passwordHash string, verified bool) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:            uuid.NewString(),
		Email:         NormalizeEmail(email),
		PasswordHash:  passwordHash,
		EmailVerified: verified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Validate checks the fields the directory relies on.
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.New("account ID is required")
	}
	if a.Email == "" || !strings.Contains(a.Email, "@") {
		return errors.New("a valid email is required")
	}
	if a.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
