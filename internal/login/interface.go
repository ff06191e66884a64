package login

import (
	"context"
)

// ServiceInterface defines the interface for login service operations
type ServiceInterface interface {
	// AttemptLogin runs one throttled login attempt from ip for email
	AttemptLogin(ctx context.Context, ip, email, password string) (*Result, error)

	// Status reports the throttle state held for email
	Status(ctx context.Context, email string) (*Status, error)

	// Unlock removes the lock and counters held for email
	Unlock(ctx context.Context, email string) error
}

// Verifier checks a password against a stored hash.
type Verifier interface {
	Verify(password, encodedHash string) bool
	// DummyHash is verified against when no account exists, so unknown
	// emails cost as much as wrong passwords.
	DummyHash() string
}

// TokenIssuer creates session tokens for authenticated accounts.
type TokenIssuer interface {
	CreateToken(accountID string) (string, error)
}

// Recorder receives one call per finished attempt.
type Recorder interface {
	RecordLogin(ctx context.Context, outcome, reason string)
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
