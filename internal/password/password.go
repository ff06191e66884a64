// Package password verifies login passwords against stored hashes. Hashes in
// bcrypt ($2a$, $2b$, $2y$) and argon2id PHC ($argon2id$) formats are accepted.
package password

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnsupportedHash is returned for hashes in an unknown format.
var ErrUnsupportedHash = errors.New("unsupported password hash format")

// Verifier checks passwords and produces new bcrypt hashes.
type Verifier struct {
	cost  int
	dummy func() string
}

// NewVerifier creates a Verifier that hashes with the given bcrypt cost.
// Out-of-range costs fall back to bcrypt.DefaultCost.
func NewVerifier(cost int) *Verifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	v := &Verifier{cost: cost}
	v.dummy = sync.OnceValue(func() string {
		return v.newDummyHash()
	})
	return v
}

// Hash returns a bcrypt hash of password.
func (v *Verifier) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches encodedHash. Malformed or
// unsupported hashes never match.
func (v *Verifier) Verify(password, encodedHash string) bool {
	ok, err := Compare(password, encodedHash)
	return err == nil && ok
}

// DummyHash returns a bcrypt hash of a random secret at the configured cost.
// Verifying against it costs the same as a real account, so a login for an
// unknown email takes as long as one with a wrong password.
func (v *Verifier) DummyHash() string {
	return v.dummy()
}

func (v *Verifier) newDummyHash() string {
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)
	// bcrypt only reads the first 72 bytes; base64 of 32 bytes is 44.
	hash, err := bcrypt.GenerateFromPassword([]byte(base64.RawStdEncoding.EncodeToString(secret)), v.cost)
	if err != nil {
		panic(fmt.Sprintf("password: generate dummy hash: %v", err))
	}
	return string(hash)
}

// Compare checks password against encodedHash, dispatching on its format.
func Compare(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("bcrypt: %w", err)
		}
		return true, nil
	case strings.HasPrefix(encodedHash, "$"+argon2ID+"$"):
		return compareArgon2(password, encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}
