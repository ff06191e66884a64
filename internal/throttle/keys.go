// Package throttle implements the login throttle: per-IP and per-account attempt
// accounting, the escalating account lockout, and the pure policy that turns
// counter state into an allow or deny decision.
package throttle

import (
	"loginguard/internal/models"

	"github.com/samber/lo"
)

// DefaultKeyPrefix is prepended to every key written to the counter store.
const DefaultKeyPrefix = "loginguard:"

// Namespace identifies a family of counter keys.
type Namespace string

const (
	NamespaceIPWindow    Namespace = "ip-window"
	NamespaceEmailWindow Namespace = "email-window"
	NamespaceEmailFail   Namespace = "email-fail"
	NamespaceLock        Namespace = "lock"
)

// Keys builds store keys in the form <prefix><namespace>:<subject>.
type Keys struct {
	prefix string
}

// NewKeys returns a key builder. An empty prefix selects DefaultKeyPrefix.
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Keys{prefix: prefix}
}

// Prefix returns the configured key prefix.
func (k Keys) Prefix() string {
	return k.prefix
}

func (k Keys) key(ns Namespace, subject string) string {
	return k.prefix + string(ns) + ":" + subject
}

// IP returns the per-origin attempt counter key.
func (k Keys) IP(ip string) string {
	return k.key(NamespaceIPWindow, ip)
}

// EmailWindow returns the per-account attempt counter key.
func (k Keys) EmailWindow(email string) string {
	return k.key(NamespaceEmailWindow, NormalizeEmail(email))
}

// EmailFail returns the per-account failure counter key.
func (k Keys) EmailFail(email string) string {
	return k.key(NamespaceEmailFail, NormalizeEmail(email))
}

// Lock returns the lockout record key.
func (k Keys) Lock(email string) string {
	return k.key(NamespaceLock, NormalizeEmail(email))
}

// Account returns every key that holds state for email: the lock and both
// email counters.
func (k Keys) Account(email string) []string {
	return lo.Map([]Namespace{NamespaceLock, NamespaceEmailWindow, NamespaceEmailFail},
		func(ns Namespace, _ int) string {
			return k.key(ns, NormalizeEmail(email))
		})
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return models.NormalizeEmail(email)
}
