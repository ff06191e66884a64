// Package counter provides the atomic, TTL-capable counter and lock store used by
// the login throttle. A shared Redis-backed implementation is the default; a
// process-local map serves as the fallback when the shared store is unreachable.
package counter

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable is returned when the backing store cannot be reached or
// a command times out. Callers test for it with errors.Is.
var ErrStoreUnavailable = errors.New("counter store unavailable")

// Store defines the counter contract shared by every backend. Implementations
// must be safe for concurrent use.
type Store interface {
	// IncrementAndGet atomically increments key and returns the new count.
	// The window is attached as TTL only when the returned count is 1, so later
	// increments never extend a running window.
	IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, error)

	// Count returns the current value of a counter without changing it, or 0
	// when the key is absent.
	Count(ctx context.Context, key string) (int64, error)

	// TTL returns the remaining lifetime of key, or 0 when the key is absent.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// SetLock creates or replaces a lock record that expires after ttl.
	SetLock(ctx context.Context, key string, ttl time.Duration) error

	// GetLock returns the lock stored under key and whether it is present.
	GetLock(ctx context.Context, key string) (Lock, bool, error)

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Lock is a point-in-time view of a lock record.
type Lock struct {
	Remaining time.Duration
	CreatedAt time.Time
}
