package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"loginguard/internal/counter"
)

const (
	// DefaultLockBase is the lock duration for a breach exactly at the ceiling.
	DefaultLockBase = 30 * time.Second
	// DefaultLockCap bounds every lock duration.
	DefaultLockCap = 24 * time.Hour
)

// LockDuration returns min(base * 2^extra, limit) where extra is how far count
// is past ceiling, clamped at zero. It never overflows.
func LockDuration(count, ceiling int64, base, limit time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if limit < base {
		return limit
	}

	extra := count - ceiling
	d := base
	for i := int64(0); i < extra; i++ {
		if d > limit/2 {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}

// Lockout manages the per-account lock record.
type Lockout struct {
	store  counter.Store
	keys   Keys
	base   time.Duration
	limit  time.Duration
	logger *slog.Logger
}

// NewLockout creates a Lockout over store. Zero durations select the defaults.
func NewLockout(store counter.Store, keys Keys, base, limit time.Duration, logger *slog.Logger) *Lockout {
	if base <= 0 {
		base = DefaultLockBase
	}
	if limit <= 0 {
		limit = DefaultLockCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lockout{
		store:  store,
		keys:   keys,
		base:   base,
		limit:  limit,
		logger: logger,
	}
}

// Base returns the configured base lock duration.
func (l *Lockout) Base() time.Duration {
	return l.base
}

// Check returns the active lock for email, if any.
func (l *Lockout) Check(ctx context.Context, email string) (counter.Lock, bool, error) {
	lock, ok, err := l.store.GetLock(ctx, l.keys.Lock(email))
	if err != nil {
		return counter.Lock{}, false, fmt.Errorf("check lock: %w", err)
	}
	return lock, ok, nil
}

// Lock creates or refreshes the lock for email after a counter reached count
// against ceiling, and returns the applied duration.
func (l *Lockout) Lock(ctx context.Context, email string, count, ceiling int64) (time.Duration, error) {
	d := LockDuration(count, ceiling, l.base, l.limit)
	if err := l.store.SetLock(ctx, l.keys.Lock(email), d); err != nil {
		return 0, fmt.Errorf("set lock: %w", err)
	}
	l.logger.InfoContext(ctx, "account locked",
		"email", NormalizeEmail(email),
		"attempts", count,
		"duration", d.String())
	return d, nil
}

// Reset removes the lock and both email counters in one call and reports any
// failure. It backs operator-initiated unlocks.
func (l *Lockout) Reset(ctx context.Context, email string) error {
	if err := l.store.Delete(ctx, l.keys.Account(email)...); err != nil {
		return fmt.Errorf("reset account state: %w", err)
	}
	return nil
}

// Clear removes the lock and both email counters. Each deletion is attempted
// on its own; failures are logged and otherwise ignored.
func (l *Lockout) Clear(ctx context.Context, email string) {
	for _, key := range l.keys.Account(email) {
		if err := l.store.Delete(ctx, key); err != nil {
			l.logger.WarnContext(ctx, "failed to clear throttle state",
				"key", key,
				"error", err)
		}
	}
}
