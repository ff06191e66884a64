package throttle

import (
	"context"
	"fmt"
	"time"

	"loginguard/internal/counter"
)

// Defaults for the attempt windows and ceilings.
const (
	DefaultIPWindow     = time.Hour
	DefaultIPCeiling    = 100
	DefaultEmailWindow  = 15 * time.Minute
	DefaultEmailCeiling = 5
)

// Limits holds the window length and ceiling of each throttle dimension.
type Limits struct {
	IPWindow     time.Duration
	IPCeiling    int64
	EmailWindow  time.Duration
	EmailCeiling int64
}

// DefaultLimits returns the reference limits.
func DefaultLimits() Limits {
	return Limits{
		IPWindow:     DefaultIPWindow,
		IPCeiling:    DefaultIPCeiling,
		EmailWindow:  DefaultEmailWindow,
		EmailCeiling: DefaultEmailCeiling,
	}
}

// Outcome is the result of recording an account-level attempt.
type Outcome struct {
	Count   int64
	Locked  bool
	LockFor time.Duration
}

// Accountant records attempts against the counter store and triggers the
// lockout when an account counter breaches.
type Accountant struct {
	store   counter.Store
	keys    Keys
	limits  Limits
	lockout *Lockout
}

// NewAccountant creates an Accountant.
func NewAccountant(store counter.Store, keys Keys, limits Limits, lockout *Lockout) *Accountant {
	return &Accountant{
		store:   store,
		keys:    keys,
		limits:  limits,
		lockout: lockout,
	}
}

// Limits returns the configured limits.
func (a *Accountant) Limits() Limits {
	return a.limits
}

// RecordIPAttempt counts one attempt from ip and returns the window total.
func (a *Accountant) RecordIPAttempt(ctx context.Context, ip string) (int64, error) {
	count, err := a.store.IncrementAndGet(ctx, a.keys.IP(ip), a.limits.IPWindow)
	if err != nil {
		return 0, fmt.Errorf("record ip attempt: %w", err)
	}
	return count, nil
}

// IPRetryAfter returns the time left in the IP window.
func (a *Accountant) IPRetryAfter(ctx context.Context, ip string) (time.Duration, error) {
	ttl, err := a.store.TTL(ctx, a.keys.IP(ip))
	if err != nil {
		return 0, fmt.Errorf("ip window ttl: %w", err)
	}
	return ttl, nil
}

// RecordEmailAttempt counts an attempt against email before verification. The
// account is locked once the count exceeds the ceiling, so exactly ceiling
// attempts reach the verifier per window.
func (a *Accountant) RecordEmailAttempt(ctx context.Context, email string) (Outcome, error) {
	count, err := a.store.IncrementAndGet(ctx, a.keys.EmailWindow(email), a.limits.EmailWindow)
	if err != nil {
		return Outcome{}, fmt.Errorf("record email attempt: %w", err)
	}
	out := Outcome{Count: count}
	if count > a.limits.EmailCeiling {
		return a.lock(ctx, email, out)
	}
	return out, nil
}

// RecordFailure counts a rejected verification against email. The account is
// locked once the count reaches the ceiling.
func (a *Accountant) RecordFailure(ctx context.Context, email string) (Outcome, error) {
	count, err := a.store.IncrementAndGet(ctx, a.keys.EmailFail(email), a.limits.EmailWindow)
	if err != nil {
		return Outcome{}, fmt.Errorf("record failure: %w", err)
	}
	out := Outcome{Count: count}
	if count >= a.limits.EmailCeiling {
		return a.lock(ctx, email, out)
	}
	return out, nil
}

// Counts returns the current attempt and failure counts for email and the time
// left in its attempt window.
func (a *Accountant) Counts(ctx context.Context, email string) (attempts, failures int64, window time.Duration, err error) {
	if attempts, err = a.store.Count(ctx, a.keys.EmailWindow(email)); err != nil {
		return 0, 0, 0, fmt.Errorf("read attempts: %w", err)
	}
	if failures, err = a.store.Count(ctx, a.keys.EmailFail(email)); err != nil {
		return 0, 0, 0, fmt.Errorf("read failures: %w", err)
	}
	if window, err = a.store.TTL(ctx, a.keys.EmailWindow(email)); err != nil {
		return 0, 0, 0, fmt.Errorf("read window: %w", err)
	}
	return attempts, failures, window, nil
}

func (a *Accountant) lock(ctx context.Context, email string, out Outcome) (Outcome, error) {
	d, err := a.lockout.Lock(ctx, email, out.Count, a.limits.EmailCeiling)
	if err != nil {
		return out, err
	}
	out.Locked = true
	out.LockFor = d
	return out, nil
}
