package throttle

import (
	"math"
	"time"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonTooManyRequests Reason = "too_many_requests"
	ReasonAccountLocked   Reason = "account_locked"
)

// Snapshot is the counter state a decision is made from.
type Snapshot struct {
	IPCount   int64
	IPCeiling int64
	IPTTL     time.Duration
	Locked    bool
	LockTTL   time.Duration
}

// Decision is the throttle verdict for one attempt. It is never persisted.
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter time.Duration
}

// Allow returns a permitting decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Locked returns a denial for an account lock with the given remaining time.
func Locked(remaining time.Duration) Decision {
	return Decision{Reason: ReasonAccountLocked, RetryAfter: remaining}
}

// Evaluate decides whether an attempt may proceed. The IP dimension is always
// considered before the account lock.
func Evaluate(s Snapshot) Decision {
	if s.IPCount > s.IPCeiling {
		return Decision{Reason: ReasonTooManyRequests, RetryAfter: s.IPTTL}
	}
	if s.Locked {
		return Locked(s.LockTTL)
	}
	return Allow()
}

// RetryAfterSeconds renders RetryAfter in whole seconds, rounded up. Denials
// always report at least one second.
func (d Decision) RetryAfterSeconds() int64 {
	if d.Allowed {
		return 0
	}
	secs := int64(math.Ceil(d.RetryAfter.Seconds()))
	return max(secs, 1)
}
