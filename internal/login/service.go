// Package login orchestrates a throttled password login: IP and account
// throttling, credential verification, failure accounting and session issue.
package login

import (
	"context"
	"log/slog"
	"loginguard/internal/models"
	"loginguard/internal/storage"
	"loginguard/internal/throttle"
	"time"
)

// Outcome is the result class of one login attempt.
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeRejected           Outcome = "rejected"
	OutcomeInvalidCredentials Outcome = "invalid_credentials"
	OutcomeUnverified         Outcome = "unverified"
)

// Result describes how an attempt ended. Decision is set for rejected
// attempts; AccountID and Token only on success.
type Result struct {
	Outcome   Outcome
	Decision  throttle.Decision
	AccountID string
	Token     string
}

// Status is the throttle state held for one account.
type Status struct {
	Email           string
	Locked          bool
	LockRemaining   time.Duration
	LockedAt        time.Time
	Attempts        int64
	Failures        int64
	WindowRemaining time.Duration
}

// Service handles login attempts against the throttle and the account directory
type Service struct {
	accountant *throttle.Accountant
	lockout    *throttle.Lockout
	directory  storage.Directory
	verifier   Verifier
	issuer     TokenIssuer
	recorder   Recorder
	logger     *slog.Logger
	failClosed bool
}

// Option configures a Service.
type Option func(*Service)

// WithFailClosed rejects attempts when the lock state cannot be read instead
// of letting them through.
func WithFailClosed(enabled bool) Option {
	return func(s *Service) {
		s.failClosed = enabled
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets the outcome recorder, typically the login metrics.
func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// NewService creates a new login service
func NewService(accountant *throttle.Accountant, lockout *throttle.Lockout, directory storage.Directory, verifier Verifier, issuer TokenIssuer, opts ...Option) *Service {
	s := &Service{
		accountant: accountant,
		lockout:    lockout,
		directory:  directory,
		verifier:   verifier,
		issuer:     issuer,
		recorder:   nopRecorder{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttemptLogin runs the full throttled login flow. Policy rejections, bad
// credentials and unverified accounts are reported through Result; only
// collaborator failures produce an error, always a *ServiceError.
func (s *Service) AttemptLogin(ctx context.Context, ip, email, password string) (*Result, error) {
	email = models.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, NewInvalidRequestError("email and password are required", nil)
	}

	// IP dimension first; it never touches the account counters.
	snapshot := throttle.Snapshot{IPCeiling: s.accountant.Limits().IPCeiling}
	ipCount, err := s.accountant.RecordIPAttempt(ctx, ip)
	if err != nil {
		s.logger.WarnContext(ctx, "ip throttle unavailable, allowing attempt", "ip", ip, "error", err)
	}
	snapshot.IPCount = ipCount
	if ipCount > snapshot.IPCeiling {
		ttl, err := s.accountant.IPRetryAfter(ctx, ip)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to read ip window", "ip", ip, "error", err)
		}
		snapshot.IPTTL = ttl
	} else {
		lock, locked, err := s.lockout.Check(ctx, email)
		switch {
		case err != nil && s.failClosed:
			s.logger.WarnContext(ctx, "lock state unavailable, rejecting attempt", "email", email, "error", err)
			return s.reject(ctx, ip, email, throttle.Locked(s.lockout.Base())), nil
		case err != nil:
			s.logger.WarnContext(ctx, "lock state unavailable, allowing attempt", "email", email, "error", err)
		}
		snapshot.Locked = locked
		snapshot.LockTTL = lock.Remaining
	}

	if decision := throttle.Evaluate(snapshot); !decision.Allowed {
		return s.reject(ctx, ip, email, decision), nil
	}

	attempt, err := s.accountant.RecordEmailAttempt(ctx, email)
	if err != nil {
		s.logger.WarnContext(ctx, "attempt counter unavailable, allowing attempt", "email", email, "error", err)
	}
	if attempt.Locked {
		return s.reject(ctx, ip, email, throttle.Locked(attempt.LockFor)), nil
	}

	account, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		return nil, NewInternalError("account lookup failed", err)
	}

	hash := s.verifier.DummyHash()
	if account != nil {
		hash = account.PasswordHash
	}
	if !s.verifier.Verify(password, hash) || account == nil {
		if _, err := s.accountant.RecordFailure(ctx, email); err != nil {
			s.logger.WarnContext(ctx, "failure counter unavailable", "email", email, "error", err)
		}
		s.logger.InfoContext(ctx, "login failed", "email", email, "ip", ip)
		s.recorder.RecordLogin(ctx, string(OutcomeInvalidCredentials), "")
		return &Result{Outcome: OutcomeInvalidCredentials}, nil
	}

	if !account.EmailVerified {
		s.logger.InfoContext(ctx, "login refused, email not verified", "email", email)
		s.recorder.RecordLogin(ctx, string(OutcomeUnverified), "")
		return &Result{Outcome: OutcomeUnverified}, nil
	}

	s.lockout.Clear(ctx, email)

	token, err := s.issuer.CreateToken(account.ID)
	if err != nil {
		return nil, NewInternalError("failed to issue session", err)
	}

	s.logger.InfoContext(ctx, "login succeeded", "email", email, "account_id", account.ID)
	s.recorder.RecordLogin(ctx, string(OutcomeSuccess), "")
	return &Result{
		Outcome:   OutcomeSuccess,
		AccountID: account.ID,
		Token:     token,
	}, nil
}

// Status reads the lock and counters for email without changing them.
func (s *Service) Status(ctx context.Context, email string) (*Status, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, NewInvalidRequestError("email is required", nil)
	}

	lock, locked, err := s.lockout.Check(ctx, email)
	if err != nil {
		return nil, NewUnavailableError("counter store unavailable", err)
	}
	attempts, failures, window, err := s.accountant.Counts(ctx, email)
	if err != nil {
		return nil, NewUnavailableError("counter store unavailable", err)
	}

	return &Status{
		Email:           email,
		Locked:          locked,
		LockRemaining:   lock.Remaining,
		LockedAt:        lock.CreatedAt,
		Attempts:        attempts,
		Failures:        failures,
		WindowRemaining: window,
	}, nil
}

// Unlock removes the lock and both counters for email.
func (s *Service) Unlock(ctx context.Context, email string) error {
	email = models.NormalizeEmail(email)
	if email == "" {
		return NewInvalidRequestError("email is required", nil)
	}
	if err := s.lockout.Reset(ctx, email); err != nil {
		return NewUnavailableError("counter store unavailable", err)
	}
	s.logger.InfoContext(ctx, "account unlocked", "email", email)
	return nil
}

func (s *Service) reject(ctx context.Context, ip, email string, decision throttle.Decision) *Result {
	s.logger.InfoContext(ctx, "login rejected",
		"reason", string(decision.Reason),
		"email", email,
		"ip", ip,
		"retry_after", decision.RetryAfterSeconds())
	s.recorder.RecordLogin(ctx, string(OutcomeRejected), string(decision.Reason))
	return &Result{Outcome: OutcomeRejected, Decision: decision}
}

type nopRecorder struct{}

func (nopRecorder) RecordLogin(context.Context, string, string) {}
