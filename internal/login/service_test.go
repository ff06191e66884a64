package login

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"loginguard/internal/counter"
	"loginguard/internal/models"
	"loginguard/internal/password"
	"loginguard/internal/storage"
	"loginguard/internal/throttle"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testIP       = "203.0.113.7"
	testPassword = "correct horse battery staple"
)

// MockIssuer implements TokenIssuer for testing
type MockIssuer struct {
	mock.Mock
}

func (m *MockIssuer) CreateToken(accountID string) (string, error) {
	args := m.Called(accountID)
	return args.String(0), args.Error(1)
}

// MockDirectory implements storage.Directory for testing
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	args := m.Called(ctx, email)
	account, _ := args.Get(0).(*models.Account)
	return account, args.Error(1)
}

func (m *MockDirectory) SaveAccount(ctx context.Context, account *models.Account) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockDirectory) DeleteAccount(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockDirectory) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDirectory) Close() error {
	return m.Called().Error(0)
}

// recorder captures RecordLogin calls.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) RecordLogin(_ context.Context, outcome, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, outcome+"/"+reason)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// downStore fails every call like an unreachable shared store.
type downStore struct{}

func (downStore) IncrementAndGet(context.Context, string, time.Duration) (int64, error) {
	return 0, counter.ErrStoreUnavailable
}

func (downStore) Count(context.Context, string) (int64, error) {
	return 0, counter.ErrStoreUnavailable
}

func (downStore) TTL(context.Context, string) (time.Duration, error) {
	return 0, counter.ErrStoreUnavailable
}

func (downStore) SetLock(context.Context, string, time.Duration) error {
	return counter.ErrStoreUnavailable
}

func (downStore) GetLock(context.Context, string) (counter.Lock, bool, error) {
	return counter.Lock{}, false, counter.ErrStoreUnavailable
}

func (downStore) Delete(context.Context, ...string) error {
	return counter.ErrStoreUnavailable
}

func (downStore) Ping(context.Context) error {
	return counter.ErrStoreUnavailable
}

func (downStore) Close() error {
	return nil
}

type fixture struct {
	service   *Service
	clock     *fakeClock
	directory *storage.MemoryDirectory
	issuer    *MockIssuer
	recorder  *recorder
	verifier  *password.Verifier
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, limits throttle.Limits, store counter.Store, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		issuer:   new(MockIssuer),
		recorder: &recorder{},
		verifier: password.NewVerifier(4),
	}
	if store == nil {
		store = counter.NewMemoryStore(counter.WithClock(f.clock.Now))
	}

	var err error
	f.directory, err = storage.NewMemoryDirectory(storage.Config{Type: "memory"})
	require.NoError(t, err)

	keys := throttle.NewKeys("")
	lockout := throttle.NewLockout(store, keys, 30*time.Second, 24*time.Hour, quietLogger())
	accountant := throttle.NewAccountant(store, keys, limits, lockout)

	opts = append([]Option{WithLogger(quietLogger()), WithRecorder(f.recorder)}, opts...)
	f.service = NewService(accountant, lockout, f.directory, f.verifier, f.issuer, opts...)
	return f
}

func (f *fixture) addAccount(t *testing.T, email string, verified bool) *models.Account {
	t.Helper()
	hash, err := f.verifier.Hash(testPassword)
	require.NoError(t, err)
	account := models.NewAccount(email, hash, verified)
	require.NoError(t, f.directory.SaveAccount(context.Background(), account))
	return account
}

func limits(ceiling int64) throttle.Limits {
	return throttle.Limits{
		IPWindow:     time.Hour,
		IPCeiling:    100,
		EmailWindow:  15 * time.Minute,
		EmailCeiling: ceiling,
	}
}

func TestNewService(t *testing.T) {
	f := newFixture(t, limits(5), nil, WithFailClosed(true))
	assert.NotNil(t, f.service)
	assert.True(t, f.service.failClosed)
	assert.NotNil(t, f.service.logger)
}

func TestService_AttemptLogin_Success(t *testing.T) {
	f := newFixture(t, limits(5), nil)
	account := f.addAccount(t, "user@example.com", true)
	f.issuer.On("CreateToken", account.ID).Return("signed-token", nil).Once()
	ctx := context.Background()

	result, err := f.service.AttemptLogin(ctx, testIP, "  User@Example.com ", testPassword)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, account.ID, result.AccountID)
	assert.Equal(t, "signed-token", result.Token)
	f.issuer.AssertExpectations(t)
	assert.Equal(t, []string{"success/"}, f.recorder.calls)
}

func TestService_AttemptLogin_SuccessClearsCounters(t *testing.T) {
	f := newFixture(t, limits(5), nil)
	account := f.addAccount(t, "user@example.com", true)
	f.issuer.On("CreateToken", account.ID).Return("token", nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := f.service.AttemptLogin(ctx, testIP, "user@example.com", "wrong")
		require.NoError(t, err)
		assert.Equal(t, OutcomeInvalidCredentials, result.Outcome)
	}

	status, err := f.service.Status(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Attempts)
	assert.Equal(t, int64(2), status.Failures)

	result, err := f.service.AttemptLogin(ctx, testIP, "user@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)

	status, err = f.service.Status(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Zero(t, status.Attempts)
	assert.Zero(t, status.Failures)
	assert.False(t, status.Locked)

	// The next attempt starts a fresh window.
	_, err = f.service.AttemptLogin(ctx, testIP, "user@example.com", "wrong")
	require.NoError(t, err)
	status, err = f.service.Status(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Attempts)
}

func TestService_AttemptLogin_LocksAfterFailures(t *testing.T) {
	f := newFixture(t, limits(3), nil)
	f.addAccount(t, "user@example.com", true)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		result, err := f.service.AttemptLogin(ctx, testIP, "user@example.com", "wrong")
		require.NoError(t, err)
		assert.Equal(t, OutcomeInvalidCredentials, result.Outcome, "attempt %d", i)
	}

	result, err := f.service.AttemptLogin(ctx, testIP, "user@example.com", "wrong")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, throttle.ReasonAccountLocked, result.Decision.Reason)
	assert.Equal(t, int64(30), result.Decision.RetryAfterSeconds())

	f.clock.Advance(10 * time.Second)
	result, err = f.service.AttemptLogin(ctx, testIP, "user@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, result.Outcome, "a correct password is not verified while locked")
	assert.Equal(t, int64(20), result.Decision.RetryAfterSeconds())

	// Attempts while locked are not counted.
	status, err := f.service.Status(ctx, "user@example.com")
	require.NoError(t, err)
	assert.True(t, status.Locked)
	assert.Equal(t, int64(3), status.Attempts)
	assert.Equal(t, int64(3), status.Failures)

	// Once the lock expires the attempt counter is still at the ceiling, so
	// the next attempt breaches it and escalates the lock.
	f.clock.Advance(21 * time.Second)
	result, err = f.service.AttemptLogin(ctx, testIP, "user@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, time.Minute, result.Decision.RetryAfter)
	f.issuer.AssertNotCalled(t, "CreateToken", mock.Anything)
}

func TestService_AttemptLogin_UnknownAccountCountsFailure(t *testing.T) {
	f := newFixture(t, limits(5), nil)
	ctx := context.Background()

	result, err := f.service.AttemptLogin(ctx, testIP, "ghost@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidCredentials, result.Outcome)

	status, err := f.service.Status(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Attempts)
	assert.Equal(t, int64(1), status.Failures)
	f.issuer.AssertNotCalled(t, "CreateToken", mock.Anything)
}

func TestService_AttemptLogin_Unverified(t *testing.T) {
	f := newFixture(t, limits(3), nil)
	f.addAccount(t, "new@example.com", false)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		result, err := f.service.AttemptLogin(ctx, testIP, "new@example.com", testPassword)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnverified, result.Outcome)
	}

	status, err := f.service.Status(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(3), status.Attempts)
	assert.Zero(t, status.Failures, "unverified logins are not failures")

	// The attempt counter breaches one past the ceiling: 30s doubled once.
	result, err := f.service.AttemptLogin(ctx, testIP, "new@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, throttle.ReasonAccountLocked, result.Decision.Reason)
	assert.Equal(t, time.Minute, result.Decision.RetryAfter)
}

func TestService_AttemptLogin_IPCeiling(t *testing.T) {
	l := limits(5)
	l.IPCeiling = 2
	f := newFixture(t, l, nil)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com"} {
		result, err := f.service.AttemptLogin(ctx, testIP, email, "wrong")
		require.NoError(t, err)
		assert.Equal(t, OutcomeInvalidCredentials, result.Outcome)
	}

	for _, email := range []string{"a@example.com", "c@example.com"} {
		result, err := f.service.AttemptLogin(ctx, testIP, email, "wrong")
		require.NoError(t, err)
		assert.Equal(t, OutcomeRejected, result.Outcome)
		assert.Equal(t, throttle.ReasonTooManyRequests, result.Decision.Reason)
		assert.Equal(t, int64(3600), result.Decision.RetryAfterSeconds())
	}

	for email, want := range map[string]int64{"a@example.com": 1, "c@example.com": 0} {
		status, err := f.service.Status(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, want, status.Attempts, email)
	}

	// Another address is unaffected.
	result, err := f.service.AttemptLogin(ctx, "198.51.100.1", "c@example.com", "wrong")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidCredentials, result.Outcome)

	assert.Contains(t, f.recorder.calls, "rejected/too_many_requests")
}

func TestService_AttemptLogin_FailOpen(t *testing.T) {
	f := newFixture(t, limits(1), downStore{})
	account := f.addAccount(t, "user@example.com", true)
	f.issuer.On("CreateToken", account.ID).Return("token", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := f.service.AttemptLogin(ctx, testIP, "user@example.com", "wrong")
		require.NoError(t, err)
		assert.Equal(t, OutcomeInvalidCredentials, result.Outcome)
	}

	result, err := f.service.AttemptLogin(ctx, testIP, "user@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
}

func TestService_AttemptLogin_FailClosed(t *testing.T) {
	f := newFixture(t, limits(5), downStore{}, WithFailClosed(true))
	f.addAccount(t, "user@example.com", true)

	result, err := f.service.AttemptLogin(context.Background(), testIP, "user@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, throttle.ReasonAccountLocked, result.Decision.Reason)
	assert.Equal(t, 30*time.Second, result.Decision.RetryAfter)
	f.issuer.AssertNotCalled(t, "CreateToken", mock.Anything)
}

func TestService_AttemptLogin_FallbackStore(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := counter.NewFallbackStore(downStore{}, counter.NewMemoryStore(counter.WithClock(clock.Now)),
		counter.WithLogger(quietLogger()))
	f := newFixture(t, limits(2), store)
	f.addAccount(t, "user@example.com", true)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := f.service.AttemptLogin(ctx, testIP, "user@example.com", "wrong")
		require.NoError(t, err)
		assert.Equal(t, OutcomeInvalidCredentials, result.Outcome)
	}

	result, err := f.service.AttemptLogin(ctx, testIP, "user@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, result.Outcome, "the local store still enforces the lock")
}

func TestService_AttemptLogin_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid request", func(t *testing.T) {
		f := newFixture(t, limits(5), nil)
		_, err := f.service.AttemptLogin(ctx, testIP, "  ", testPassword)
		var serr *ServiceError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, http.StatusBadRequest, serr.StatusCode)

		_, err = f.service.AttemptLogin(ctx, testIP, "user@example.com", "")
		require.ErrorAs(t, err, &serr)
	})

	t.Run("directory failure", func(t *testing.T) {
		store := counter.NewMemoryStore()
		keys := throttle.NewKeys("")
		lockout := throttle.NewLockout(store, keys, 0, 0, quietLogger())
		directory := new(MockDirectory)
		lookupErr := errors.New("connection reset")
		directory.On("FindByEmail", mock.Anything, "user@example.com").Return(nil, lookupErr)

		svc := NewService(throttle.NewAccountant(store, keys, limits(5), lockout), lockout,
			directory, password.NewVerifier(4), new(MockIssuer), WithLogger(quietLogger()))
		_, err := svc.AttemptLogin(ctx, testIP, "user@example.com", testPassword)

		var serr *ServiceError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, http.StatusInternalServerError, serr.StatusCode)
		assert.Equal(t, models.ErrorCodeInternalError, serr.Code)
		assert.ErrorIs(t, err, lookupErr)
		directory.AssertExpectations(t)
	})

	t.Run("token failure", func(t *testing.T) {
		f := newFixture(t, limits(5), nil)
		account := f.addAccount(t, "user@example.com", true)
		f.issuer.On("CreateToken", account.ID).Return("", errors.New("signing failed"))

		_, err := f.service.AttemptLogin(ctx, testIP, "user@example.com", testPassword)
		var serr *ServiceError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, http.StatusInternalServerError, serr.StatusCode)
	})
}

func TestService_Unlock(t *testing.T) {
	f := newFixture(t, limits(2), nil)
	account := f.addAccount(t, "user@example.com", true)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.service.AttemptLogin(ctx, testIP, "user@example.com", "wrong")
		require.NoError(t, err)
	}
	status, err := f.service.Status(ctx, "USER@example.com")
	require.NoError(t, err)
	assert.True(t, status.Locked)
	assert.Equal(t, 30*time.Second, status.LockRemaining)
	assert.True(t, f.clock.Now().Equal(status.LockedAt))
	assert.Equal(t, 15*time.Minute, status.WindowRemaining)

	require.NoError(t, f.service.Unlock(ctx, "user@example.com"))

	f.issuer.On("CreateToken", account.ID).Return("token", nil)
	result, err := f.service.AttemptLogin(ctx, testIP, "user@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)

	err = f.service.Unlock(ctx, "")
	var serr *ServiceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
}

func TestService_StatusUnavailable(t *testing.T) {
	f := newFixture(t, limits(5), downStore{})

	_, err := f.service.Status(context.Background(), "user@example.com")
	var serr *ServiceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusServiceUnavailable, serr.StatusCode)
	assert.ErrorIs(t, err, counter.ErrStoreUnavailable)

	assert.Error(t, f.service.Unlock(context.Background(), "user@example.com"))
}

func TestServiceError(t *testing.T) {
	inner := errors.New("boom")
	err := NewInternalError("lookup failed", inner)
	assert.Equal(t, "lookup failed: boom", err.Error())
	assert.Same(t, inner, errors.Unwrap(err))

	assert.Equal(t, "bad", NewInvalidRequestError("bad", nil).Error())
}
