package throttle

import (
	"context"
	"testing"
	"time"

	"loginguard/internal/counter"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccountant(t *testing.T, store counter.Store, ceiling int64) *Accountant {
	t.Helper()
	keys := NewKeys("")
	limits := Limits{
		IPWindow:     time.Hour,
		IPCeiling:    100,
		EmailWindow:  15 * time.Minute,
		EmailCeiling: ceiling,
	}
	return NewAccountant(store, keys, limits, NewLockout(store, keys, 0, 0, quietLogger()))
}

func TestAccountant_RecordIPAttempt(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := counter.NewRedisClient(counter.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	store := counter.NewRedisStore(client, time.Second)
	defer store.Close()

	a := newAccountant(t, store, 5)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := a.RecordIPAttempt(ctx, "203.0.113.7")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, time.Hour, mr.TTL("loginguard:ip-window:203.0.113.7"))

	mr.FastForward(10 * time.Minute)
	ttl, err := a.IPRetryAfter(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, 50*time.Minute, ttl)
}

func TestAccountant_RecordEmailAttemptBreachesAboveCeiling(t *testing.T) {
	store := counter.NewMemoryStore()
	a := newAccountant(t, store, 3)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		out, err := a.RecordEmailAttempt(ctx, "a@x.io")
		require.NoError(t, err)
		assert.Equal(t, i, out.Count)
		assert.False(t, out.Locked)
	}

	out, err := a.RecordEmailAttempt(ctx, "A@X.io")
	require.NoError(t, err)
	assert.Equal(t, int64(4), out.Count)
	assert.True(t, out.Locked)
	assert.Equal(t, time.Minute, out.LockFor)

	lock, ok, err := store.GetLock(ctx, "loginguard:lock:a@x.io")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Minute, lock.Remaining)
}

func TestAccountant_RecordFailureBreachesAtCeiling(t *testing.T) {
	store := counter.NewMemoryStore()
	a := newAccountant(t, store, 5)
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		out, err := a.RecordFailure(ctx, "a@x.io")
		require.NoError(t, err)
		assert.False(t, out.Locked)
	}

	out, err := a.RecordFailure(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.Count)
	assert.True(t, out.Locked)
	assert.Equal(t, 30*time.Second, out.LockFor)

	// Further breaches refresh the lock with an escalated duration.
	_, err = a.RecordFailure(ctx, "a@x.io")
	require.NoError(t, err)
	out, err = a.RecordFailure(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, out.LockFor)

	lock, ok, err := store.GetLock(ctx, "loginguard:lock:a@x.io")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2*time.Minute, lock.Remaining)
}

func TestAccountant_CountersAreIndependent(t *testing.T) {
	store := counter.NewMemoryStore()
	a := newAccountant(t, store, 5)
	ctx := context.Background()

	_, err := a.RecordEmailAttempt(ctx, "a@x.io")
	require.NoError(t, err)
	out, err := a.RecordFailure(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Count)

	out, err = a.RecordEmailAttempt(ctx, "b@x.io")
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Count)
}

func TestAccountant_Counts(t *testing.T) {
	store := counter.NewMemoryStore()
	a := newAccountant(t, store, 5)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := a.RecordEmailAttempt(ctx, "a@x.io")
		require.NoError(t, err)
	}
	_, err := a.RecordFailure(ctx, "a@x.io")
	require.NoError(t, err)

	attempts, failures, window, err := a.Counts(ctx, "A@x.io")
	require.NoError(t, err)
	assert.Equal(t, int64(3), attempts)
	assert.Equal(t, int64(1), failures)
	assert.Equal(t, 15*time.Minute, window)
}

func TestAccountant_StoreError(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := counter.NewRedisClient(counter.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	store := counter.NewRedisStore(client, time.Second)
	defer store.Close()
	a := newAccountant(t, store, 5)
	mr.Close()

	_, err = a.RecordIPAttempt(context.Background(), "1.2.3.4")
	assert.ErrorIs(t, err, counter.ErrStoreUnavailable)
	_, err = a.RecordEmailAttempt(context.Background(), "a@x.io")
	assert.ErrorIs(t, err, counter.ErrStoreUnavailable)
	_, err = a.RecordFailure(context.Background(), "a@x.io")
	assert.ErrorIs(t, err, counter.ErrStoreUnavailable)
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	assert.Equal(t, time.Hour, l.IPWindow)
	assert.Equal(t, int64(100), l.IPCeiling)
	assert.Equal(t, 15*time.Minute, l.EmailWindow)
	assert.Equal(t, int64(5), l.EmailCeiling)
}
