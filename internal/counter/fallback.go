package counter

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// FallbackHook is invoked each time a call is served by the local store after
// the shared store failed.
type FallbackHook func(ctx context.Context, op string)

// FallbackStore routes every call to the shared store and retries it on the
// local store when that particular call fails. With a nil shared store it
// stays in local mode for its whole lifetime.
type FallbackStore struct {
	shared Store
	local  Store
	logger *slog.Logger
	hook   FallbackHook
}

// FallbackOption configures a FallbackStore.
type FallbackOption func(*FallbackStore)

// WithLogger sets the logger used for fallback warnings.
func WithLogger(logger *slog.Logger) FallbackOption {
	return func(f *FallbackStore) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFallbackHook registers a callback for every degraded call.
func WithFallbackHook(hook FallbackHook) FallbackOption {
	return func(f *FallbackStore) {
		f.hook = hook
	}
}

// NewFallbackStore creates a FallbackStore. local must not be nil.
func NewFallbackStore(shared, local Store, opts ...FallbackOption) *FallbackStore {
	f := &FallbackStore{
		shared: shared,
		local:  local,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Shared reports whether a shared store is configured.
func (f *FallbackStore) Shared() bool {
	return f.shared != nil
}

type lockResult struct {
	lock Lock
	ok   bool
}

func try[T any](ctx context.Context, f *FallbackStore, op, key string, call func(Store) (T, error)) (T, error) {
	if f.shared != nil {
		v, err := call(f.shared)
		if err == nil {
			return v, nil
		}
		f.degraded(ctx, op, key, err)
	}
	return call(f.local)
}

func (f *FallbackStore) degraded(ctx context.Context, op, key string, err error) {
	f.logger.WarnContext(ctx, "shared counter store failed, using local fallback",
		"op", op,
		"key", key,
		"error", err)
	if f.hook != nil {
		f.hook(ctx, op)
	}
}

// IncrementAndGet increments key on the shared store, or locally on failure.
func (f *FallbackStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, error) {
	return try(ctx, f, "increment", key, func(s Store) (int64, error) {
		return s.IncrementAndGet(ctx, key, window)
	})
}

// Count reads a counter.
func (f *FallbackStore) Count(ctx context.Context, key string) (int64, error) {
	return try(ctx, f, "count", key, func(s Store) (int64, error) {
		return s.Count(ctx, key)
	})
}

// TTL returns the remaining lifetime of key.
func (f *FallbackStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return try(ctx, f, "ttl", key, func(s Store) (time.Duration, error) {
		return s.TTL(ctx, key)
	})
}

// SetLock writes the lock record.
func (f *FallbackStore) SetLock(ctx context.Context, key string, ttl time.Duration) error {
	_, err := try(ctx, f, "set_lock", key, func(s Store) (struct{}, error) {
		return struct{}{}, s.SetLock(ctx, key, ttl)
	})
	return err
}

// GetLock reads the lock record.
func (f *FallbackStore) GetLock(ctx context.Context, key string) (Lock, bool, error) {
	res, err := try(ctx, f, "get_lock", key, func(s Store) (lockResult, error) {
		lock, ok, err := s.GetLock(ctx, key)
		return lockResult{lock: lock, ok: ok}, err
	})
	return res.lock, res.ok, err
}

// Delete removes keys from the shared store, or locally on failure.
func (f *FallbackStore) Delete(ctx context.Context, keys ...string) error {
	var first string
	if len(keys) > 0 {
		first = keys[0]
	}
	_, err := try(ctx, f, "delete", first, func(s Store) (struct{}, error) {
		return struct{}{}, s.Delete(ctx, keys...)
	})
	return err
}

// Ping reports the health of the shared store. In local mode it pings the
// local store.
func (f *FallbackStore) Ping(ctx context.Context) error {
	if f.shared != nil {
		return f.shared.Ping(ctx)
	}
	return f.local.Ping(ctx)
}

// Close closes both stores.
func (f *FallbackStore) Close() error {
	var errs []error
	if f.shared != nil {
		errs = append(errs, f.shared.Close())
	}
	errs = append(errs, f.local.Close())
	return errors.Join(errs...)
}
