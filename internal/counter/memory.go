package counter

import (
	"context"
	"sync"
	"time"
)

// defaultPurgeEvery is the number of writes between inline sweeps of expired entries.
const defaultPurgeEvery = 1024

// entry is a single counter or lock. Times are unix milliseconds; expiresAt 0
// means the entry never expires.
type entry struct {
	count     int64
	expiresAt int64
	createdAt int64
	lock      bool
}

// MemoryStore is the process-local Store. Entries live in one map owned by the
// store and expire lazily when they are next touched; every purgeEvery writes
// the store also drops expired entries inline, so no background goroutine is
// needed. It offers no cross-process guarantee.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*entry
	now        func() time.Time
	writes     uint64
	purgeEvery uint64
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// WithPurgeEvery sets how many writes pass between inline sweeps.
func WithPurgeEvery(n uint64) MemoryOption {
	return func(m *MemoryStore) {
		if n > 0 {
			m.purgeEvery = n
		}
	}
}

// NewMemoryStore creates an empty process-local store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		entries:    make(map[string]*entry),
		now:        time.Now,
		purgeEvery: defaultPurgeEvery,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IncrementAndGet increments key, attaching the window only on the first hit.
func (m *MemoryStore) IncrementAndGet(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UnixMilli()
	e := m.live(key, now)
	if e == nil {
		e = &entry{}
		m.entries[key] = e
	}
	e.count++
	if e.count == 1 && window > 0 {
		e.expiresAt = now + window.Milliseconds()
	}
	m.wrote(now)
	return e.count, nil
}

// Count returns the live value of a counter.
func (m *MemoryStore) Count(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key, m.now().UnixMilli())
	if e == nil || e.lock {
		return 0, nil
	}
	return e.count, nil
}

// TTL returns the remaining lifetime of key.
func (m *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UnixMilli()
	e := m.live(key, now)
	if e == nil || e.expiresAt == 0 {
		return 0, nil
	}
	return time.Duration(e.expiresAt-now) * time.Millisecond, nil
}

// SetLock stores a lock record, replacing any previous one.
func (m *MemoryStore) SetLock(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UnixMilli()
	m.entries[key] = &entry{
		lock:      true,
		createdAt: now,
		expiresAt: now + ttl.Milliseconds(),
	}
	m.wrote(now)
	return nil
}

// GetLock returns the live lock stored under key.
func (m *MemoryStore) GetLock(_ context.Context, key string) (Lock, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UnixMilli()
	e := m.live(key, now)
	if e == nil || !e.lock {
		return Lock{}, false, nil
	}
	return Lock{
		Remaining: time.Duration(e.expiresAt-now) * time.Millisecond,
		CreatedAt: time.UnixMilli(e.createdAt),
	}, true, nil
}

// Delete removes keys from the store.
func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

// Ping always succeeds for the local store.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close drops all entries.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry)
	return nil
}

// Len returns the number of entries currently held, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// live returns the entry for key, deleting it first if it has expired.
// Callers must hold m.mu.
func (m *MemoryStore) live(key string, now int64) *entry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if expired(e, now) {
		delete(m.entries, key)
		return nil
	}
	return e
}

// wrote counts a write and sweeps expired entries every purgeEvery writes.
// Callers must hold m.mu.
func (m *MemoryStore) wrote(now int64) {
	m.writes++
	if m.writes%m.purgeEvery != 0 {
		return
	}
	for key, e := range m.entries {
		if expired(e, now) {
			delete(m.entries, key)
		}
	}
}

func expired(e *entry, now int64) bool {
	return e.expiresAt != 0 && now >= e.expiresAt
}
