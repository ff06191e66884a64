package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript performs INCR and the first-hit PEXPIRE in one round trip so a
// crash between the two commands cannot leave a counter without a TTL.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 and tonumber(ARGV[1]) > 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// RedisConfig holds connection settings for the shared store.
type RedisConfig struct {
	// Addr is either host:port or a redis:// URL.
	Addr           string
	Password       string
	DB             int
	PoolSize       int
	DialTimeout    time.Duration
	CommandTimeout time.Duration
}

// RedisStore is the shared Store backed by Redis. Every command runs under its
// own timeout; failures are reported as ErrStoreUnavailable.
type RedisStore struct {
	client  redis.UniversalClient
	timeout time.Duration
	now     func() time.Time
}

// NewRedisClient builds a go-redis client from cfg without contacting the server.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	var opts *redis.Options
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		parsed, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.CommandTimeout > 0 {
		opts.ReadTimeout = cfg.CommandTimeout
		opts.WriteTimeout = cfg.CommandTimeout
	}
	// Fail fast so a dead primary degrades one request instead of stalling it.
	opts.MaxRetries = 0

	return redis.NewClient(opts), nil
}

// NewRedisStore wraps an existing client. A zero commandTimeout disables the
// per-call deadline.
func NewRedisStore(client redis.UniversalClient, commandTimeout time.Duration) *RedisStore {
	return &RedisStore{
		client:  client,
		timeout: commandTimeout,
		now:     time.Now,
	}
}

// Client exposes the underlying go-redis client.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// IncrementAndGet increments key and attaches the window on the first hit.
func (s *RedisStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	count, err := incrementScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

// Count reads a counter without modifying it.
func (s *RedisStore) Count(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// TTL returns the remaining lifetime of key, 0 when absent or persistent.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// PTTL reports -2 (missing) and -1 (no expiry) as raw negative values.
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// SetLock writes the lock record with its creation time as the value.
func (s *RedisStore) SetLock(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	created := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.client.Set(ctx, key, created, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetLock reads the lock value and its remaining TTL in one pipeline.
func (s *RedisStore) GetLock(ctx context.Context, key string) (Lock, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var getCmd *redis.StringCmd
	var ttlCmd *redis.DurationCmd
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		getCmd = p.Get(ctx, key)
		ttlCmd = p.PTTL(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Lock{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	raw, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return Lock{}, false, nil
	}
	if err != nil {
		return Lock{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	remaining := ttlCmd.Val()
	if remaining <= 0 {
		return Lock{}, false, nil
	}

	lock := Lock{Remaining: remaining}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		lock.CreatedAt = time.UnixMilli(ms)
	}
	return lock, true, nil
}

// Delete removes keys in a single DEL.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
