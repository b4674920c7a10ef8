package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient is the narrow slice of Redis used by RedisMap. Production
// code goes through go-redis; tests substitute a map-backed fake.
type redisClient interface {
	set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	get(ctx context.Context, key string) ([]byte, bool, error)
	del(ctx context.Context, keys ...string) (int64, error)
	scan(ctx context.Context, match string) ([]string, error)
}

// goRedisClient adapts *redis.Client to redisClient.
type goRedisClient struct {
	rdb *redis.Client
}

func (c goRedisClient) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c goRedisClient) get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c goRedisClient) del(ctx context.Context, keys ...string) (int64, error) {
	return c.rdb.Del(ctx, keys...).Result()
}

func (c goRedisClient) scan(ctx context.Context, match string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// RedisMap is a Redis-backed Map for multi-server deployments. Records
// are stored gob-encoded under a key prefix; a finite expiry doubles as
// the key's TTL so Redis reaps stale sessions on its own.
//
// Get returns a freshly decoded handle each call. Mutations made through
// such a handle reach Redis when the caller Inserts it back; the cookie
// middleware does this once per request.
type RedisMap struct {
	client redisClient
	prefix string
	config Config
	closed atomic.Bool
}

// RedisMapOption configures RedisMap behavior.
type RedisMapOption func(*redisMapConfig)

type redisMapConfig struct {
	prefix string
}

// WithRedisPrefix sets the key prefix for session keys.
// Default: "sessio:session:".
func WithRedisPrefix(prefix string) RedisMapOption {
	return func(c *redisMapConfig) {
		c.prefix = prefix
	}
}

// NewRedisMap creates a Redis-backed map. The config is attached to every
// record decoded from Redis; it should match the config the sessions were
// created with.
func NewRedisMap(rdb *redis.Client, config Config, opts ...RedisMapOption) *RedisMap {
	return newRedisMap(goRedisClient{rdb: rdb}, config, opts...)
}

func newRedisMap(client redisClient, config Config, opts ...RedisMapOption) *RedisMap {
	cfg := &redisMapConfig{
		prefix: "sessio:session:",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &RedisMap{
		client: client,
		prefix: cfg.prefix,
		config: config,
	}
}

// key returns the Redis key for a session id.
func (m *RedisMap) key(id string) string {
	return m.prefix + id
}

// List loads and decodes every stored session.
func (m *RedisMap) List(ctx context.Context) ([]*Data, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	keys, err := m.client.scan(ctx, m.prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("session: redis scan: %w", err)
	}

	out := make([]*Data, 0, len(keys))
	for _, key := range keys {
		b, ok, err := m.client.get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("session: redis get: %w", err)
		}
		if !ok {
			// Expired between scan and get.
			continue
		}
		d, err := Decode(b, m.config)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Get returns a decoded handle for the session under id, or nil.
func (m *RedisMap) Get(ctx context.Context, id string) (*Data, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	b, ok, err := m.client.get(ctx, m.key(id))
	if err != nil {
		return nil, fmt.Errorf("session: redis get: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return Decode(b, m.config)
}

// Insert encodes the record and stores it under id. A finite expiry maps
// to the key's TTL; never-expiring and already-expired records are stored
// without one (the latter stay visible to Get until a sweep, matching the
// in-memory backend).
func (m *RedisMap) Insert(ctx context.Context, id string, data *Data) error {
	if m.closed.Load() {
		return ErrClosed
	}

	b, err := Encode(data)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if expires := data.Expires(); !expires.IsZero() {
		ttl = time.Until(expires)
		if ttl <= 0 {
			ttl = 0
		}
	}
	if err := m.client.set(ctx, m.key(id), b, ttl); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

// Remove deletes the session under id.
func (m *RedisMap) Remove(ctx context.Context, id string) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}

	n, err := m.client.del(ctx, m.key(id))
	if err != nil {
		return false, fmt.Errorf("session: redis del: %w", err)
	}
	return n > 0, nil
}

// RemoveExpired deletes every stored record that reports itself expired.
// This catches invalidated records and records stored without a TTL;
// TTL-bearing keys that Redis already reaped are not counted.
func (m *RedisMap) RemoveExpired(ctx context.Context) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}

	keys, err := m.client.scan(ctx, m.prefix+"*")
	if err != nil {
		return 0, fmt.Errorf("session: redis scan: %w", err)
	}

	removed := 0
	for _, key := range keys {
		b, ok, err := m.client.get(ctx, key)
		if err != nil {
			return removed, fmt.Errorf("session: redis get: %w", err)
		}
		if !ok {
			continue
		}
		d, err := Decode(b, m.config)
		if err != nil {
			return removed, err
		}
		if !d.Expired() {
			continue
		}
		n, err := m.client.del(ctx, key)
		if err != nil {
			return removed, fmt.Errorf("session: redis del: %w", err)
		}
		if n > 0 {
			removed++
		}
	}
	return removed, nil
}

// Clear deletes every stored session. Handles decoded earlier are
// independent copies; the invalidate-before-remove visibility guarantee
// belongs to LocalMap.
func (m *RedisMap) Clear(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}

	keys, err := m.client.scan(ctx, m.prefix+"*")
	if err != nil {
		return fmt.Errorf("session: redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if _, err := m.client.del(ctx, keys...); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

// Close marks the map as closed. It does not close the underlying Redis
// client, which may be shared with other components.
func (m *RedisMap) Close() error {
	m.closed.Store(true)
	return nil
}
