package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phenomenon0/bet-copilot/core"
)

// ErrCacheMiss is returned by a KV for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// KV is the byte store behind a Cached link.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisKV stores entries in Redis.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV wraps a connected client.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// DialRedis parses a redis:// URL and pings the server.
func DialRedis(ctx context.Context, redisURL string) (*RedisKV, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisKV{client: client}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the connection pool.
func (r *RedisKV) Close() error {
	return r.client.Close()
}

// MemoryKV is an in-process KV for tests and single-node runs.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryKV creates an empty store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || (!e.expires.IsZero() && !m.now().Before(e.expires)) {
		delete(m.entries, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// Cached is a read-through chain link over a KV. A miss is a failure so
// the chain moves on to live providers; Store writes results back.
type Cached[In, T any] struct {
	name     string
	kv       KV
	key      func(In) string
	ttl      time.Duration
	classify func(T) core.Result[T]
}

// NewCached creates a cache link. key maps a request to its cache key.
func NewCached[In, T any](name string, kv KV, ttl time.Duration, key func(In) string) *Cached[In, T] {
	return &Cached[In, T]{name: name, kv: kv, key: key, ttl: ttl}
}

// Classify sets how a hit is reported, so a value the live link marked
// degraded stays degraded when served from the cache. Hits are successes
// by default.
func (c *Cached[In, T]) Classify(fn func(T) core.Result[T]) *Cached[In, T] {
	c.classify = fn
	return c
}

func (c *Cached[In, T]) Name() string    { return c.name }
func (c *Cached[In, T]) Available() bool { return c != nil && c.kv != nil }

// Call looks the request up.
func (c *Cached[In, T]) Call(ctx context.Context, in In) core.Result[T] {
	b, err := c.kv.Get(ctx, c.key(in))
	if err != nil {
		return core.Failure[T](core.FromContext(c.name, err))
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return core.Failure[T](core.BadResponse(c.name, err))
	}
	if c.classify != nil {
		return c.classify(v)
	}
	return core.Success(v)
}

// Store writes v under the request's key.
func (c *Cached[In, T]) Store(ctx context.Context, in In, v T) error {
	if !c.Available() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, c.key(in), b, c.ttl)
}
