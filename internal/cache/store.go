// Package cache provides the fast-store projection layer. The relational
// database stays the source of truth; everything here is a disposable,
// TTL-bounded, invalidate-on-write copy.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is the minimal key/value surface the projection layer needs:
// get, set-with-expiry, delete. *Redis satisfies it in production and
// *Memory in tests.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Redis is the production Store backed by go-redis.
type Redis struct {
	Client *redis.Client
}

// NewRedis dials a redis server at addr using the given logical db.
func NewRedis(addr string, db int) *Redis {
	return &Redis{Client: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// Get fetches the raw value for key, mapping redis.Nil to ErrMiss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	return b, err
}

// SetEx stores value under key with a TTL.
func (r *Redis) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.Client.Set(ctx, key, value, ttl).Err()
}

// Del removes key. Deleting an absent key is not an error.
func (r *Redis) Del(ctx context.Context, key string) error {
	return r.Client.Del(ctx, key).Err()
}

// Ping verifies connectivity; used by the health endpoint and at startup.
func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// Memory is an in-process Store used by tests. TTLs are honored lazily on
// read.
type Memory struct {
	mu     sync.Mutex
	values map[string]memEntry
}

type memEntry struct {
	data    []byte
	expires time.Time
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]memEntry)}
}

// Get returns the stored value or ErrMiss when absent/expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.values[key]
	if !ok {
		return nil, ErrMiss
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(m.values, key)
		return nil, ErrMiss
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

// SetEx stores value under key; ttl <= 0 means no expiry.
func (m *Memory) SetEx(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memEntry{data: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	m.values[key] = e
	return nil
}

// Del removes key.
func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
