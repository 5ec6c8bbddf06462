// Package idempotency implements the Idempotency Store (§2 item 5): a
// key -> cached response map with TTL and first-writer-wins semantics,
// used by §4.6's payment settlement (`payment:<idempotencyKey>`). createRide
// does not use it; it deduplicates on the rides table's idempotency key.
// Grounded on the teacher's
// internal/dispatch/idemCache (in-memory TTL map) and
// internal/storage/idempotency.go (durable Postgres-backed variant),
// generalized from a ride-id-only cache to an arbitrary cached-response
// store.
package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the Idempotency Store contract. PutIfAbsent only stores value
// when key is not already present (first-writer-wins); it reports whether
// this call was the one that won.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (stored bool, err error)
}

type memEntry struct {
	value  []byte
	expiry time.Time
}

// MemoryStore is the in-process fallback implementation.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiry) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok && time.Now().Before(entry.expiry) {
		return false, nil
	}
	s.entries[key] = memEntry{value: value, expiry: time.Now().Add(ttl)}
	return true, nil
}

// RedisStore is the distributed implementation, using SETNX for the
// first-writer-wins guarantee across process instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "idem:"}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+key, value, ttl).Result()
}
