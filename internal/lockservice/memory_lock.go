package lockservice

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ridecore/internal/apperr"
)

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryLock is the in-process Service fallback that cmd/server/main.go uses
// when the Redis ping fails at startup, mirroring the teacher's pattern of
// falling back to an in-memory implementation of a Redis-backed component.
type MemoryLock struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{entries: make(map[string]memoryEntry)}
}

func (l *MemoryLock) Acquire(_ context.Context, name string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if existing, ok := l.entries[name]; ok && existing.expires.After(now) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.entries[name] = memoryEntry{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *MemoryLock) Release(_ context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.entries[name]
	if !ok || existing.token != token {
		return apperr.Conflictf("lock %q not held by this token", name)
	}
	delete(l.entries, name)
	return nil
}

func (l *MemoryLock) WithLock(ctx context.Context, name string, ttl time.Duration, body func(ctx context.Context) error) error {
	token, ok, err := l.Acquire(ctx, name, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflictf("could not acquire lock %q", name)
	}
	defer func() { _ = l.Release(context.Background(), name, token) }()
	return body(ctx)
}
