package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupCache reports whether a fault key was already seen within its window.
// The first call for a key marks it and returns false.
type DedupCache interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// MemoryDedup is a bounded in-process DedupCache. Expired keys are dropped
// lazily; when full, the key closest to expiry is evicted.
type MemoryDedup struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiresAt
	ttl     time.Duration
	size    int
	now     func() time.Time
}

func NewMemoryDedup(ttl time.Duration, size int) *MemoryDedup {
	if size <= 0 {
		size = 1024
	}
	return &MemoryDedup{
		entries: make(map[string]time.Time, size),
		ttl:     ttl,
		size:    size,
		now:     time.Now,
	}
}

func (m *MemoryDedup) Seen(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiresAt, ok := m.entries[key]; ok {
		if now.Before(expiresAt) {
			return true, nil
		}
		delete(m.entries, key)
	}

	if len(m.entries) >= m.size {
		m.cleanupExpiredLocked(now)
	}
	if len(m.entries) >= m.size {
		m.evictOldestLocked()
	}
	m.entries[key] = now.Add(m.ttl)
	return false, nil
}

func (m *MemoryDedup) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryDedup) cleanupExpiredLocked(now time.Time) {
	for key, expiresAt := range m.entries {
		if !now.Before(expiresAt) {
			delete(m.entries, key)
		}
	}
}

func (m *MemoryDedup) evictOldestLocked() {
	var oldest string
	var oldestAt time.Time
	for key, expiresAt := range m.entries {
		if oldest == "" || expiresAt.Before(oldestAt) {
			oldest, oldestAt = key, expiresAt
		}
	}
	delete(m.entries, oldest)
}

// RedisDedup shares the dedup window across instances with SET NX EX.
type RedisDedup struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDedup(client *redis.Client, ttl time.Duration) *RedisDedup {
	return &RedisDedup{client: client, ttl: ttl}
}

func (r *RedisDedup) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, "audit:dedup:"+key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx dedup: %w", err)
	}
	return !ok, nil
}
