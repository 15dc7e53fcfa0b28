// Package idempotency provides the deduplication guard used by handlers that
// react to at-least-once message delivery. The guard is two-phase on
// purpose: Seen is checked before any work, Mark is committed only after the
// whole unit of work succeeded, so a handler that errors partway stays
// re-runnable.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	rediscommon "github.com/sellerhub/marking/common/redis"
)

// Guard answers "already processed?" for a namespaced composite key
type Guard interface {
	Seen(ctx context.Context, namespace, key string) (bool, error)
	Mark(ctx context.Context, namespace, key string) error
}

// RedisGuard stores processed keys in Redis with a TTL
type RedisGuard struct {
	redis *rediscommon.Client
	ttl   time.Duration
}

// NewRedisGuard creates a Redis-backed guard
func NewRedisGuard(client *rediscommon.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{redis: client, ttl: ttl}
}

func guardKey(namespace, key string) string {
	return fmt.Sprintf("guard:%s:%s", namespace, key)
}

// Seen reports whether the key was already marked processed
func (g *RedisGuard) Seen(ctx context.Context, namespace, key string) (bool, error) {
	_, found, err := g.redis.Get(ctx, guardKey(namespace, key))
	if err != nil {
		return false, fmt.Errorf("guard lookup failed: %w", err)
	}
	return found, nil
}

// Mark records the key as processed
func (g *RedisGuard) Mark(ctx context.Context, namespace, key string) error {
	if err := g.redis.Set(ctx, guardKey(namespace, key), "1", g.ttl); err != nil {
		return fmt.Errorf("guard mark failed: %w", err)
	}
	return nil
}

// MemoryGuard is an in-process guard for tests
type MemoryGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewMemoryGuard creates an in-memory guard
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{seen: make(map[string]bool)}
}

// Seen reports whether the key was already marked processed
func (g *MemoryGuard) Seen(ctx context.Context, namespace, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen[guardKey(namespace, key)], nil
}

// Mark records the key as processed
func (g *MemoryGuard) Mark(ctx context.Context, namespace, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[guardKey(namespace, key)] = true
	return nil
}
