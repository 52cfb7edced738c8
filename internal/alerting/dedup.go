package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Deduplicator decides whether an alert key is outside its cool-down window
type Deduplicator interface {
	// Acquire returns true when key has not been seen within the cool-down and
	// starts a new window for it.
	Acquire(ctx context.Context, key string) (bool, error)
}

// RedisDeduplicator keeps cool-down windows as expiring keys (SET NX PX)
type RedisDeduplicator struct {
	client   *redis.Client
	prefix   string
	cooldown time.Duration
}

// NewRedisDeduplicator creates a Redis-backed deduplicator
func NewRedisDeduplicator(client *redis.Client, prefix string, cooldown time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, prefix: prefix, cooldown: cooldown}
}

func (d *RedisDeduplicator) Acquire(ctx context.Context, key string) (bool, error) {
	if d.cooldown <= 0 {
		return true, nil
	}
	return d.client.SetNX(ctx, d.prefix+key, time.Now().Unix(), d.cooldown).Result()
}

// MemoryDeduplicator is the single-process fallback when Redis is not configured
type MemoryDeduplicator struct {
	mu        sync.Mutex
	cooldown  time.Duration
	until     map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryDeduplicator creates an in-memory deduplicator
func NewMemoryDeduplicator(cooldown time.Duration) *MemoryDeduplicator {
	return &MemoryDeduplicator{
		cooldown: cooldown,
		until:    make(map[string]time.Time),
		now:      time.Now,
	}
}

func (d *MemoryDeduplicator) Acquire(_ context.Context, key string) (bool, error) {
	if d.cooldown <= 0 {
		return true, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.lastSweep) >= d.cooldown {
		d.sweep(now)
	}
	if exp, ok := d.until[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.until[key] = now.Add(d.cooldown)
	return true, nil
}

// Len returns the number of live cool-down windows
func (d *MemoryDeduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.until)
}

// sweep drops expired windows; caller holds mu
func (d *MemoryDeduplicator) sweep(now time.Time) {
	for k, exp := range d.until {
		if !now.Before(exp) {
			delete(d.until, k)
		}
	}
	d.lastSweep = now
}
