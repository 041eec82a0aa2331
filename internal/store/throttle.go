package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultWelcomeCooldown is how long a greeted contact is not greeted again.
const DefaultWelcomeCooldown = 24 * time.Hour

// Throttle gates the welcome message per conversation.
type Throttle interface {
	// Allow reports whether id may be greeted at now and, when it may,
	// records the greeting.
	Allow(ctx context.Context, id string, now time.Time) (bool, error)
	// Forget drops the greeting recorded for id, so the next Allow succeeds.
	// It is used when the welcome could not be delivered.
	Forget(ctx context.Context, id string) error
}

// MemoryThrottle keeps last-greeted timestamps in process memory.
// Entries are only deleted by Forget.
type MemoryThrottle struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[string]time.Time
}

// NewMemoryThrottle creates a MemoryThrottle. A non-positive cooldown uses DefaultWelcomeCooldown.
func NewMemoryThrottle(cooldown time.Duration) *MemoryThrottle {
	if cooldown <= 0 {
		cooldown = DefaultWelcomeCooldown
	}
	return &MemoryThrottle{cooldown: cooldown, last: make(map[string]time.Time)}
}

// Allow implements Throttle.
func (t *MemoryThrottle) Allow(_ context.Context, id string, now time.Time) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last[id]; ok && now.Sub(last) < t.cooldown {
		return false, nil
	}
	t.last[id] = now
	return true, nil
}

// Forget implements Throttle.
func (t *MemoryThrottle) Forget(_ context.Context, id string) error {
	t.mu.Lock()
	delete(t.last, id)
	t.mu.Unlock()
	return nil
}

// RedisThrottle stores greetings as expiring Redis keys so the cooldown
// survives restarts and is shared between instances. Expiry uses the Redis
// server clock, so the now argument only feeds the stored value.
type RedisThrottle struct {
	client   *redis.Client
	cooldown time.Duration
	prefix   string
}

// NewRedisThrottle creates a RedisThrottle. A non-positive cooldown uses DefaultWelcomeCooldown.
func NewRedisThrottle(client *redis.Client, cooldown time.Duration) *RedisThrottle {
	if cooldown <= 0 {
		cooldown = DefaultWelcomeCooldown
	}
	return &RedisThrottle{client: client, cooldown: cooldown, prefix: "carbot:greeted:"}
}

// Allow implements Throttle with SET NX PX.
func (t *RedisThrottle) Allow(ctx context.Context, id string, now time.Time) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.prefix+id, now.Unix(), t.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("redis throttle for %s: %w", id, err)
	}
	return ok, nil
}

// Forget implements Throttle.
func (t *RedisThrottle) Forget(ctx context.Context, id string) error {
	if err := t.client.Del(ctx, t.prefix+id).Err(); err != nil {
		return fmt.Errorf("redis throttle forget %s: %w", id, err)
	}
	return nil
}
