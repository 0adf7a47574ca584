// Package queue hands out same-day, per-doctor queue numbers.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// SeedFunc reports how many visits the doctor already has on the day. It is
// consulted once per doctor and day, before the first number is issued.
type SeedFunc func(ctx context.Context) (int, error)

// Counter allocates queue numbers atomically: concurrent callers for the same
// doctor and day never receive the same number.
type Counter interface {
	Next(ctx context.Context, doctorID uuid.UUID, day time.Time, seed SeedFunc) (int, error)
}

// Key is the counter key of doctorID on the local day starting at day.
func Key(doctorID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("queue:%s:%s", doctorID, day.Format("20060102"))
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

type redisCmds interface {
	Exists(ctx context.Context, keys ...string) *goredis.IntCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
	Incr(ctx context.Context, key string) *goredis.IntCmd
}

// keyTTL outlives the day so a late-evening visit still finds its counter.
const keyTTL = 36 * time.Hour

type RedisCounter struct {
	rdb redisCmds
}

func NewRedisCounter(rdb goredis.Cmdable) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// Next seeds the key with the stored visit count via SET NX, so only the
// first caller of the day seeds, then INCRs it.
func (c *RedisCounter) Next(ctx context.Context, doctorID uuid.UUID, day time.Time, seed SeedFunc) (int, error) {
	key := Key(doctorID, day)

	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: exists: %w", err)
	}
	if exists == 0 {
		n, err := seed(ctx)
		if err != nil {
			return 0, fmt.Errorf("queue: seed: %w", err)
		}
		if err := c.rdb.SetNX(ctx, key, n, keyTTL).Err(); err != nil {
			return 0, fmt.Errorf("queue: seed: %w", err)
		}
	}

	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: incr: %w", err)
	}
	return int(n), nil
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: map[string]int{}}
}

func (c *MemoryCounter) Next(ctx context.Context, doctorID uuid.UUID, day time.Time, seed SeedFunc) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(doctorID, day)
	n, ok := c.counts[key]
	if !ok {
		var err error
		if n, err = seed(ctx); err != nil {
			return 0, fmt.Errorf("queue: seed: %w", err)
		}
	}
	n++
	c.counts[key] = n
	return n, nil
}
