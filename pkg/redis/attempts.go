package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Attempts counts failed logins per username in a sliding lock window.
type Attempts struct {
	rdb    goredis.Cmdable
	window time.Duration
}

func NewAttempts(rdb goredis.Cmdable, window time.Duration) *Attempts {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Attempts{rdb: rdb, window: window}
}

func attemptsKey(username string) string {
	return "login:attempts:" + username
}

// Fail records one failed attempt and returns the running count.
func (a *Attempts) Fail(ctx context.Context, username string) (int, error) {
	key := attemptsKey(username)
	n, err := a.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("record login attempt: %w", err)
	}
	if n == 1 {
		a.rdb.Expire(ctx, key, a.window)
	}
	return int(n), nil
}

func (a *Attempts) Count(ctx context.Context, username string) (int, error) {
	n, err := a.rdb.Get(ctx, attemptsKey(username)).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read login attempts: %w", err)
	}
	return n, nil
}

func (a *Attempts) Reset(ctx context.Context, username string) error {
	return a.rdb.Del(ctx, attemptsKey(username)).Err()
}
