package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

// Sessions tracks live login sessions under session:<id>. A token whose
// session key is gone is rejected even before it expires.
type Sessions struct {
	rdb goredis.Cmdable
}

func NewSessions(rdb goredis.Cmdable) *Sessions {
	return &Sessions{rdb: rdb}
}

func sessionKey(id uuid.UUID) string {
	return "session:" + id.String()
}

// Open records a session for staffID that lives for ttl.
func (s *Sessions) Open(ctx context.Context, id, staffID uuid.UUID, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, sessionKey(id), staffID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	return nil
}

// Owner returns the staff id a live session belongs to.
func (s *Sessions) Owner(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	v, err := s.rdb.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return uuid.Nil, ErrSessionNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("read session: %w", err)
	}
	return uuid.Parse(v)
}

// Extend pushes the session expiry out to ttl from now.
func (s *Sessions) Extend(ctx context.Context, id uuid.UUID, ttl time.Duration) error {
	ok, err := s.rdb.Expire(ctx, sessionKey(id), ttl).Result()
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

func (s *Sessions) Close(ctx context.Context, id uuid.UUID) error {
	return s.rdb.Del(ctx, sessionKey(id)).Err()
}
