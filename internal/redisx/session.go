package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sessions issues and validates anonymous cart session tokens.
type Sessions struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewSessions(rdb *redis.Client, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = TTLSession
	}
	return &Sessions{RDB: rdb, TTL: ttl}
}

func (s *Sessions) Create(ctx context.Context) (string, error) {
	token := uuid.NewString()
	if err := s.RDB.Set(ctx, fmt.Sprintf(KeySession, token), "1", s.TTL).Err(); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// Touch reports whether token is a live session and extends it if so.
func (s *Sessions) Touch(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	ok, err := s.RDB.Expire(ctx, fmt.Sprintf(KeySession, token), s.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("touch session: %w", err)
	}
	return ok, nil
}
