package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"feedline/internal/config"
	"feedline/internal/models"
	"feedline/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionStrategy keeps server-side sessions in Redis keyed by a random id.
type SessionStrategy struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionStrategy returns a SessionStrategy with the given lifetime.
func NewSessionStrategy(rdb *redis.Client, ttl time.Duration) *SessionStrategy {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStrategy{rdb: rdb, ttl: ttl}
}

func (s *SessionStrategy) Name() string { return config.AuthStrategySession }

func sessionKey(id string) string { return "session:" + id }

// Issue stores a new session for user.
func (s *SessionStrategy) Issue(ctx context.Context, user *models.User) (Proof, error) {
	sid := uuid.NewString()
	if err := s.rdb.Set(ctx, sessionKey(sid), strconv.FormatUint(uint64(user.ID), 10), s.ttl).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("session_create").Inc()
		return Proof{}, fmt.Errorf("create session: %w", err)
	}
	return Proof{Value: sid, ExpiresAt: time.Now().Add(s.ttl)}, nil
}

// Resolve returns the user bound to the session id.
func (s *SessionStrategy) Resolve(ctx context.Context, raw string) (uint, error) {
	if _, err := uuid.Parse(raw); err != nil {
		return 0, ErrInvalidProof
	}
	val, err := s.rdb.Get(ctx, sessionKey(raw)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrInvalidProof
	}
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("session_get").Inc()
		return 0, fmt.Errorf("load session: %w", err)
	}
	userID, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, ErrInvalidProof
	}
	return uint(userID), nil
}

// Revoke deletes the session.
func (s *SessionStrategy) Revoke(ctx context.Context, raw string) error {
	if err := s.rdb.Del(ctx, sessionKey(raw)).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("session_delete").Inc()
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
