package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisSessionPrefix = "djmovie:ingest:session:"

// RedisClient is the subset of the Redis service the session store needs
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
	CountKeys(ctx context.Context, pattern string) (int64, error)
}

// RedisSessionStore shares sessions between engine instances. Keys expire
// after the idle timeout, which Redis enforces on its own.
type RedisSessionStore struct {
	client      RedisClient
	idleTimeout time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store
func NewRedisSessionStore(client RedisClient, idleTimeout time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, idleTimeout: idleTimeout}
}

func redisSessionKey(userID int64) string {
	return redisSessionPrefix + sessionKey(userID)
}

// Get loads and decodes the user's session
func (s *RedisSessionStore) Get(ctx context.Context, userID int64) (*Session, error) {
	raw, err := s.client.Get(ctx, redisSessionKey(userID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// Set encodes the session and refreshes its TTL
func (s *RedisSessionStore) Set(ctx context.Context, session *Session) error {
	if session == nil || session.Stage == nil {
		return fmt.Errorf("cannot store a session without a stage")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, redisSessionKey(session.UserID), string(data), s.idleTimeout); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear deletes the user's session
func (s *RedisSessionStore) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Delete(ctx, redisSessionKey(userID)); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Count scans for live session keys
func (s *RedisSessionStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.CountKeys(ctx, redisSessionPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return int(n), nil
}
