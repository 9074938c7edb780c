package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session as one Redis hash, field per entry key. The
// whole hash expires together; individual entry expiry is enforced by the
// caller's sweep.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	lifetime time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:   client,
		prefix:   "sess:",
		lifetime: 48 * time.Hour,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) Get(ctx context.Context, sessionID, key string) (Entry, bool, error) {
	raw, err := s.client.HGet(ctx, s.key(sessionID), key).Result()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get session entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// Malformed payloads are reported present so the sweep can delete them.
		return Entry{}, true, nil
	}
	return entry, true, nil
}

func (s *RedisStore) Put(ctx context.Context, sessionID, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal session entry: %w", err)
	}
	name := s.key(sessionID)
	if err := s.client.HSet(ctx, name, key, raw).Err(); err != nil {
		return fmt.Errorf("put session entry: %w", err)
	}
	if err := s.client.Expire(ctx, name, s.lifetime).Err(); err != nil {
		return fmt.Errorf("refresh session ttl: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID, key string) error {
	if err := s.client.HDel(ctx, s.key(sessionID), key).Err(); err != nil {
		return fmt.Errorf("delete session entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context, sessionID string) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list session keys: %w", err)
	}
	return keys, nil
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
