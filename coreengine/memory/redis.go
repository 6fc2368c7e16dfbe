package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "assistant:memory:"

// RedisStore keeps history in a Redis list per session.
type RedisStore struct {
	client     redis.UniversalClient
	ttl        time.Duration
	maxEntries int
}

// NewRedisStore creates a RedisStore on an existing client.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration, maxEntries int) *RedisStore {
	if maxEntries <= 0 {
		maxEntries = 50
	}
	return &RedisStore{client: client, ttl: ttl, maxEntries: maxEntries}
}

// DialRedis parses a redis:// URL, connects and pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

// Append pushes the exchange, trims the list and refreshes the TTL atomically.
func (s *RedisStore) Append(ctx context.Context, sessionID string, ex Exchange) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshal exchange: %w", err)
	}

	k := key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, k, data)
	pipe.LTrim(ctx, k, int64(-s.maxEntries), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append memory for %s: %w", sessionID, err)
	}
	return nil
}

// History returns the most recent exchanges, oldest first.
func (s *RedisStore) History(ctx context.Context, sessionID string, limit int) ([]Exchange, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, key(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load memory for %s: %w", sessionID, err)
	}

	out := make([]Exchange, 0, len(raw))
	for _, item := range raw {
		var ex Exchange
		if err := json.Unmarshal([]byte(item), &ex); err != nil {
			return nil, fmt.Errorf("decode memory for %s: %w", sessionID, err)
		}
		out = append(out, ex)
	}
	return out, nil
}

// Clear removes the session's history.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear memory for %s: %w", sessionID, err)
	}
	return nil
}
