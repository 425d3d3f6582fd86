package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares claims between scheduler instances through SETNX.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore keeps claims forever when ttl is zero.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "automation:sent:", ttl: ttl}
}

func (s *RedisStore) Claim(ctx context.Context, key Key) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key.String(), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim %s: %w", key, err)
	}
	return ok, nil
}
