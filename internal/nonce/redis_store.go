package nonce

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares nonce claims between instances. Keys expire on their own,
// so Sweep has nothing to do.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    Retention,
	}
}

func (s *RedisStore) Claim(ctx context.Context, n string) (bool, error) {
	if !Valid(n) {
		return false, ErrInvalidNonce
	}
	ok, err := s.client.SetNX(ctx, nonceKey(n), time.Now().UnixMilli(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Sweep(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func nonceKey(n string) string {
	return fmt.Sprintf("nonce:%s", n)
}
