package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultOpTimeout bounds every Redis round-trip. Auth verification sits
// on the request hot path; a dead cache must fail fast, not hang.
const defaultOpTimeout = 2 * time.Second

// Redis implements KV over a go-redis client.
type Redis struct {
	client    *redis.Client
	opTimeout time.Duration
}

// NewRedis wraps client and verifies connectivity with a ping.
func NewRedis(ctx context.Context, client *redis.Client) (*Redis, error) {
	r := &Redis{client: client, opTimeout: defaultOpTimeout}

	pingCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return r, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, nil
}

func (r *Redis) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
