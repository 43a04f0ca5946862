package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore claims client-generated send keys so a retried send
// is recognised before it reaches the database.
type IdempotencyStore struct {
	r   *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(c *Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{r: c.R, ttl: ttl}
}

// Claim returns true the first time key is seen within the TTL.
func (s *IdempotencyStore) Claim(ctx context.Context, key string) (bool, error) {
	return s.r.SetNX(ctx, "idem:"+key, "1", s.ttl).Result()
}

// Release forgets a claim whose send failed, so the client may retry.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.r.Del(ctx, "idem:"+key).Err()
}
