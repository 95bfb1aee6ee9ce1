package token

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const denylistPrefix = "token:revoked:"

// RedisDenylist stores revoked token IDs in redis with a TTL matching the
// token's remaining lifetime, so entries expire on their own.
type RedisDenylist struct {
	client *redis.Client
}

// NewRedisDenylist constructs a RedisDenylist.
func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client}
}

// Revoke marks the token ID as revoked until ttl elapses.
func (d *RedisDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return d.client.Set(ctx, denylistPrefix+jti, "1", ttl).Err()
}

// IsRevoked reports whether the token ID has been revoked.
func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, denylistPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ Denylist = (*RedisDenylist)(nil)
