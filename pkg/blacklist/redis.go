package blacklist

import (
	"context"

	"github.com/StricklySoft/stricklysoft-tokens/pkg/clients/redis"
)

// DefaultKeyPrefix prefixes the Redis set of each tenant.
const DefaultKeyPrefix = "tokens:blacklist:"

// RedisSource keeps one Redis set of usernames per tenant.
type RedisSource struct {
	client *redis.Client
	prefix string
}

// NewRedisSource returns a source using client. An empty prefix means
// [DefaultKeyPrefix].
func NewRedisSource(client *redis.Client, prefix string) *RedisSource {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisSource{client: client, prefix: prefix}
}

// SetKey returns the Redis key of tenantID's set.
func (r *RedisSource) SetKey(tenantID string) string {
	return r.prefix + tenantID
}

// IsBlocked implements [Source].
func (r *RedisSource) IsBlocked(ctx context.Context, tenantID, username string) (bool, error) {
	return r.client.SIsMember(ctx, r.SetKey(tenantID), username)
}

// Block implements [Source].
func (r *RedisSource) Block(ctx context.Context, tenantID, username string) error {
	_, err := r.client.SAdd(ctx, r.SetKey(tenantID), username)
	return err
}

// Unblock implements [Source].
func (r *RedisSource) Unblock(ctx context.Context, tenantID, username string) error {
	_, err := r.client.SRem(ctx, r.SetKey(tenantID), username)
	return err
}

// Blocked lists the usernames blocked in tenantID, in no particular
// order.
func (r *RedisSource) Blocked(ctx context.Context, tenantID string) ([]string, error) {
	return r.client.SMembers(ctx, r.SetKey(tenantID))
}

// Reset drops every block of tenantID from Redis. Entries already cached
// by a [Service] stay until they expire or are unblocked.
func (r *RedisSource) Reset(ctx context.Context, tenantID string) error {
	_, err := r.client.Del(ctx, r.SetKey(tenantID))
	return err
}
