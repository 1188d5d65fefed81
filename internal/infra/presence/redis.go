package presence

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"marketchat/internal/domain/chat"
)

// RedisRegistry records live connections as short-TTL keys in a shared
// Redis. Any process handling a connection may set or clear an entry;
// readers never assume exclusive access.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

const defaultPresenceTTL = 30 * time.Second

func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &RedisRegistry{client: client, ttl: ttl}
}

// Dial connects and verifies the Redis backend.
func Dial(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("presence: ping redis: %w", err)
	}
	return client, nil
}

func key(actor chat.Actor) string {
	return "presence:" + actor.ChannelKey()
}

func (r *RedisRegistry) IsPresent(ctx context.Context, actor chat.Actor) (bool, error) {
	n, err := r.client.Exists(ctx, key(actor)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark refreshes the actor's presence for the registry TTL.
func (r *RedisRegistry) Mark(ctx context.Context, actor chat.Actor) error {
	return r.client.Set(ctx, key(actor), "1", r.ttl).Err()
}

// Clear drops the entry on disconnect; expiry also handles it.
func (r *RedisRegistry) Clear(ctx context.Context, actor chat.Actor) error {
	return r.client.Del(ctx, key(actor)).Err()
}

// RedisDedup implements a SETNX-based suppression window, used to keep
// email notification retries from double-sending.
type RedisDedup struct {
	client *redis.Client
}

func NewRedisDedup(client *redis.Client) *RedisDedup {
	return &RedisDedup{client: client}
}

func (d *RedisDedup) Acquire(ctx context.Context, k string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, k, "1", ttl).Result()
}
