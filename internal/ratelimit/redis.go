package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acme/petadoption/internal/core/ports"
)

// incrScript increments the counter and starts its TTL on the first hit
// only, so the window is anchored at creation.
var incrScript = redis.NewScript(`
local c = redis.call('INCR', KEYS[1])
if c == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return c
`)

// RedisStore is a ports.CounterStore shared by every node using the same Redis.
type RedisStore struct {
	client redis.UniversalClient
}

var _ ports.CounterStore = (*RedisStore)(nil)

// NewRedisStore wraps client. The caller owns the client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := incrScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return n - 1, nil
}

func (s *RedisStore) Close() error {
	return nil
}
