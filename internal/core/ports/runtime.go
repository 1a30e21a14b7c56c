package ports

import (
	"context"
	"time"

	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/pkg/config"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based with hot reload (default), static.
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// KeyAuthenticator resolves the key presented in X-API-Key.
// Implementations return domain.ErrNotFound for unknown keys.
type KeyAuthenticator interface {
	FindByKeyValue(ctx context.Context, keyValue string) (*domain.APIKey, error)
}

// RateLimiter checks a client key against the fixed window.
type RateLimiter interface {
	Check(ctx context.Context, clientKey string) (domain.RateLimitResult, error)
}

// CounterStore holds the per-client fixed-window counters.
// Implementations: in-process LRU (default), Redis.
type CounterStore interface {
	// Increment atomically increments the counter for key and returns the
	// value before the increment. An absent counter starts at zero and
	// lives for window from its creation.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Close() error
}

// IdempotencyStore caches successful responses by idempotency cache key.
// Implementations: in-process LRU (default), Redis.
type IdempotencyStore interface {
	// Get returns nil, nil when the record is absent or expired.
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	// Put overwrites any existing record for key.
	Put(ctx context.Context, key string, rec *domain.IdempotencyRecord) error
	Close() error
}

// Locker serializes work on one idempotency key across concurrent requests.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
