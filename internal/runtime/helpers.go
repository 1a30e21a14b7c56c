package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acme/petadoption/internal/core/ports"
	"github.com/acme/petadoption/internal/idempotency"
	"github.com/acme/petadoption/internal/pkg/config"
	"github.com/acme/petadoption/internal/pkg/redisclient"
	"github.com/acme/petadoption/internal/ratelimit"
	"github.com/acme/petadoption/internal/storage/sqldb"
)

// defaultLockExpiry bounds a Redis idempotency lock when no request
// timeout is configured.
const defaultLockExpiry = 30 * time.Second

var newRedisClient = redisclient.New

func openStorage(cfg config.StorageConfig) (*sqldb.Store, error) {
	return sqldb.New(sqldb.Config{Driver: cfg.Driver, DSN: cfg.DSN})
}

func limiterSettings(cfg *config.Config) ratelimit.Settings {
	return ratelimit.Settings{
		WindowSeconds: cfg.RateLimit.WindowSeconds,
		MaxRequests:   cfg.RateLimit.MaxRequests,
	}
}

func newCounterStore(cfg config.RateLimitConfig, client redis.UniversalClient) (ports.CounterStore, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("redis client required for backend %q", cfg.Backend)
		}
		return ratelimit.NewRedisStore(client), nil
	case config.BackendMemory, "":
		return ratelimit.NewMemoryStore(cfg.CacheSize)
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

func newIdempotencyStore(cfg config.IdempotencyConfig, client redis.UniversalClient) (ports.IdempotencyStore, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("redis client required for backend %q", cfg.Backend)
		}
		return idempotency.NewRedisStore(client), nil
	case config.BackendMemory, "":
		return idempotency.NewMemoryStore(cfg.CacheSize)
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

// newLocker returns the lock that serializes requests sharing an
// idempotency key, or nil when duplicates may race.
func newLocker(cfg *config.Config, client redis.UniversalClient, logger *slog.Logger) ports.Locker {
	switch cfg.Idempotency.Lock {
	case config.LockLocal:
		return idempotency.NewKeyedMutex()
	case config.LockRedis:
		if client == nil {
			return idempotency.NewKeyedMutex()
		}
		expiry := cfg.Server.RequestTimeout
		if expiry <= 0 {
			expiry = defaultLockExpiry
		}
		return idempotency.NewRedisLocker(client, expiry+5*time.Second, logger)
	default:
		return nil
	}
}

// staticProvider serves a fixed configuration and never reloads.
type staticProvider struct {
	cfg *config.Config
}

var _ ports.ConfigProvider = (*staticProvider)(nil)

func (p *staticProvider) Load(ctx context.Context) (*config.Config, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	return p.cfg, nil
}

func (p *staticProvider) Watch(ctx context.Context, onChange func(*config.Config)) error {
	return nil
}

func (p *staticProvider) Close() error {
	return nil
}
