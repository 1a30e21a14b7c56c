package runtime

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/acme/petadoption/internal/adapters/config/file"
	"github.com/acme/petadoption/internal/core/ports"
	"github.com/acme/petadoption/internal/pkg/config"
	"github.com/acme/petadoption/internal/storage/sqldb"
	"github.com/acme/petadoption/internal/telemetry"
)

// Option is a functional option for configuring a Service.
type Option func(*Service) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(s *Service) error {
		provider, err := file.NewProvider(path, s.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		s.config = provider
		return nil
	}
}

// WithConfig serves a fixed configuration. Hot reload is disabled.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		s.config = &staticProvider{cfg: cfg}
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(s *Service) error {
		s.config = provider
		return nil
	}
}

// WithSQLite opens a SQLite database instead of the configured storage.
func WithSQLite(dsn string) Option {
	return func(s *Service) error {
		store, err := sqldb.NewSQLite(dsn)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		s.storage = store
		s.ownsStorage = true
		return nil
	}
}

// WithStorageProvider sets a custom storage provider. The caller keeps
// ownership and closes it.
func WithStorageProvider(provider ports.StorageProvider) Option {
	return func(s *Service) error {
		s.storage = provider
		return nil
	}
}

// WithRedisClient shares an existing Redis client with the redis backends.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(s *Service) error {
		s.redis = client
		return nil
	}
}

// WithMetrics records into m instead of a registry of the service's own.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

// WithTraceOutput sends exported spans to w. Tracing still has to be
// enabled in configuration.
func WithTraceOutput(w io.Writer) Option {
	return func(s *Service) error {
		s.traceOut = w
		return nil
	}
}

// WithLogger sets a custom logger. Options that log, such as
// WithFileConfig, should come after it.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}
