package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates key segments: PETS_RATE__LIMIT__MAX__REQUESTS=20.
const EnvPrefix = "PETS_"

// Keys read outside of struct unmarshalling.
const (
	KeyRateLimitWindowSeconds = "rate.limit.window.seconds"
	KeyRateLimitMaxRequests   = "rate.limit.max.requests"
	KeyRateLimitBackend       = "rate.limit.backend"
	KeyRateLimitCacheSize     = "rate.limit.cache_size"
)

// Backend names shared by the rate limiter and the idempotency store.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Idempotency lock modes.
const (
	LockNone  = "none"
	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Storage     StorageConfig     `koanf:"storage"`
	RateLimit   RateLimitConfig   `koanf:"-"`
	Idempotency IdempotencyConfig `koanf:"idempotency"`
	Redis       RedisConfig       `koanf:"redis"`
	Auth        AuthConfig        `koanf:"auth"`
	Resilience  ResilienceConfig  `koanf:"resilience"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// StorageConfig selects the relational database.
type StorageConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres, mysql
	DSN    string `koanf:"dsn"`    // Data source name / connection string
}

// RateLimitConfig is populated from the rate.limit.* keys.
type RateLimitConfig struct {
	WindowSeconds int
	MaxRequests   int
	Backend       string
	CacheSize     int
}

// Window returns the window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type IdempotencyConfig struct {
	DefaultTTLSeconds int    `koanf:"default_ttl_seconds"`
	Backend           string `koanf:"backend"`
	CacheSize         int    `koanf:"cache_size"`
	Lock              string `koanf:"lock"`
}

// DefaultTTL returns the default record lifetime.
func (c IdempotencyConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

type RedisConfig struct {
	URL string `koanf:"url"` // comma-separated addresses or redis:// URLs
}

type AuthConfig struct {
	CacheTTL      time.Duration `koanf:"cache_ttl"`
	CacheSize     int           `koanf:"cache_size"`
	EnforceExpiry bool          `koanf:"enforce_expiry"`
}

type ResilienceConfig struct {
	ListTimeout time.Duration `koanf:"list_timeout"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

var defaults = map[string]any{
	"server.port":                     8080,
	"server.request_timeout":          "30s",
	"storage.driver":                  "sqlite",
	"storage.dsn":                     "./data/petadoption.db",
	KeyRateLimitWindowSeconds:         60,
	KeyRateLimitMaxRequests:           10,
	KeyRateLimitBackend:               BackendMemory,
	KeyRateLimitCacheSize:             100000,
	"idempotency.default_ttl_seconds": 3600,
	"idempotency.backend":             BackendMemory,
	"idempotency.cache_size":          10000,
	"idempotency.lock":                LockNone,
	"auth.cache_ttl":                  "30s",
	"auth.cache_size":                 1024,
	"auth.enforce_expiry":             true,
	"resilience.list_timeout":         "3s",
	"telemetry.enabled":               false,
	"telemetry.service_name":          "petadoption",
	"metrics.enabled":                 true,
	"metrics.path":                    "/metrics",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (skipped when empty or missing), applies PETS_ environment
// overrides and fills defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.RateLimit = RateLimitConfig{
		WindowSeconds: k.Int(KeyRateLimitWindowSeconds),
		MaxRequests:   k.Int(KeyRateLimitMaxRequests),
		Backend:       k.String(KeyRateLimitBackend),
		CacheSize:     k.Int(KeyRateLimitCacheSize),
	}

	cfg.Storage.DSN = substituteEnvVars(cfg.Storage.DSN)
	cfg.Redis.URL = substituteEnvVars(cfg.Redis.URL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported driver %q", c.Storage.Driver))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn: must not be empty"))
	}
	if c.RateLimit.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("%s: must be positive", KeyRateLimitWindowSeconds))
	}
	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("%s: must be positive", KeyRateLimitMaxRequests))
	}
	if !validBackend(c.RateLimit.Backend) {
		errs = append(errs, fmt.Errorf("%s: unsupported backend %q", KeyRateLimitBackend, c.RateLimit.Backend))
	}
	if !validBackend(c.Idempotency.Backend) {
		errs = append(errs, fmt.Errorf("idempotency.backend: unsupported backend %q", c.Idempotency.Backend))
	}
	if c.Idempotency.DefaultTTLSeconds <= 0 {
		errs = append(errs, errors.New("idempotency.default_ttl_seconds: must be positive"))
	}
	switch c.Idempotency.Lock {
	case LockNone, LockLocal, LockRedis:
	default:
		errs = append(errs, fmt.Errorf("idempotency.lock: unsupported mode %q", c.Idempotency.Lock))
	}
	if c.NeedsRedis() && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url: required by a redis backend"))
	}

	return errors.Join(errs...)
}

// NeedsRedis reports whether any component is configured to use Redis.
func (c *Config) NeedsRedis() bool {
	return c.RateLimit.Backend == BackendRedis ||
		c.Idempotency.Backend == BackendRedis ||
		c.Idempotency.Lock == LockRedis
}

func validBackend(b string) bool {
	return b == BackendMemory || b == BackendRedis
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
