// Package runtime wires the pet adoption service together and manages its
// lifecycle: configuration, storage, the request pipeline and the HTTP
// server.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/acme/petadoption/internal/adapters/auth/apikey"
	"github.com/acme/petadoption/internal/api/admin"
	apimw "github.com/acme/petadoption/internal/api/middleware"
	"github.com/acme/petadoption/internal/api/resources"
	"github.com/acme/petadoption/internal/core/ports"
	"github.com/acme/petadoption/internal/idempotency"
	"github.com/acme/petadoption/internal/pkg/config"
	"github.com/acme/petadoption/internal/ratelimit"
	"github.com/acme/petadoption/internal/telemetry"
)

// Service is the pet adoption API. It can run standalone through Start or
// be embedded by serving Handler from another server.
type Service struct {
	// Dependencies (injected via options)
	config   ports.ConfigProvider
	storage  ports.StorageProvider
	redis    redis.UniversalClient
	metrics  *telemetry.Metrics
	traceOut io.Writer
	logger   *slog.Logger

	// Built in Start
	ownsStorage    bool
	ownsRedis      bool
	counters       ports.CounterStore
	records        ports.IdempotencyStore
	limiter        *ratelimit.Limiter
	registry       *idempotency.Registry
	keys           *apikey.Provider
	handler        http.Handler
	server         *http.Server
	listener       net.Listener
	shutdownTracer func(context.Context) error

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
}

// New creates a Service with the given options. A config provider is
// required; storage is opened from configuration when none is injected.
func New(opts ...Option) (*Service, error) {
	s := &Service{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if s.config == nil {
		return nil, fmt.Errorf("config provider required (use WithFileConfig or WithConfig)")
	}

	return s, nil
}

// Start builds the service from the current configuration and starts
// serving HTTP.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)

	cfg, err := s.config.Load(s.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := s.init(s.ctx, cfg); err != nil {
		s.closeResources()
		return err
	}

	if err := s.startServer(cfg); err != nil {
		s.closeResources()
		return fmt.Errorf("start server: %w", err)
	}

	if err := s.config.Watch(s.ctx, s.onConfigChange); err != nil {
		s.logger.Warn("config hot reload disabled", slog.String("error", err.Error()))
	}

	s.logger.Info("service started",
		slog.String("addr", s.listener.Addr().String()),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("rate_limit_backend", cfg.RateLimit.Backend),
		slog.String("idempotency_backend", cfg.Idempotency.Backend))

	return nil
}

// init builds every component the request pipeline needs.
func (s *Service) init(ctx context.Context, cfg *config.Config) error {
	if s.storage == nil {
		store, err := openStorage(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		s.storage = store
		s.ownsStorage = true
	}

	if cfg.NeedsRedis() && s.redis == nil {
		client, err := newRedisClient(ctx, cfg.Redis.URL, s.logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		s.redis = client
		s.ownsRedis = true
	}

	counters, err := newCounterStore(cfg.RateLimit, s.redis)
	if err != nil {
		return fmt.Errorf("create rate limit store: %w", err)
	}
	s.counters = counters

	s.limiter, err = ratelimit.New(counters, limiterSettings(cfg))
	if err != nil {
		return fmt.Errorf("create rate limiter: %w", err)
	}

	records, err := newIdempotencyStore(cfg.Idempotency, s.redis)
	if err != nil {
		return fmt.Errorf("create idempotency store: %w", err)
	}
	s.records = records
	s.registry = idempotency.NewRegistry(cfg.Idempotency.DefaultTTL())

	s.keys, err = apikey.NewProvider(s.storage.APIKeys(), apikey.WithCache(cfg.Auth.CacheSize, cfg.Auth.CacheTTL))
	if err != nil {
		return fmt.Errorf("create api key provider: %w", err)
	}

	if cfg.Metrics.Enabled && s.metrics == nil {
		s.metrics = telemetry.NewMetrics()
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, s.traceOut, s.logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		s.shutdownTracer = shutdown
	}

	s.handler = s.buildRouter(cfg)
	return nil
}

// buildRouter assembles the request pipeline. Filters run in registration
// order, ahead of routing.
func (s *Service) buildRouter(cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(apimw.RequestIDMiddleware)
	r.Use(apimw.LoggingMiddleware(s.logger))
	r.Use(apimw.Metrics(s.metrics))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, cfg.Telemetry.ServiceName)
	})
	r.Use(apimw.Auth(apimw.AuthConfig{
		Keys:          s.keys,
		EnforceExpiry: cfg.Auth.EnforceExpiry,
		Metrics:       s.metrics,
	}))
	r.Use(apimw.RateLimit(s.limiter, s.metrics))
	r.Use(apimw.Idempotency(apimw.IdempotencyConfig{
		Registry: s.registry,
		Store:    s.records,
		Routes:   r,
		Locker:   newLocker(cfg, s.redis, s.logger),
		Metrics:  s.metrics,
		Logger:   s.logger,
	}))
	r.Use(apimw.TimeoutMiddleware(cfg.Server.RequestTimeout))

	r.Get("/health", s.handleHealth)
	if cfg.Metrics.Enabled {
		r.Method(http.MethodGet, cfg.Metrics.Path, s.metrics.Handler())
	}

	resources.Mount(r, resources.Config{
		Store:       s.storage,
		Registry:    s.registry,
		Metrics:     s.metrics,
		Logger:      s.logger,
		ListTimeout: cfg.Resilience.ListTimeout,
	})

	r.Mount("/admin", admin.NewServer(s.keys, s.storage, s.logger))

	return r
}

func (s *Service) startServer(cfg *config.Config) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		return err
	}
	s.listener = ln

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.server = srv

	// Shutdown may clear s.server before this goroutine runs.
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Handler returns the request pipeline. It is nil until Start succeeds.
func (s *Service) Handler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// Addr returns the address the server listens on.
func (s *Service) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the service.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("shutting down service")

	if s.cancel != nil {
		s.cancel()
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			return err
		}
		s.server = nil
	}

	if s.shutdownTracer != nil {
		if err := s.shutdownTracer(ctx); err != nil {
			s.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
		s.shutdownTracer = nil
	}

	s.closeResources()

	if err := s.config.Close(); err != nil {
		s.logger.Error("failed to close config", slog.String("error", err.Error()))
	}

	s.logger.Info("service shutdown complete")
	return nil
}

// closeResources releases the stores and the connections the service
// opened itself. Injected storage and Redis clients are left to the caller.
func (s *Service) closeResources() {
	s.closeQuietly("rate limit store", s.counters)
	s.closeQuietly("idempotency store", s.records)
	if s.ownsRedis {
		s.closeQuietly("redis", s.redis)
	}
	if s.ownsStorage {
		s.closeQuietly("storage", s.storage)
	}
	s.counters, s.records = nil, nil
	s.ownsRedis, s.ownsStorage = false, false
}

func (s *Service) closeQuietly(name string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		s.logger.Error("failed to close "+name, slog.String("error", err.Error()))
	}
}

// onConfigChange applies the settings that can change without a restart.
func (s *Service) onConfigChange(newCfg *config.Config) {
	s.logger.Info("config changed, reloading")
	if err := s.reload(newCfg); err != nil {
		s.logger.Error("failed to reload", slog.String("error", err.Error()))
	}
}

// reload swaps the rate limit window and limit and the default idempotency
// TTL. Backends, storage and the listen port need a restart.
func (s *Service) reload(cfg *config.Config) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.limiter == nil || s.registry == nil {
		return fmt.Errorf("service not started")
	}

	if err := s.limiter.Update(limiterSettings(cfg)); err != nil {
		return fmt.Errorf("update rate limit: %w", err)
	}
	s.registry.SetDefaultTTL(cfg.Idempotency.DefaultTTL())

	s.logger.Info("config reloaded",
		slog.Int("rate_limit_window_seconds", cfg.RateLimit.WindowSeconds),
		slog.Int("rate_limit_max_requests", cfg.RateLimit.MaxRequests),
		slog.Int("idempotency_default_ttl_seconds", cfg.Idempotency.DefaultTTLSeconds))
	return nil
}

type healthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Storage: "ok"}
	status := http.StatusOK
	if err := s.storage.Ping(r.Context()); err != nil {
		apimw.AddError(r.Context(), err)
		resp = healthResponse{Status: "degraded", Storage: "unavailable"}
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
