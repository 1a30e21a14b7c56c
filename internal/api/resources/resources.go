// Package resources serves the breed, dog and adoption collections under
// their legacy and versioned prefixes.
package resources

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acme/petadoption/internal/core/ports"
	"github.com/acme/petadoption/internal/idempotency"
	"github.com/acme/petadoption/internal/telemetry"
)

// Config wires the resource handlers.
type Config struct {
	Store    ports.StorageProvider
	Registry *idempotency.Registry
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
	// ListTimeout bounds list queries on versioned routes. Zero uses 3s.
	ListTimeout time.Duration
	// Guard overrides DefaultGuardSettings when non-nil.
	Guard *GuardSettings
}

// Mount registers every collection route on r and the idempotent ones in
// cfg.Registry.
func Mount(r chi.Router, cfg Config) {
	d := deps{
		validator:   NewValidator(),
		registry:    cfg.Registry,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		listTimeout: cfg.ListTimeout,
		guard:       DefaultGuardSettings(),
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.listTimeout <= 0 {
		d.listTimeout = defaultListTimeout
	}
	if cfg.Guard != nil {
		d.guard = *cfg.Guard
	}
	if d.registry == nil {
		d.registry = idempotency.NewRegistry(idempotency.DefaultTTL)
	}

	mountRacas(r, cfg.Store, d)
	mountCachorros(r, cfg.Store, d)
	mountAdocoes(r, cfg.Store, d)
}
