// Package ratelimit implements the per-client fixed-window request limiter.
package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/core/ports"
)

// keyPrefix namespaces counters in shared stores.
const keyPrefix = "ratelimit:"

// Settings are the window length and the number of requests allowed in it.
type Settings struct {
	WindowSeconds int
	MaxRequests   int
}

// Window returns the window as a duration.
func (s Settings) Window() time.Duration {
	return time.Duration(s.WindowSeconds) * time.Second
}

// Limiter implements ports.RateLimiter over a ports.CounterStore.
// Settings can be swapped at runtime; in-flight windows keep the expiry
// they were created with.
type Limiter struct {
	store    ports.CounterStore
	settings atomic.Pointer[Settings]
}

var _ ports.RateLimiter = (*Limiter)(nil)

// New creates a limiter. Both settings must be positive.
func New(store ports.CounterStore, s Settings) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store required")
	}
	l := &Limiter{store: store}
	if err := l.Update(s); err != nil {
		return nil, err
	}
	return l, nil
}

// Update replaces the window and the request limit.
func (l *Limiter) Update(s Settings) error {
	if s.WindowSeconds <= 0 {
		return fmt.Errorf("window must be positive, got %d", s.WindowSeconds)
	}
	if s.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive, got %d", s.MaxRequests)
	}
	l.settings.Store(&s)
	return nil
}

// Settings returns the current settings.
func (l *Limiter) Settings() Settings {
	return *l.settings.Load()
}

// Check counts one request for clientKey and reports whether it is over
// the limit. It never blocks waiting for quota.
func (l *Limiter) Check(ctx context.Context, clientKey string) (domain.RateLimitResult, error) {
	s := l.Settings()

	prev, err := l.store.Increment(ctx, keyPrefix+clientKey, s.Window())
	if err != nil {
		return domain.RateLimitResult{}, fmt.Errorf("increment counter: %w", err)
	}

	return domain.NewRateLimitResult(prev, s.MaxRequests, s.WindowSeconds), nil
}
