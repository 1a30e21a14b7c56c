package resources

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/acme/petadoption/internal/core/domain"
)

// Resilience defaults for storage writes.
const (
	defaultMinRequests  = 4
	defaultFailureRatio = 0.75
	defaultOpenTimeout  = 10 * time.Second
	defaultMaxRetries   = 2
	defaultRetryDelay   = 500 * time.Millisecond
	defaultListTimeout  = 3 * time.Second
)

// GuardSettings tune the breaker and the retry policy of a Guard.
type GuardSettings struct {
	// MinRequests is the number of calls before the breaker may trip.
	MinRequests uint32
	// FailureRatio trips the breaker once reached.
	FailureRatio float64
	// OpenTimeout is how long the breaker stays open.
	OpenTimeout time.Duration
	MaxRetries  uint64
	RetryDelay  time.Duration
}

// DefaultGuardSettings trip at 4 calls with 75% failures, stay open for
// 10s and retry twice, 500ms apart.
func DefaultGuardSettings() GuardSettings {
	return GuardSettings{
		MinRequests:  defaultMinRequests,
		FailureRatio: defaultFailureRatio,
		OpenTimeout:  defaultOpenTimeout,
		MaxRetries:   defaultMaxRetries,
		RetryDelay:   defaultRetryDelay,
	}
}

// Guard runs storage writes with retries around a circuit breaker. Only
// infrastructure errors count as failures or get retried.
type Guard struct {
	cb       *gobreaker.CircuitBreaker
	settings GuardSettings
}

// NewGuard creates a guard whose breaker is reported under name.
func NewGuard(name string, s GuardSettings, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < s.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return !isInfrastructure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return &Guard{cb: cb, settings: s}
}

// Do runs op. The returned error is op's last error, or
// gobreaker.ErrOpenState when the breaker rejected the call.
func (g *Guard) Do(ctx context.Context, op func(context.Context) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(g.settings.RetryDelay), g.settings.MaxRetries),
		ctx,
	)

	return backoff.Retry(func() error {
		_, err := g.cb.Execute(func() (any, error) {
			return nil, op(ctx)
		})
		if err == nil {
			return nil
		}
		if !isInfrastructure(err) || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// State reports the breaker state.
func (g *Guard) State() gobreaker.State {
	return g.cb.State()
}

// isInfrastructure separates storage or network failures from outcomes
// the client caused.
func isInfrastructure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return false
	}
	var verr *domain.ValidationError
	return !errors.As(err, &verr)
}
