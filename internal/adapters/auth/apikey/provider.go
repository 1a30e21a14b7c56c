// Package apikey provides API key management with a read-through cache.
package apikey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/acme/petadoption/internal/auth"
	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/core/ports"
)

// maxGenerateAttempts bounds key value regeneration on unique collisions.
const maxGenerateAttempts = 5

// Provider implements ports.KeyAuthenticator on top of a ports.APIKeyStore.
// Successful lookups are cached for the configured TTL; deletes purge the cache.
type Provider struct {
	store ports.APIKeyStore
	cache *expirable.LRU[string, domain.APIKey]
	now   func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithCache enables the lookup cache with the given size and TTL.
// A non-positive ttl or size disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(p *Provider) {
		if size <= 0 || ttl <= 0 {
			p.cache = nil
			return
		}
		p.cache = expirable.NewLRU[string, domain.APIKey](size, nil, ttl)
	}
}

// WithClock overrides the time source used for CreatedAt and key seeds.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// NewProvider creates a new API key provider.
func NewProvider(store ports.APIKeyStore, opts ...Option) (*Provider, error) {
	if store == nil {
		return nil, fmt.Errorf("api key store required")
	}

	p := &Provider{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// FindByKeyValue returns the key or an error wrapping domain.ErrNotFound.
func (p *Provider) FindByKeyValue(ctx context.Context, keyValue string) (*domain.APIKey, error) {
	if p.cache != nil {
		if key, ok := p.cache.Get(keyValue); ok {
			key = key.Clone()
			return &key, nil
		}
	}

	key, err := p.store.FindByKeyValue(ctx, keyValue)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		p.cache.Add(keyValue, key.Clone())
	}
	return key, nil
}

// Create validates the input, generates a unique key value and persists the key.
func (p *Provider) Create(ctx context.Context, ownerName string, level domain.AccessLevel, expiresAt *time.Time) (*domain.APIKey, error) {
	if err := domain.ValidateAPIKeyInput(ownerName, level); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		now := p.now()
		key := &domain.APIKey{
			KeyValue:    auth.GenerateKeyValue(now),
			OwnerName:   ownerName,
			AccessLevel: level,
			CreatedAt:   now,
			ExpiresAt:   expiresAt,
		}

		err := p.store.Create(ctx, key)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("generate unique key value after %d attempts: %w", maxGenerateAttempts, lastErr)
}

// List returns every key with the key values removed.
func (p *Provider) List(ctx context.Context) ([]domain.APIKey, error) {
	keys, err := p.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i] = keys[i].Redacted()
	}
	return keys, nil
}

// DeleteByID removes the key and reports whether it existed.
func (p *Provider) DeleteByID(ctx context.Context, id int64) (bool, error) {
	removed, err := p.store.DeleteByID(ctx, id)
	if err != nil {
		return false, err
	}
	if removed && p.cache != nil {
		p.cache.Purge()
	}
	return removed, nil
}
