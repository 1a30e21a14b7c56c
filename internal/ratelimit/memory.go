package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/acme/petadoption/internal/core/ports"
)

// DefaultMemoryCapacity bounds the number of tracked clients.
const DefaultMemoryCapacity = 100_000

type counter struct {
	n      atomic.Int64
	expiry time.Time
}

// MemoryStore is an in-process ports.CounterStore. The least recently
// used clients are evicted once capacity is reached; an evicted client
// starts a fresh window.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *counter]
	now   func() time.Time
}

var _ ports.CounterStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store tracking up to capacity clients.
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	cache, err := lru.New[string, *counter](capacity)
	if err != nil {
		return nil, fmt.Errorf("create counter cache: %w", err)
	}
	return &MemoryStore{cache: cache, now: time.Now}, nil
}

// Increment returns the pre-increment count of key. The entry lookup is
// serialized; the increment itself is atomic on the entry.
func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	c, ok := s.cache.Get(key)
	if !ok || !c.expiry.After(now) {
		c = &counter{expiry: now.Add(window)}
		s.cache.Add(key, c)
	}
	s.mu.Unlock()

	return c.n.Add(1) - 1, nil
}

// Len returns the number of tracked clients.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}
