package idempotency

import (
	"bytes"
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/core/ports"
)

// DefaultMemoryCapacity bounds the number of cached responses.
const DefaultMemoryCapacity = 10_000

// MemoryStore is an in-process ports.IdempotencyStore. Records are copied
// on the way in and out.
type MemoryStore struct {
	cache *lru.Cache[string, domain.IdempotencyRecord]
	now   func() time.Time
}

var _ ports.IdempotencyStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding up to capacity records.
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	cache, err := lru.New[string, domain.IdempotencyRecord](capacity)
	if err != nil {
		return nil, fmt.Errorf("create idempotency cache: %w", err)
	}
	return &MemoryStore{cache: cache, now: time.Now}, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	rec, ok := s.cache.Get(key)
	if !ok {
		return nil, nil
	}
	if rec.Expired(s.now()) {
		s.cache.Remove(key)
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, rec *domain.IdempotencyRecord) error {
	s.cache.Add(key, *cloneRecord(*rec))
	return nil
}

// Len returns the number of cached records, expired ones included.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}

func cloneRecord(rec domain.IdempotencyRecord) *domain.IdempotencyRecord {
	rec.Body = bytes.Clone(rec.Body)
	rec.Header = rec.Header.Clone()
	return &rec
}
