// Package idempotency holds the route policies, response caches and
// per-key locks behind the idempotency filter.
package idempotency

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTTL applies to idempotent routes registered without an explicit TTL.
const DefaultTTL = time.Hour

// CreateTTL is the TTL of the resource create handlers.
const CreateTTL = 2 * time.Hour

// HeaderKey carries the client's idempotency key.
const HeaderKey = "X-Idempotency-Key"

// HeaderStatus marks replayed responses.
const HeaderStatus = "X-Idempotency-Status"

// StatusReplay is the HeaderStatus value of a replay.
const StatusReplay = "IDEMPOTENT_REPLAY"

// Policy marks a route as idempotent. A zero TTL means the registry default.
type Policy struct {
	TTL time.Duration
}

// Registry maps (method, route pattern) to a Policy. It is filled at
// router construction and read on every request.
type Registry struct {
	mu         sync.RWMutex
	policies   map[string]Policy
	defaultTTL atomic.Int64
}

// NewRegistry creates an empty registry. A non-positive defaultTTL uses DefaultTTL.
func NewRegistry(defaultTTL time.Duration) *Registry {
	r := &Registry{policies: make(map[string]Policy)}
	r.SetDefaultTTL(defaultTTL)
	return r
}

// SetDefaultTTL changes the TTL of routes registered without one.
func (r *Registry) SetDefaultTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r.defaultTTL.Store(int64(ttl))
}

// DefaultTTL returns the current default TTL.
func (r *Registry) DefaultTTL() time.Duration {
	return time.Duration(r.defaultTTL.Load())
}

func routeKey(method, pattern string) string {
	return strings.ToUpper(method) + " " + pattern
}

// Register marks method+pattern idempotent. ttl 0 follows the default.
func (r *Registry) Register(method, pattern string, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[routeKey(method, pattern)] = Policy{TTL: ttl}
}

// Lookup returns the effective policy of method+pattern.
func (r *Registry) Lookup(method, pattern string) (Policy, bool) {
	r.mu.RLock()
	p, ok := r.policies[routeKey(method, pattern)]
	r.mu.RUnlock()
	if !ok {
		return Policy{}, false
	}
	if p.TTL <= 0 {
		p.TTL = r.DefaultTTL()
	}
	return p, true
}

// Len returns the number of registered routes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.policies)
}

// CacheKey builds the record key of a request.
func CacheKey(method, path, key string) string {
	return fmt.Sprintf("%s:%s:%s", strings.ToUpper(method), path, key)
}
