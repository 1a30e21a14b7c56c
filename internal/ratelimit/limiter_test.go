package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newMemoryLimiter(t *testing.T, s Settings) (*Limiter, *fakeClock) {
	t.Helper()
	store, err := NewMemoryStore(16)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store.now = clock.Now

	l, err := New(store, s)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, clock
}

func TestLimiter_FixedWindow(t *testing.T) {
	l, _ := newMemoryLimiter(t, Settings{WindowSeconds: 60, MaxRequests: 3})
	ctx := context.Background()

	tests := []struct {
		current   int64
		remaining int64
		exceeded  bool
	}{
		{1, 2, false},
		{2, 1, false},
		{3, 0, false},
		{4, 0, true},
		{5, 0, true},
	}

	for i, tt := range tests {
		got, err := l.Check(ctx, "API_KEY:k")
		if err != nil {
			t.Fatalf("Check() #%d error = %v", i+1, err)
		}
		if got.Current != tt.current || got.Remaining != tt.remaining || got.Exceeded != tt.exceeded {
			t.Errorf("Check() #%d = %+v, want current %d remaining %d exceeded %v",
				i+1, got, tt.current, tt.remaining, tt.exceeded)
		}
		if got.Limit != 3 || got.WindowSeconds != 60 {
			t.Errorf("Check() #%d limit/window = %d/%d, want 3/60", i+1, got.Limit, got.WindowSeconds)
		}
	}
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l, _ := newMemoryLimiter(t, Settings{WindowSeconds: 60, MaxRequests: 1})
	ctx := context.Background()

	if r, _ := l.Check(ctx, "API_KEY:a"); r.Exceeded {
		t.Error("first request of a exceeded")
	}
	if r, _ := l.Check(ctx, "API_KEY:b"); r.Exceeded {
		t.Error("first request of b exceeded")
	}
	if r, _ := l.Check(ctx, "API_KEY:a"); !r.Exceeded {
		t.Error("second request of a not exceeded")
	}
}

func TestLimiter_WindowResets(t *testing.T) {
	l, clock := newMemoryLimiter(t, Settings{WindowSeconds: 2, MaxRequests: 1})
	ctx := context.Background()

	l.Check(ctx, "c")
	if r, _ := l.Check(ctx, "c"); !r.Exceeded {
		t.Fatal("second request in window not exceeded")
	}

	// Hits inside the window do not extend it.
	clock.Advance(1500 * time.Millisecond)
	l.Check(ctx, "c")
	clock.Advance(600 * time.Millisecond)

	r, _ := l.Check(ctx, "c")
	if r.Exceeded || r.Current != 1 {
		t.Errorf("Check() after window = %+v, want fresh window", r)
	}
}

func TestLimiter_Update(t *testing.T) {
	l, _ := newMemoryLimiter(t, Settings{WindowSeconds: 60, MaxRequests: 1})
	ctx := context.Background()

	l.Check(ctx, "c")
	if err := l.Update(Settings{WindowSeconds: 60, MaxRequests: 5}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	r, _ := l.Check(ctx, "c")
	if r.Exceeded || r.Limit != 5 || r.Remaining != 3 {
		t.Errorf("Check() after Update = %+v, want limit 5 remaining 3", r)
	}

	if err := l.Update(Settings{WindowSeconds: 0, MaxRequests: 5}); err == nil {
		t.Error("Update(zero window) error = nil, want error")
	}
	if err := l.Update(Settings{WindowSeconds: 1, MaxRequests: -1}); err == nil {
		t.Error("Update(negative max) error = nil, want error")
	}
	if got := l.Settings(); got.MaxRequests != 5 {
		t.Errorf("Settings() = %+v after rejected updates, want max 5", got)
	}
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	store, err := NewMemoryStore(0)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	ctx := context.Background()

	const n = 200
	seen := make([]bool, n)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _ := store.Increment(ctx, "k", time.Minute)
			mu.Lock()
			defer mu.Unlock()
			if v < 0 || v >= n || seen[v] {
				t.Errorf("Increment() = %d duplicated or out of range", v)
				return
			}
			seen[v] = true
		}()
	}
	wg.Wait()
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	store, _ := NewMemoryStore(2)
	ctx := context.Background()

	store.Increment(ctx, "a", time.Minute)
	store.Increment(ctx, "b", time.Minute)
	store.Increment(ctx, "c", time.Minute)

	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}
	if v, _ := store.Increment(ctx, "a", time.Minute); v != 0 {
		t.Errorf("Increment(evicted a) = %d, want 0", v)
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)
	l, err := New(store, Settings{WindowSeconds: 10, MaxRequests: 2})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	for i, wantExceeded := range []bool{false, false, true} {
		r, err := l.Check(ctx, "API_KEY:r")
		if err != nil {
			t.Fatalf("Check() #%d error = %v", i+1, err)
		}
		if r.Exceeded != wantExceeded {
			t.Errorf("Check() #%d exceeded = %v, want %v", i+1, r.Exceeded, wantExceeded)
		}
	}

	if ttl := mr.TTL(keyPrefix + "API_KEY:r"); ttl <= 0 || ttl > 10*time.Second {
		t.Errorf("TTL = %v, want within window", ttl)
	}

	mr.FastForward(11 * time.Second)
	r, err := l.Check(ctx, "API_KEY:r")
	if err != nil {
		t.Fatalf("Check() after window error = %v", err)
	}
	if r.Current != 1 {
		t.Errorf("Current after window = %d, want 1", r.Current)
	}

	mr.Close()
	if _, err := l.Check(ctx, "API_KEY:r"); err == nil {
		t.Error("Check() with redis down error = nil, want error")
	}
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("down")
}
func (failingStore) Close() error { return nil }

func TestLimiter_StoreError(t *testing.T) {
	l, err := New(failingStore{}, Settings{WindowSeconds: 1, MaxRequests: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := l.Check(context.Background(), "c"); err == nil {
		t.Error("Check() error = nil, want error")
	}
}
