package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type bucketState struct {
	tokens     int
	lastRefill time.Time
	lastAccess time.Time // read by removeStale to find abandoned buckets
}

// staleAfter is how long a bucket may go untouched before cleanup removes
// it. Must exceed any sensible refill interval, or a full bucket could be
// evicted and recreated with a fresh burst.
const staleAfter = time.Hour

// MemoryStore keeps token buckets in process memory behind a single mutex.
// Keys arrive from unauthenticated callers, so buckets that have not been
// touched for staleAfter are evicted by a background task; without it the
// map grows with every identity an attacker invents. Call Close when the
// store is no longer needed.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
	now     func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithClock overrides the time source, letting tests drive refills and
// staleness deterministically.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// WithCleanupInterval sets how often stale buckets are evicted. Zero
// disables the background cleanup entirely.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(m *MemoryStore) {
		m.cleanupInterval = interval
	}
}

// NewMemoryStore creates an in-memory Store and starts its cleanup task.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{
		buckets:         make(map[string]*bucketState),
		now:             time.Now,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.cleanupInterval > 0 {
		go m.cleanup()
	}
	return m
}

// Consume implements Store. Refill is lazy: tokens owed since the last
// refill are credited before the requested amount is taken.
func (m *MemoryStore) Consume(_ context.Context, key string, tokens int, cfg Config) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucketState{tokens: cfg.Capacity, lastRefill: now}
		m.buckets[key] = b
	}
	b.lastAccess = now

	if elapsed := now.Sub(b.lastRefill); elapsed >= cfg.RefillInterval {
		intervals := int(elapsed / cfg.RefillInterval)
		b.tokens = min(cfg.Capacity, b.tokens+intervals*cfg.RefillRate)
		b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * cfg.RefillInterval)
	}
	resetAt := b.lastRefill.Add(cfg.RefillInterval)

	if b.tokens < tokens {
		return -1, resetAt, nil
	}
	b.tokens -= tokens
	return b.tokens, resetAt, nil
}

// Reset implements Store.
func (m *MemoryStore) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, key)
	return nil
}

// cleanup evicts stale buckets every cleanupInterval until Close.
func (m *MemoryStore) cleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.removeStale()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *MemoryStore) removeStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, b := range m.buckets {
		if now.Sub(b.lastAccess) > staleAfter {
			delete(m.buckets, key)
		}
	}
}

// Close stops the cleanup task. Safe to call multiple times.
func (m *MemoryStore) Close() {
	select {
	case <-m.stopCleanup:
	default:
		close(m.stopCleanup)
	}
}
