package ratelimiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (m *MemoryStore) bucketCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

func TestMemoryStore_RemoveStale(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewMemoryStore(WithClock(clock.Now), WithCleanupInterval(0))
	defer store.Close()

	cfg := Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Minute}
	ctx := context.Background()

	_, _, err := store.Consume(ctx, "abandoned-1", 1, cfg)
	require.NoError(t, err)
	_, _, err = store.Consume(ctx, "abandoned-2", 1, cfg)
	require.NoError(t, err)

	clock.Advance(staleAfter + time.Minute)
	_, _, err = store.Consume(ctx, "active", 1, cfg)
	require.NoError(t, err)
	require.Equal(t, 3, store.bucketCount())

	store.removeStale()

	assert.Equal(t, 1, store.bucketCount(), "untouched buckets must be evicted")
	remaining, _, err := store.Consume(ctx, "active", 1, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining, "the live bucket must keep its state")
}

func TestMemoryStore_RemoveStale_KeepsRecentlyTouched(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewMemoryStore(WithClock(clock.Now), WithCleanupInterval(0))
	defer store.Close()

	cfg := Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Minute}
	ctx := context.Background()

	_, _, err := store.Consume(ctx, "user-1", 1, cfg)
	require.NoError(t, err)

	// A denied request is still an access and keeps the bucket live.
	clock.Advance(staleAfter - time.Minute)
	for range 3 {
		_, _, err = store.Consume(ctx, "user-1", 1, cfg)
		require.NoError(t, err)
	}

	clock.Advance(staleAfter - time.Minute)
	store.removeStale()
	assert.Equal(t, 1, store.bucketCount())
}

func TestMemoryStore_CleanupTask(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewMemoryStore(WithClock(clock.Now), WithCleanupInterval(10*time.Millisecond))
	defer store.Close()

	cfg := Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Minute}
	_, _, err := store.Consume(context.Background(), "user-1", 1, cfg)
	require.NoError(t, err)

	clock.Advance(staleAfter + time.Minute)
	assert.Eventually(t, func() bool {
		return store.bucketCount() == 0
	}, time.Second, 10*time.Millisecond, "the background task must evict stale buckets")
}

func TestMemoryStore_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	store.Close()
	store.Close()
}
