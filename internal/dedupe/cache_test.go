// ABOUTME: Tests for the turn-id dedupe cache.
// ABOUTME: Validates scoping, TTL expiry, size bounds, forgetting, sweeping and concurrency.

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for TTL tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestCache(t *testing.T, ttl time.Duration, maxSize int) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(ttl, maxSize)
	c.now = clock.Now
	t.Cleanup(c.Close)
	return c, clock
}

func TestCache_Seen_FirstTimeIsNew(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	assert.False(t, c.Seen("conv-1", "turn-1"))
	assert.True(t, c.Seen("conv-1", "turn-1"))
	assert.Equal(t, 1, c.Len())
}

func TestCache_Seen_ScopedPerConversation(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	assert.False(t, c.Seen("conv-1", "turn-1"))
	assert.False(t, c.Seen("conv-2", "turn-1"), "same turn id in another conversation is distinct")
}

func TestCache_Seen_ScopeDoesNotBleedIntoKey(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	assert.False(t, c.Seen("a", "bc"))
	assert.False(t, c.Seen("ab", "c"))
}

func TestCache_Seen_Expires(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	require.False(t, c.Seen("conv", "turn"))

	clock.Advance(59 * time.Second)
	assert.True(t, c.Seen("conv", "turn"))

	clock.Advance(2 * time.Second)
	assert.False(t, c.Seen("conv", "turn"), "expired key is accepted again")
	assert.True(t, c.Seen("conv", "turn"), "and re-marked")
}

func TestCache_Forget(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	require.False(t, c.Seen("conv", "turn"))
	c.Forget("conv", "turn")
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Seen("conv", "turn"))

	// Forgetting an unknown key is harmless
	c.Forget("conv", "unknown")
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	c, clock := newTestCache(t, time.Hour, 3)

	for i := 0; i < 3; i++ {
		c.Seen("conv", fmt.Sprintf("turn-%d", i))
		clock.Advance(time.Second)
	}
	c.Seen("conv", "turn-3")

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("conv", "turn-0"), "oldest entry was evicted")
	assert.True(t, c.Seen("conv", "turn-3"))
}

func TestCache_Sweep(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	c.Seen("conv", "old-1")
	c.Seen("conv", "old-2")
	clock.Advance(30 * time.Second)
	c.Seen("conv", "fresh")
	clock.Advance(45 * time.Second)

	c.sweep()

	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Seen("conv", "fresh"))
}

func TestCache_ZeroMaxSize(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 0)

	c.Seen("conv", "a")
	c.Seen("conv", "b")
	assert.Equal(t, 1, c.Len())
}

func TestCache_Seen_ConcurrentSingleWinner(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 100)

	var fresh atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Seen("conv", "turn") {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fresh.Load(), "exactly one caller should see the turn as new")
}

func TestCache_Close_Idempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
