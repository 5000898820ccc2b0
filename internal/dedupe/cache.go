// ABOUTME: Thread-safe TTL cache for de-duplicating client-supplied turn ids.
// ABOUTME: Keys are scoped per conversation so equal ids in different conversations never collide.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// cleanupInterval is how often expired entries are swept.
const cleanupInterval = time.Minute

// entry is one remembered key with the time it was marked.
type entry struct {
	key    string
	marked time.Time
}

// Cache remembers recently seen keys for a fixed TTL, bounded by maxSize.
// When full, the least recently marked key is evicted first.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*list.Element // composite key -> element holding *entry
	order   *list.List               // oldest mark at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache with the given TTL and maximum size.
// A background goroutine sweeps expired entries until Close is called.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Cache{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func compositeKey(scope, key string) string {
	return scope + "\x00" + key
}

// Seen reports whether key was already marked in scope within the TTL.
// If it was not, the key is marked before returning false, so concurrent
// callers racing on the same key see exactly one false.
func (c *Cache) Seen(scope, key string) bool {
	ck := compositeKey(scope, key)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.seen[ck]; ok {
		e := el.Value.(*entry)
		if now.Sub(e.marked) < c.ttl {
			return true
		}
		// Expired: re-mark as fresh
		e.marked = now
		c.order.MoveToBack(el)
		return false
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.seen[ck] = c.order.PushBack(&entry{key: ck, marked: now})
	return false
}

// Forget removes a key so the next Seen for it returns false. Used when the
// work guarded by the key did not complete and a retry should be accepted.
func (c *Cache) Forget(scope, key string) {
	ck := compositeKey(scope, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.seen[ck]; ok {
		c.order.Remove(el)
		delete(c.seen, ck)
	}
}

// Len returns the number of remembered keys, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// evictOldestLocked drops the front of the order list. Caller holds mu.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.seen, front.Value.(*entry).key)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes expired entries. Marks are ordered, so it stops at the first live one.
func (c *Cache) sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.order.Front(); el != nil; {
		e := el.Value.(*entry)
		if now.Sub(e.marked) < c.ttl {
			return
		}
		next := el.Next()
		c.order.Remove(el)
		delete(c.seen, e.key)
		el = next
	}
}

// Close stops the background sweep. Safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
