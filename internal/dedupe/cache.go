// ABOUTME: TTL-bounded seen-id cache backing message delivery idempotence
// ABOUTME: Consumers drop any envelope whose id was already marked within the TTL

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

const sweepInterval = time.Minute

// entry holds the mark time and the insertion-order list element for an id.
type entry struct {
	markedAt time.Time
	element  *list.Element
}

// Cache tracks message ids that have already been delivered to a consumer.
// Delivery is at-least-once across reconnects, so every consumer-facing path
// checks the persisted envelope id here and treats a repeat as a no-op.
//
// The cache is TTL-based and size-limited; insertion order is kept in a
// doubly-linked list so eviction of the oldest id is O(1). Safe for
// concurrent use.
type Cache struct {
	mu      sync.RWMutex
	seen    map[string]*entry
	order   *list.List
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum entry count.
// A background goroutine sweeps expired entries once a minute.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// CheckAndMark atomically checks whether id has been seen within the TTL and
// marks it if not. Returns true for a duplicate, false when the id is new
// and now recorded. The single critical section avoids the check/mark race
// two concurrent deliveries of the same envelope would otherwise hit.
func (c *Cache) CheckAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[id]
	if ok && time.Since(e.markedAt) < c.ttl {
		return true
	}
	c.markLocked(id)
	return false
}

// Seen reports whether id was marked within the TTL, without marking it.
func (c *Cache) Seen(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.seen[id]
	return ok && time.Since(e.markedAt) < c.ttl
}

// Mark records id as seen, refreshing it if already present.
func (c *Cache) Mark(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(id)
}

// Len returns the number of ids currently tracked, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seen)
}

// markLocked must be called with mu held.
func (c *Cache) markLocked(id string) {
	now := time.Now()

	if e, exists := c.seen[id]; exists {
		e.markedAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}

	elem := c.order.PushBack(id)
	c.seen[id] = &entry{markedAt: now, element: elem}
}

// evictOldestLocked must be called with mu held.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, id)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
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

// sweep removes every expired entry.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, e := range c.seen {
		if now.Sub(e.markedAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, id)
		}
	}
}

// Close stops the background sweep goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
