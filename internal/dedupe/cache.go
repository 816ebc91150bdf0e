// ABOUTME: Thread-safe seen-set for duplicate message delivery detection.
// ABOUTME: Two rotating generations bound both the age and the size of the set.

package dedupe

import (
	"sync"
	"time"
)

// Cache remembers keys for roughly one to two windows. Instead of tracking a
// timestamp per key, it keeps two generations of keys and rotates them: the
// current generation collects new keys, the previous one is kept for lookups
// and discarded wholesale on the next rotation. Rotation happens when the
// window elapses or the current generation reaches the size limit, so memory
// stays bounded without a background sweeper.
type Cache struct {
	mu       sync.Mutex
	window   time.Duration
	limit    int
	current  map[string]struct{}
	previous map[string]struct{}
	rotated  time.Time

	now func() time.Time // test hook
}

// New creates a cache that remembers keys for at least window and holds at
// most 2*limit keys.
func New(window time.Duration, limit int) *Cache {
	return &Cache{
		window:   window,
		limit:    limit,
		current:  make(map[string]struct{}),
		previous: map[string]struct{}{},
		rotated:  time.Now(),
		now:      time.Now,
	}
}

// CheckAndMark reports whether key was already seen, marking it if not.
// The check and the mark are a single atomic step.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeRotate()

	if _, ok := c.current[key]; ok {
		return true
	}
	if _, ok := c.previous[key]; ok {
		return true
	}

	c.current[key] = struct{}{}
	return false
}

// Len returns the number of keys currently tracked across both generations.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.current) + len(c.previous)
}

// maybeRotate ages out the previous generation. Must be called with mu held.
func (c *Cache) maybeRotate() {
	if c.now().Sub(c.rotated) < c.window && len(c.current) < c.limit {
		return
	}
	c.previous = c.current
	c.current = make(map[string]struct{})
	c.rotated = c.now()
}
