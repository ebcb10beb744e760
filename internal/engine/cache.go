package engine

import "sync"

// Cache maps tag ids to the last value observed. Entries are never removed.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	values map[int64]float64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{values: make(map[int64]float64)}
}

// Set records v as the latest value of tagID.
func (c *Cache) Set(tagID int64, v float64) {
	c.mu.Lock()
	c.values[tagID] = v
	c.mu.Unlock()
}

// Get returns the latest value of tagID and whether one has been seen.
func (c *Cache) Get(tagID int64) (float64, bool) {
	c.mu.RLock()
	v, ok := c.values[tagID]
	c.mu.RUnlock()
	return v, ok
}

// Value returns the latest value of tagID, or 0 if none has been seen.
func (c *Cache) Value(tagID int64) float64 {
	v, _ := c.Get(tagID)
	return v
}

// Len returns the number of tags with a recorded value.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Snapshot returns a copy of every cached value.
func (c *Cache) Snapshot() map[int64]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]float64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
