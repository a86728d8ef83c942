package chat

import "sync"

// Cache is the bounded in-memory tail of the message log, ordered ascending by
// timestamp. It only seeds newly connecting clients; the MessageStore remains
// the source of truth.
type Cache struct {
	capacity int

	mu   sync.Mutex
	tail []ChatFrame
}

// NewCache constructs a cache holding at most capacity messages.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = RecentCacheSize
	}
	return &Cache{capacity: capacity}
}

// Add appends a message, evicting the oldest entry on overflow.
func (c *Cache) Add(m ChatFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tail = append(c.tail, m)
	if len(c.tail) > c.capacity {
		c.tail = c.tail[len(c.tail)-c.capacity:]
	}
}

// Fill replaces the cache contents with the given ascending sequence,
// truncated to the newest entries if it exceeds capacity.
func (c *Cache) Fill(msgs []ChatFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(msgs) > c.capacity {
		msgs = msgs[len(msgs)-c.capacity:]
	}
	c.tail = append(c.tail[:0:0], msgs...)
}

// Snapshot returns a copy of the current tail.
func (c *Cache) Snapshot() []ChatFrame {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]ChatFrame(nil), c.tail...)
}

// Len reports the number of cached messages.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tail)
}
