package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"payflow/internal/payment/models"
)

// MemoryCache is an in-process StatusCache with per-entry TTL and LRU
// eviction once maxSize is reached. Expired entries are dropped on read and
// swept by a background janitor so an idle cache does not pin memory.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	once    sync.Once
}

type memoryEntry struct {
	key       string
	snapshot  models.StatusSnapshot
	expiresAt time.Time
}

// NewMemory creates a memory cache and starts its janitor. Call Close to stop
// the janitor when the cache is no longer needed.
func NewMemory(ttl time.Duration, maxSize int) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

func (c *MemoryCache) Get(_ context.Context, transactionID string) (*models.StatusSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[transactionID]
	if !ok {
		return nil, nil
	}
	entry := elem.Value.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(elem)
		return nil, nil
	}
	c.lru.MoveToFront(elem)
	snapshot := entry.snapshot
	return &snapshot, nil
}

func (c *MemoryCache) Set(_ context.Context, snapshot models.StatusSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)
	if elem, ok := c.entries[snapshot.TransactionID]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.snapshot = snapshot
		entry.expiresAt = expiresAt
		c.lru.MoveToFront(elem)
		return nil
	}

	elem := c.lru.PushFront(&memoryEntry{
		key:       snapshot.TransactionID,
		snapshot:  snapshot,
		expiresAt: expiresAt,
	})
	c.entries[snapshot.TransactionID] = elem

	if c.maxSize > 0 && c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, transactionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[transactionID]; ok {
		c.removeLocked(elem)
	}
	return nil
}

// Len reports the number of live entries, counting ones awaiting the janitor.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Close stops the janitor goroutine.
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *MemoryCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(c.entries, entry.key)
	c.lru.Remove(elem)
}

func (c *MemoryCache) janitor() {
	interval := c.ttl
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.sweep(now)
		}
	}
}

func (c *MemoryCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if entry := elem.Value.(*memoryEntry); now.After(entry.expiresAt) {
			c.removeLocked(elem)
		}
		elem = prev
	}
}
