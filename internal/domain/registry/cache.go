package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/propensity/internal/domain/inference"
)

// Handle is a loaded, ready-to-query model.
type Handle = inference.Classifier

// cacheEntry is filled exactly once; ready is closed when it is.
type cacheEntry struct {
	ready  chan struct{}
	handle Handle
	err    error
}

// Cache memoizes handles by identifier. Concurrent callers asking for the
// same identifier share a single load. Failed loads are forgotten so a
// repaired file can be retried.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// NewCache creates an empty handle cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheEntry)}
}

// GetOrLoad returns the cached handle for id, calling load at most once per
// successful identifier. hit is true when no load was performed by this call.
func (c *Cache) GetOrLoad(ctx context.Context, id string, load func() (Handle, error)) (h Handle, hit bool, err error) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		c.mu.Unlock()
		select {
		case <-e.ready:
			return e.handle, true, e.err
		case <-ctx.Done():
			return nil, true, fmt.Errorf("waiting for model %q: %w", id, ctx.Err())
		}
	}
	e := &cacheEntry{ready: make(chan struct{})}
	c.entries[id] = e
	c.mu.Unlock()

	defer close(e.ready)
	defer func() {
		if p := recover(); p != nil {
			e.handle, e.err = nil, fmt.Errorf("load panicked: %v", p)
		}
		if e.err != nil {
			c.mu.Lock()
			delete(c.entries, id)
			c.mu.Unlock()
		}
		h, err = e.handle, e.err
	}()

	e.handle, e.err = load()
	return e.handle, false, e.err
}

// Len returns the number of identifiers cached or loading.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
