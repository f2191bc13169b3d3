package layout

import "sync"

type cacheEntry struct {
	Layout DescriptorLayout
	Err    *LayoutError
}

func (c *cacheEntry) err() error {
	if c.Err == nil {
		return nil
	}
	return c.Err
}

type cache struct {
	mu      sync.RWMutex
	byShape map[Shape]cacheEntry
}

func newCache() *cache {
	return &cache{byShape: make(map[Shape]cacheEntry, 64)}
}

func (c *cache) get(s Shape) (cacheEntry, bool) {
	if c == nil {
		return cacheEntry{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byShape[s]
	return e, ok
}

func (c *cache) put(s Shape, e *cacheEntry) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e == nil {
		delete(c.byShape, s)
		return
	}
	c.byShape[s] = *e
}
