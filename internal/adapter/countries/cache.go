package countries

import (
	"context"
	"sync"

	"covidboard/internal/domain"
)

// CachedResolver wraps a Resolver with an in-memory LRU cache so repeated
// bulk resolutions across datasets only pay the alias normalization once
// per name.
type CachedResolver struct {
	inner domain.Resolver
	cache *lruCache
}

// NewCachedResolver creates a cache decorator around a resolver.
func NewCachedResolver(inner domain.Resolver, maxEntries int) *CachedResolver {
	return &CachedResolver{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

// ResolveAll serves cached names and delegates only the misses to the
// inner resolver. Unmatched results are cached too: resolution is pure
// within a run, so a miss is as stable as a hit.
func (c *CachedResolver) ResolveAll(ctx context.Context, names []string) (map[string]domain.CountryMeta, error) {
	out := make(map[string]domain.CountryMeta, len(names))
	misses := make([]string, 0)
	for _, name := range names {
		if meta, ok := c.cache.get(name); ok {
			out[name] = meta
			continue
		}
		misses = append(misses, name)
	}

	if len(misses) == 0 {
		return out, nil
	}

	resolved, err := c.inner.ResolveAll(ctx, misses)
	if err != nil {
		return nil, err
	}
	for name, meta := range resolved {
		out[name] = meta
		c.cache.put(name, meta)
	}
	return out, nil
}

// lruCache is a simple thread-safe LRU cache for resolved metadata.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.CountryMeta
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.CountryMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.CountryMeta{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.CountryMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
