package secrets

import (
	"context"
	"sync"
	"time"
)

// CacheTTL bounds how long fetched credentials are reused. Short enough
// that rotation takes effect promptly, long enough to spare the backend
// on bursts of tasks against the same site.
const CacheTTL = 5 * time.Minute

// Cache wraps a Provider with a TTL cache keyed by reference.
type Cache struct {
	inner Provider
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	creds     Credentials
	expiresAt time.Time
}

// NewCache wraps provider with the default TTL.
func NewCache(provider Provider) *Cache {
	return &Cache{
		inner:   provider,
		ttl:     CacheTTL,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get implements Provider.
func (c *Cache) Get(ctx context.Context, ref string) (Credentials, error) {
	c.mu.Lock()
	if entry, ok := c.entries[ref]; ok {
		if c.now().Before(entry.expiresAt) {
			c.mu.Unlock()
			return entry.creds, nil
		}
		delete(c.entries, ref)
	}
	c.mu.Unlock()

	creds, err := c.inner.Get(ctx, ref)
	if err != nil {
		return Credentials{}, err
	}

	c.mu.Lock()
	c.entries[ref] = cacheEntry{creds: creds, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return creds, nil
}

// Clear drops every cached entry. Called after a rotation.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
