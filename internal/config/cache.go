package config

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is the absolute expiration for the cached instance config.
const DefaultTTL = time.Minute

// Cache holds the process-wide instance config: a single value with an
// absolute expiry, refreshed from storage on miss. The mutex doubles as the
// single-flight guard; concurrent callers on an expired entry wait for one
// refresh instead of storming storage.
type Cache struct {
	Load func(ctx context.Context) (*Config, error)
	TTL  time.Duration
	Now  func() time.Time

	mu     sync.Mutex
	value  *Config
	expiry time.Time
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Cache) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return DefaultTTL
}

// Get returns the cached config, refreshing it through Load when expired.
func (c *Cache) Get(ctx context.Context) (*Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value != nil && c.now().Before(c.expiry) {
		return c.value, nil
	}
	value, err := c.Load(ctx)
	if err != nil {
		// A stale value beats a hard failure for readers.
		if c.value != nil {
			return c.value, nil
		}
		return nil, err
	}
	c.value = value
	c.expiry = c.now().Add(c.ttl())
	return value, nil
}

// Set overwrites the cached value in place after a successful write.
func (c *Cache) Set(value *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.expiry = c.now().Add(c.ttl())
}

// Invalidate drops the cached value so the next Get refreshes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = nil
	c.expiry = time.Time{}
}
