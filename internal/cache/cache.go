package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	defaultSize = 256
	defaultTTL  = 5 * time.Minute
)

// Cache is a bounded in-memory store with per-entry expiry.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Purge()
}

// LoaderCache collapses concurrent misses for the same key into one load.
type LoaderCache[V any] struct {
	entries *lru.LRU[string, V]
	group   singleflight.Group
}

func NewLoaderCache[V any](size int, ttl time.Duration) *LoaderCache[V] {
	if size <= 0 {
		size = defaultSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &LoaderCache[V]{
		entries: lru.NewLRU[string, V](size, nil, ttl),
	}
}

func (c *LoaderCache[V]) Get(key string) (V, bool) {
	return c.entries.Get(key)
}

func (c *LoaderCache[V]) Set(key string, value V) {
	c.entries.Add(key, value)
}

func (c *LoaderCache[V]) Delete(key string) {
	c.entries.Remove(key)
}

func (c *LoaderCache[V]) Purge() {
	c.entries.Purge()
}

// GetOrLoad returns the cached value or runs load once per key across callers.
// Failed loads are not cached.
func (c *LoaderCache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if value, ok := c.entries.Get(key); ok {
		return value, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		if value, ok := c.entries.Get(key); ok {
			return value, nil
		}
		value, err := load(ctx)
		if err != nil {
			return value, err
		}
		c.entries.Add(key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

var _ Cache[string, int] = (*LoaderCache[int])(nil)
