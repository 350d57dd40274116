// Package cachesvc implements core.Cache in memory and on redis.
package cachesvc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core"
)

// MemoryCache is a size-limited, in-process cache backed by ttlcache.
// Expired entries are purged by a janitor goroutine until Close.
// When full, the least recently used entry is evicted.
type MemoryCache struct {
	items *ttlcache.Cache[string, []byte]

	done chan struct{}
	once sync.Once
}

var _ core.Cache = (*MemoryCache)(nil)

// NewMemoryCache returns a running cache. A sizeLimit <= 0 means unbounded.
func NewMemoryCache(sizeLimit int) *MemoryCache {
	opts := []ttlcache.Option[string, []byte]{
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if sizeLimit > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](uint64(sizeLimit)))
	}

	c := &MemoryCache{
		items: ttlcache.New[string, []byte](opts...),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		c.items.Start()
	}()
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	item := c.items.Get(key)
	if item == nil {
		return false, nil
	}
	if err := json.Unmarshal(item.Value(), dest); err != nil {
		return false, errors.Wrapf(err, "decoding cache entry %s", key)
	}
	return true, nil
}

// Set stores value for ttl. Entries without a positive ttl are not stored.
func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encoding cache entry %s", key)
	}
	c.items.Set(key, data, ttl)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.items.Delete(key)
	}
	return nil
}

func (c *MemoryCache) Len() int {
	return c.items.Len()
}

// Close stops the janitor. It is safe to call more than once.
func (c *MemoryCache) Close() error {
	c.once.Do(c.items.Stop)
	<-c.done
	return nil
}
