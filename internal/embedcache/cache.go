// Package embedcache implements the embedding cache: a
// concurrent, singleflight-deduplicated cache keyed by
// SHA-256(provider‖model‖text), with an in-process LRU primary tier and an
// optional disk-backed overflow tier for entries evicted from the LRU.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// entry pairs a cached vector with its expiry time.
type entry struct {
	vector  []float32
	expires time.Time
}

// OverflowTier is the interface the optional disk-backed tier satisfies,
// kept narrow so tests can fake it without pulling in badger.
type OverflowTier interface {
	Get(key string) ([]float32, bool, error)
	Set(key string, vector []float32, ttl time.Duration) error
	Close() error
}

// Cache is a two-tier embedding cache: an in-memory LRU in front of an
// optional OverflowTier for entries the LRU has evicted. Cache-miss
// computation for a given key is deduplicated across concurrent callers via
// singleflight, so a cache stampede triggers exactly one upstream Embed
// call.
type Cache struct {
	lru      *lru.Cache[string, entry]
	overflow OverflowTier
	ttl      time.Duration
	group    singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithOverflow attaches a disk-backed tier consulted on LRU miss and
// populated on LRU eviction... in this implementation, populated
// alongside every LRU write, since golang-lru/v2 has no eviction callback
// hook exposed through the plain Cache type.
func WithOverflow(tier OverflowTier) Option {
	return func(c *Cache) { c.overflow = tier }
}

// WithTTL sets the default entry lifetime. Zero means entries never expire.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// New creates a Cache with the given LRU capacity (entries, not bytes).
func New(size int, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = 1000
	}
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	c := &Cache{lru: l}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Key derives the cache key for a (provider, model, text) triple, using the
// SHA-256(provider‖model‖text) key scheme.
func Key(provider, model, text string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// GetOrCompute returns the cached vector for key, computing it via compute
// on a miss. Concurrent callers racing on the same key share one compute
// call. compute is only ever invoked once per outstanding miss regardless
// of how many goroutines call GetOrCompute concurrently for that key.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) ([]float32, error)) ([]float32, error) {
	if vec, ok := c.get(key); ok {
		return vec, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check: another goroutine may have populated the cache while we
		// waited to enter the singleflight group.
		if vec, ok := c.get(key); ok {
			return vec, nil
		}
		vec, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.set(key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func (c *Cache) get(key string) ([]float32, bool) {
	if e, ok := c.lru.Get(key); ok {
		if c.expired(e) {
			c.lru.Remove(key)
		} else {
			return e.vector, true
		}
	}
	if c.overflow == nil {
		return nil, false
	}
	vec, ok, err := c.overflow.Get(key)
	if err != nil || !ok {
		return nil, false
	}
	c.lru.Add(key, entry{vector: vec, expires: c.expiryFor()})
	return vec, true
}

func (c *Cache) set(key string, vec []float32) {
	c.lru.Add(key, entry{vector: vec, expires: c.expiryFor()})
	if c.overflow != nil {
		_ = c.overflow.Set(key, vec, c.ttl)
	}
}

func (c *Cache) expired(e entry) bool {
	return !e.expires.IsZero() && time.Now().After(e.expires)
}

func (c *Cache) expiryFor() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.ttl)
}

// Peek returns the cached vector for key without triggering computation,
// for callers (batch embedding) that want to check many keys before
// deciding what to compute.
func (c *Cache) Peek(key string) ([]float32, bool) {
	return c.get(key)
}

// Put stores vec under key directly, bypassing GetOrCompute's singleflight
// path. Used when a caller already computed several values in one batch
// call and wants to populate the cache for each individually.
func (c *Cache) Put(key string, vec []float32) error {
	c.set(key, vec)
	return nil
}

// Len reports the number of entries currently in the LRU tier.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Close releases the overflow tier, if any.
func (c *Cache) Close() error {
	if c.overflow != nil {
		return c.overflow.Close()
	}
	return nil
}
