// Package cache provides the response cache for generated artifacts.
// Identical generation requests within the freshness window are served
// from cache, and concurrent misses for the same key are collapsed into
// a single upstream generation.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hireloop/interview-engine/internal/domain"
	"github.com/hireloop/interview-engine/internal/ports"
)

const (
	// DefaultCapacity bounds the number of locally cached entries.
	DefaultCapacity = 1024

	// DefaultTTL is the freshness window for cached responses.
	DefaultTTL = 15 * time.Minute

	// DefaultSweepInterval is how often the background sweep evicts
	// expired entries that lazy expiry has not yet touched.
	DefaultSweepInterval = time.Minute
)

// Key derives a cache key from the parts that determine a generation's
// output, typically the template version, the rendered prompt, and the
// model identifier. Any part change produces a distinct key.
func Key(parts ...string) string {
	return domain.FingerprintParts(parts...)
}

// Options configures a ResponseCache. Zero values take defaults.
type Options struct {
	// Capacity is the maximum number of local entries. Least recently
	// used entries are evicted when the bound is exceeded.
	Capacity int

	// TTL is the freshness window for cached entries.
	TTL time.Duration

	// SweepInterval controls the background eviction pass. Zero
	// disables the sweep; expired entries are then evicted lazily on
	// access and by LRU pressure only.
	SweepInterval time.Duration

	// Shared is an optional second cache tier consulted on local miss
	// and written through on generation. Shared tier failures degrade
	// to local-only operation.
	Shared ports.CacheStore

	// Metrics receives hit and miss counters when set.
	Metrics ports.MetricsCollector

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// ResponseCache is a bounded in-process cache with TTL expiry,
// single-flight miss coalescing, and an optional shared tier.
type ResponseCache struct {
	capacity int
	ttl      time.Duration
	shared   ports.CacheStore
	metrics  ports.MetricsCollector
	logger   *zap.Logger

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List

	stop chan struct{}
	done chan struct{}
}

// NewResponseCache builds a cache and starts its background sweep when
// a sweep interval is configured. Call Stop to release the sweeper.
func NewResponseCache(opts Options) *ResponseCache {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &ResponseCache{
		capacity: opts.Capacity,
		ttl:      opts.TTL,
		shared:   opts.Shared,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if opts.SweepInterval > 0 {
		go c.sweepLoop(opts.SweepInterval)
	} else {
		close(c.done)
	}
	return c
}

// Stop terminates the background sweep. The cache remains usable.
func (c *ResponseCache) Stop() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	<-c.done
}

// GetOrGenerate returns the cached value for key, or runs generate to
// produce it. Concurrent callers with the same key share a single
// generate invocation; a caller whose context expires while waiting on
// another caller's flight returns its context error without aborting
// the flight. A positive ttl overrides the cache default for this
// entry. The bool reports whether the value came from cache.
func (c *ResponseCache) GetOrGenerate(
	ctx context.Context,
	key string,
	ttl time.Duration,
	generate func(context.Context) ([]byte, error),
) ([]byte, bool, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	if value, ok := c.lookup(key); ok {
		c.count("cache_hits_total")
		return value, true, nil
	}

	type flightResult struct {
		value  []byte
		cached bool
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// A concurrent winner may have populated the entry while this
		// caller was joining the flight.
		if value, ok := c.lookup(key); ok {
			return flightResult{value: value, cached: true}, nil
		}

		if c.shared != nil {
			if value, ok, err := c.shared.Get(ctx, key); err != nil {
				c.logger.Warn("shared cache read failed, generating",
					zap.String("key", key), zap.Error(err))
			} else if ok {
				c.store(key, value, ttl)
				return flightResult{value: value, cached: true}, nil
			}
		}

		value, err := generate(ctx)
		if err != nil {
			return nil, err
		}

		c.store(key, value, ttl)
		if c.shared != nil {
			if err := c.shared.Set(ctx, key, value, ttl); err != nil {
				c.logger.Warn("shared cache write failed",
					zap.String("key", key), zap.Error(err))
			}
		}
		return flightResult{value: value, cached: false}, nil
	})

	select {
	case <-ctx.Done():
		c.count("cache_misses_total")
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.count("cache_misses_total")
			return nil, false, res.Err
		}
		result := res.Val.(flightResult)
		if result.cached {
			c.count("cache_hits_total")
		} else {
			c.count("cache_misses_total")
		}
		return result.value, result.cached, nil
	}
}

// Invalidate removes a key from the local tier and, when configured,
// the shared tier.
func (c *ResponseCache) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
	c.mu.Unlock()

	if c.shared != nil {
		if err := c.shared.Delete(ctx, key); err != nil {
			c.logger.Warn("shared cache delete failed",
				zap.String("key", key), zap.Error(err))
		}
	}
}

// Len reports the number of live local entries, excluding entries that
// have expired but not yet been swept.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	now := time.Now()
	for _, elem := range c.entries {
		if now.Before(elem.Value.(*entry).expiresAt) {
			n++
		}
	}
	return n
}

// lookup returns a live entry and promotes it in the LRU order.
// Expired entries are evicted on access.
func (c *ResponseCache) lookup(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	e := elem.Value.(*entry)
	if !time.Now().Before(e.expiresAt) {
		c.removeLocked(elem)
		return nil, false
	}

	c.lru.MoveToFront(elem)
	return e.value, true
}

func (c *ResponseCache) store(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = time.Now().Add(ttl)
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(&entry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	c.entries[key] = elem

	for len(c.entries) > c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

func (c *ResponseCache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	c.lru.Remove(elem)
	delete(c.entries, e.key)
}

func (c *ResponseCache) sweepLoop(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep evicts every expired entry in one pass.
func (c *ResponseCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if !now.Before(elem.Value.(*entry).expiresAt) {
			c.removeLocked(elem)
		}
		elem = prev
	}
}

func (c *ResponseCache) count(name string) {
	if c.metrics != nil {
		c.metrics.RecordCounter(name, 1, nil)
	}
}
