package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"nixmate/internal/dependency"
	"nixmate/internal/operation"
	"nixmate/pkg/logging"
)

// DefaultTTL applies to kinds without an explicit TTL.
const DefaultTTL = 300 * time.Second

// ComputeFunc produces a result on a cache miss. Unsuccessful results are
// returned to callers but never stored.
type ComputeFunc func(ctx context.Context) operation.Result

// Stats are cumulative lookup counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Joins       uint64
	Invalidated uint64
	Entries     int
}

// Cache is a TTL cache for idempotent reads with in-flight deduplication.
type Cache struct {
	store   Store
	ttl     time.Duration
	kindTTL map[operation.Kind]time.Duration
	now     func() time.Time
	graph   *dependency.Graph

	group  singleflight.Group
	epochs map[operation.Kind]*kindEpoch

	hits, misses, joins, invalidated atomic.Uint64
}

// kindEpoch counts invalidations of one kind. The mutex orders a store
// against a concurrent invalidation of the same kind.
type kindEpoch struct {
	mu sync.Mutex
	n  uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore replaces the default in-memory store.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithTTL sets the default TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKindTTL overrides the TTL of one kind.
func WithKindTTL(kind operation.Kind, ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.kindTTL[kind] = ttl
		}
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		store:   NewMemoryStore(),
		ttl:     DefaultTTL,
		kindTTL: make(map[operation.Kind]time.Duration),
		now:     time.Now,
		graph:   StateGraph(),
		epochs:  make(map[operation.Kind]*kindEpoch, len(operation.AllKinds)),
	}
	for _, k := range operation.AllKinds {
		c.epochs[k] = &kindEpoch{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTLFor returns the TTL applied to kind.
func (c *Cache) TTLFor(kind operation.Kind) time.Duration {
	if ttl, ok := c.kindTTL[kind]; ok {
		return ttl
	}
	return c.ttl
}

func (c *Cache) epoch(kind operation.Kind) uint64 {
	e, ok := c.epochs[kind]
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n
}

// Lookup returns a fresh cached result for op, purging it if expired.
func (c *Cache) Lookup(op operation.Operation) (operation.Result, bool) {
	key := op.CacheKey()
	entry, found, err := c.store.Get(key)
	if err != nil {
		logging.Warn("Cache", "Lookup of %s failed, treating as miss: %v", key, err)
		return operation.Result{}, false
	}
	if !found {
		return operation.Result{}, false
	}
	if entry.Expired(c.now()) {
		if err := c.store.Delete(key); err != nil {
			logging.Warn("Cache", "Failed to purge expired entry %s: %v", key, err)
		}
		logging.Debug("Cache", "Purged expired entry %s", key)
		return operation.Result{}, false
	}
	return entry.Result, true
}

// GetOrCompute returns the cached result for op or runs compute. Operations
// that are not idempotent reads bypass the cache and call compute directly.
//
// Concurrent callers with the same key share one compute call. The shared
// computation runs detached from any single caller's cancellation; a caller
// whose ctx ends stops waiting and gets a cancelled result.
func (c *Cache) GetOrCompute(ctx context.Context, op operation.Operation, compute ComputeFunc) operation.Result {
	if !op.IsIdempotentRead() {
		return compute(ctx)
	}

	start := time.Now()
	if res, ok := c.Lookup(op); ok {
		c.hits.Add(1)
		res.CacheHit = true
		res.Deduplicated = false
		res.SetDuration(time.Since(start))
		logging.Debug("Cache", "Hit for %s", op.CacheKey())
		return res
	}

	key := op.CacheKey()
	epoch := c.epoch(op.Kind())
	flightKey := fmt.Sprintf("%s#%d", key, epoch)
	detached := context.WithoutCancel(ctx)

	var leader atomic.Bool
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		leader.Store(true)
		c.misses.Add(1)
		res := compute(detached)
		if res.Success {
			c.remember(op, res, epoch)
		}
		return res, nil
	})

	select {
	case r := <-ch:
		res := r.Val.(operation.Result).Clone()
		res.CacheHit = false
		res.Deduplicated = !leader.Load()
		if res.Deduplicated {
			c.joins.Add(1)
			logging.Debug("Cache", "Joined in-flight computation for %s", key)
		}
		res.SetDuration(time.Since(start))
		return res
	case <-ctx.Done():
		f := operation.AsFailure(ctx.Err())
		res := operation.Failed(op, f)
		res.SetDuration(time.Since(start))
		return res
	}
}

// remember stores a successful result unless the kind was invalidated while
// it was being computed.
func (c *Cache) remember(op operation.Operation, res operation.Result, epoch uint64) {
	if e, ok := c.epochs[op.Kind()]; ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.n != epoch {
			logging.Debug("Cache", "Dropping result for %s computed before invalidation", op.CacheKey())
			return
		}
	}
	res.CacheHit = false
	res.Deduplicated = false
	entry := Entry{
		Key:        op.CacheKey(),
		Kind:       op.Kind(),
		Result:     res,
		InsertedAt: c.now(),
		TTL:        c.TTLFor(op.Kind()),
	}
	if err := c.store.Put(entry); err != nil {
		logging.Warn("Cache", "Failed to store %s: %v", entry.Key, err)
	}
}

// InvalidateKinds drops every entry of the given kinds and prevents results
// already in flight for them from being stored.
func (c *Cache) InvalidateKinds(kinds ...operation.Kind) int {
	total := 0
	for _, kind := range kinds {
		n, err := c.invalidateKind(kind)
		if err != nil {
			logging.Warn("Cache", "Failed to invalidate %s entries: %v", kind, err)
			continue
		}
		total += n
	}
	if total > 0 {
		c.invalidated.Add(uint64(total))
		logging.Debug("Cache", "Invalidated %d entries for %v", total, kinds)
	}
	return total
}

func (c *Cache) invalidateKind(kind operation.Kind) (int, error) {
	if e, ok := c.epochs[kind]; ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.n++
	}
	return c.store.DeleteKind(kind)
}

// InvalidateAfter drops the entries a successful mutation of kind makes
// stale and returns the affected kinds.
func (c *Cache) InvalidateAfter(kind operation.Kind) []operation.Kind {
	kinds := AffectedBy(c.graph, kind)
	if len(kinds) > 0 {
		c.InvalidateKinds(kinds...)
	}
	return kinds
}

// InvalidateResources drops entries derived from the given state resources.
// The profile watcher uses it when generations change outside this process.
func (c *Cache) InvalidateResources(resources ...dependency.NodeID) []operation.Kind {
	kinds := Affected(c.graph, resources...)
	if len(kinds) > 0 {
		c.InvalidateKinds(kinds...)
	}
	return kinds
}

// Stats returns cumulative counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Joins:       c.joins.Load(),
		Invalidated: c.invalidated.Load(),
		Entries:     c.store.Len(),
	}
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}
