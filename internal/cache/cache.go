// Package cache memoizes derived values keyed by record-set generation.
//
// Entries live in a table bound to a single generation. When a key with a
// newer generation arrives the whole table is swapped out, so stale entries
// are never consulted again and are dropped en masse. Concurrent requests for
// the same key share one computation.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key identifies a cached value.
type Key struct {
	Generation uint64
	// Filter is the canonical encoding of the filter the value was derived with.
	Filter string
	Kind   string
}

func (k Key) String() string {
	return fmt.Sprintf("%d|%s|%s", k.Generation, k.Kind, k.Filter)
}

// Entry is an immutable cached value.
type Entry[V any] struct {
	Value      V
	Generation uint64
	ComputedAt time.Time
}

// Stats are cumulative counters.
type Stats struct {
	Hits         uint64
	Misses       uint64
	Computations uint64
	Evictions    uint64
	Generation   uint64
	Entries      int
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	ttl     time.Duration
	kindTTL map[string]time.Duration
	now     func() time.Time
}

// WithTTL treats entries older than d as misses. Zero disables expiry.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithKindTTL overrides the TTL for one kind.
func WithKindTTL(kind string, d time.Duration) Option {
	return func(o *options) { o.kindTTL[kind] = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type table[V any] struct {
	generation uint64
	mu         sync.RWMutex
	entries    map[string]Entry[V]
}

// Cache is a generation-scoped memo table. The zero value is not usable; use New.
type Cache[V any] struct {
	opts  options
	table atomic.Pointer[table[V]]
	group singleflight.Group

	inflightMu sync.Mutex
	inflight   map[string]chan struct{}

	hits, misses, computations, evictions atomic.Uint64
}

// New creates an empty cache.
func New[V any](opts ...Option) *Cache[V] {
	o := options{kindTTL: make(map[string]time.Duration), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Cache[V]{opts: o, inflight: make(map[string]chan struct{})}
	c.table.Store(&table[V]{entries: make(map[string]Entry[V])})
	return c
}

// Generation returns the generation of the current table.
func (c *Cache[V]) Generation() uint64 {
	return c.table.Load().generation
}

// Advance drops every entry when gen is newer than the current table.
// It returns true if the table was replaced.
func (c *Cache[V]) Advance(gen uint64) bool {
	for {
		cur := c.table.Load()
		if gen <= cur.generation {
			return false
		}
		next := &table[V]{generation: gen, entries: make(map[string]Entry[V])}
		if c.table.CompareAndSwap(cur, next) {
			cur.mu.RLock()
			c.evictions.Add(uint64(len(cur.entries)))
			cur.mu.RUnlock()
			return true
		}
	}
}

// Get returns the cached entry for key if it is present and fresh.
func (c *Cache[V]) Get(key Key) (Entry[V], bool) {
	t := c.tableFor(key.Generation)
	if t == nil {
		return Entry[V]{}, false
	}
	t.mu.RLock()
	e, ok := t.entries[key.String()]
	t.mu.RUnlock()
	if !ok || c.expired(key.Kind, e) {
		return Entry[V]{}, false
	}
	return e, true
}

// GetOrCompute returns the cached value for key, computing it with fn on a
// miss. Concurrent callers for the same key share one call to fn. Errors are
// returned to every waiter and are not cached. A result computed for a
// generation that has since been superseded is returned but not stored.
//
// fn runs detached from ctx so that one caller giving up does not fail the
// others; ctx only bounds how long this caller waits.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key Key, fn func() (V, error)) (Entry[V], error) {
	if e, ok := c.Get(key); ok {
		c.hits.Add(1)
		return e, nil
	}
	c.misses.Add(1)

	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.compute(key, fn)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Entry[V]{}, res.Err
		}
		return res.Val.(Entry[V]), nil
	case <-ctx.Done():
		return Entry[V]{}, ctx.Err()
	}
}

// Lookup is the non-blocking view of a key.
type Lookup[V any] struct {
	Entry Entry[V]
	// Ready is set when Entry holds a fresh value.
	Ready bool
	// Done is closed once the computation started for this key finishes.
	// Nil when Ready.
	Done <-chan struct{}
}

// Fetch returns the cached entry if fresh; otherwise it starts fn in the
// background (unless a computation for key is already running) and returns
// a pending Lookup. Failed computations are not cached, so the next Fetch
// retries. onErr, if non-nil, receives computation errors.
func (c *Cache[V]) Fetch(key Key, fn func() (V, error), onErr func(error)) Lookup[V] {
	if e, ok := c.Get(key); ok {
		c.hits.Add(1)
		return Lookup[V]{Entry: e, Ready: true}
	}

	id := key.String()
	c.inflightMu.Lock()
	if done, ok := c.inflight[id]; ok {
		c.inflightMu.Unlock()
		return Lookup[V]{Done: done}
	}
	done := make(chan struct{})
	c.inflight[id] = done
	c.inflightMu.Unlock()
	c.misses.Add(1)

	go func() {
		defer func() {
			c.inflightMu.Lock()
			delete(c.inflight, id)
			c.inflightMu.Unlock()
			close(done)
		}()
		_, err, _ := c.group.Do(id, func() (any, error) {
			return c.compute(key, fn)
		})
		if err != nil && onErr != nil {
			onErr(err)
		}
	}()
	return Lookup[V]{Done: done}
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	t := c.table.Load()
	t.mu.RLock()
	n := len(t.entries)
	t.mu.RUnlock()
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Computations: c.computations.Load(),
		Evictions:    c.evictions.Load(),
		Generation:   t.generation,
		Entries:      n,
	}
}

// compute runs inside the singleflight group for key.
func (c *Cache[V]) compute(key Key, fn func() (V, error)) (Entry[V], error) {
	// A flight that finished just before this one may have stored the value.
	if e, ok := c.Get(key); ok {
		return e, nil
	}

	c.computations.Add(1)
	v, err := fn()
	if err != nil {
		return Entry[V]{}, err
	}
	e := Entry[V]{Value: v, Generation: key.Generation, ComputedAt: c.opts.now()}

	c.Advance(key.Generation)
	t := c.table.Load()
	if t.generation == key.Generation {
		t.mu.Lock()
		t.entries[key.String()] = e
		t.mu.Unlock()
	}
	return e, nil
}

func (c *Cache[V]) tableFor(gen uint64) *table[V] {
	t := c.table.Load()
	if t.generation != gen {
		return nil
	}
	return t
}

func (c *Cache[V]) expired(kind string, e Entry[V]) bool {
	ttl := c.opts.ttl
	if d, ok := c.opts.kindTTL[kind]; ok {
		ttl = d
	}
	if ttl <= 0 {
		return false
	}
	return c.opts.now().Sub(e.ComputedAt) >= ttl
}
