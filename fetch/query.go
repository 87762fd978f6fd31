package fetch

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/IvanBrykalov/venuecache/cache"
)

// State is a snapshot of what a Query holds.
type State[V any] struct {
	Data    V
	HasData bool
	Loading bool
	// Err is the last fetch error; it is cleared by the next success.
	// Data from before the failure is kept.
	Err         error
	LastFetched time.Time
	Stale       bool
}

// Query binds a fetch function to a cache key. Fetches of the same key go
// through the cache's coalesced load, so any number of Queries (or
// concurrent calls on one Query) share a single execution per key.
type Query[V any] struct {
	c   cache.Cache[V]
	fn  Func[V]
	opt Options[V]

	mu          sync.Mutex
	deps        []any
	key         string
	data        V
	hasData     bool
	loading     int
	err         error
	lastFetched int64
}

// NewQuery returns a Query reading through c. It panics when c or fn is
// nil or CacheKey is empty.
func NewQuery[V any](c cache.Cache[V], fn Func[V], opt Options[V]) *Query[V] {
	if c == nil || fn == nil {
		panic("fetch: NewQuery needs a cache and a fetch function")
	}
	if opt.CacheKey == "" {
		panic("fetch: CacheKey is required")
	}
	if opt.RetryCount == 0 {
		opt.RetryCount = DefaultRetryCount
	}
	if opt.RetryDelay <= 0 {
		opt.RetryDelay = DefaultRetryDelay
	}
	if opt.StaleTime <= 0 {
		opt.StaleTime = DefaultStaleTime
	}
	ttl := opt.TTL
	if ttl <= 0 {
		ttl = c.Stats().DefaultTTL
	}
	if opt.StaleTime > ttl {
		opt.StaleTime = ttl
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logf == nil {
		opt.Logf = log.Printf
	}

	return &Query[V]{
		c:    c,
		fn:   fn,
		opt:  opt,
		deps: opt.Deps,
		key:  keyFor(opt.CacheKey, opt.Deps),
	}
}

// Key returns the effective cache key.
func (q *Query[V]) Key() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.key
}

// StaleTime returns the effective staleness window.
func (q *Query[V]) StaleTime() time.Duration { return q.opt.StaleTime }

// State returns a snapshot of the query.
func (q *Query[V]) State() State[V] {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := State[V]{
		Data:    q.data,
		HasData: q.hasData,
		Loading: q.loading > 0,
		Err:     q.err,
		Stale:   q.staleLocked(),
	}
	if q.lastFetched != 0 {
		s.LastFetched = time.Unix(0, q.lastFetched)
	}
	return s
}

// Mount performs the initial fetch: a cached value is used unless
// RefetchOnMount is set.
func (q *Query[V]) Mount(ctx context.Context) (V, error) {
	if q.opt.RefetchOnMount {
		return q.Refetch(ctx)
	}
	return q.Fetch(ctx)
}

// Fetch returns the cached value or joins/starts a load for the key.
func (q *Query[V]) Fetch(ctx context.Context) (V, error) {
	return q.run(ctx, false)
}

// Refetch bypasses a cached value but still coalesces with any load of
// the same key already in flight.
func (q *Query[V]) Refetch(ctx context.Context) (V, error) {
	return q.run(ctx, true)
}

// Invalidate drops the query's data and the cache entry, so the next Fetch
// has to load.
func (q *Query[V]) Invalidate() {
	q.mu.Lock()
	key := q.key
	q.resetLocked()
	q.mu.Unlock()

	q.c.Delete(key)
}

// SetDeps replaces the dependency list. When it differs from the current
// one the key changes, the old data is dropped, and the query fetches.
func (q *Query[V]) SetDeps(ctx context.Context, deps ...any) error {
	q.mu.Lock()
	if reflect.DeepEqual(q.deps, deps) {
		q.mu.Unlock()
		return nil
	}
	q.deps = deps
	q.key = keyFor(q.opt.CacheKey, deps)
	q.resetLocked()
	q.mu.Unlock()

	_, err := q.Fetch(ctx)
	return err
}

// Focus is the passive trigger for regaining focus: with
// RefetchOnWindowFocus set, stale data is refetched. It reports whether a
// fetch ran.
func (q *Query[V]) Focus(ctx context.Context) (bool, error) {
	if !q.opt.RefetchOnWindowFocus || q.opt.Disabled || !q.IsStale() {
		return false, nil
	}
	_, err := q.Refetch(ctx)
	return true, err
}

// IsStale reports whether the data is missing or older than StaleTime.
// Stale data is still valid to serve.
func (q *Query[V]) IsStale() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.staleLocked()
}

func (q *Query[V]) run(ctx context.Context, force bool) (V, error) {
	if q.opt.Disabled {
		var zero V
		return zero, ErrDisabled
	}

	q.mu.Lock()
	key := q.key
	q.loading++
	q.mu.Unlock()

	load := func(ctx context.Context) (V, error) {
		return Retry(ctx, q.fn, q.opt.RetryCount, q.opt.RetryDelay, q.opt.Metrics)
	}
	var (
		v   V
		err error
	)
	if force {
		v, err = q.c.Load(ctx, key, load, q.opt.TTL)
	} else {
		v, err = q.c.GetOrSet(ctx, key, load, q.opt.TTL)
	}

	fetched := q.now()
	if err == nil {
		if e, ok := q.c.Entry(key); ok {
			fetched = e.CreatedAt.UnixNano()
		}
	}

	q.mu.Lock()
	q.loading--
	moved := key != q.key // deps changed while loading
	if !moved {
		if err != nil {
			q.err = err
		} else {
			q.data, q.hasData, q.err = v, true, nil
			q.lastFetched = fetched
		}
	}
	q.mu.Unlock()

	if err != nil {
		q.opt.Logf("fetch: %s: %v", key, err)
		if cb := q.opt.OnError; cb != nil {
			cb(err)
		}
		return v, err
	}
	if cb := q.opt.OnSuccess; cb != nil {
		cb(v)
	}
	return v, nil
}

func (q *Query[V]) resetLocked() {
	var zero V
	q.data, q.hasData, q.err, q.lastFetched = zero, false, nil, 0
}

func (q *Query[V]) staleLocked() bool {
	if !q.hasData {
		return true
	}
	return q.now()-q.lastFetched > int64(q.opt.StaleTime)
}

func (q *Query[V]) now() int64 {
	if q.opt.Clock != nil {
		return q.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// keyFor folds deps into the cache key.
func keyFor(base string, deps []any) string {
	if len(deps) == 0 {
		return base
	}
	return base + "|" + fmt.Sprint(deps)
}
