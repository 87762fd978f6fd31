package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/venuecache/codec"
	"github.com/IvanBrykalov/venuecache/internal/singleflight"
	"github.com/IvanBrykalov/venuecache/policy"
	"github.com/IvanBrykalov/venuecache/policy/fifo"
)

// ErrClosed is returned by GetOrSet and Load after Close.
var ErrClosed = errors.New("cache: closed")

// cache is a single-lock in-memory store with an intrusive list ordered by
// the active policy (head = newest, tail = next victim).
type cache[V any] struct {
	// ---- guarded by mu ----
	mu     sync.Mutex
	m      map[string]*node[V]
	head   *node[V]
	tail   *node[V]
	len    int
	hits   uint64
	misses uint64
	evicts uint64

	pol policy.Instance[string, V]
	opt Options[V]

	// mirrorPrefix is "cache:<namespace>:" when persistence is enabled.
	mirrorPrefix string

	closed atomic.Bool

	// singleflight group for coalescing concurrent loads.
	sf singleflight.Group[string, V]

	// background sweep lifecycle
	lifeMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}
}

// New constructs a cache with the provided Options. When Options.Mirror is
// set the new cache is rehydrated from its persisted entries before New
// returns.
func New[V any](opt Options[V]) Cache[V] {
	if opt.MaxSize <= 0 {
		opt.MaxSize = DefaultMaxSize
	}
	if opt.DefaultTTL <= 0 {
		opt.DefaultTTL = DefaultTTL
	}
	if opt.SweepInterval <= 0 {
		opt.SweepInterval = DefaultSweepInterval
	}
	if opt.Policy == nil {
		opt.Policy = fifo.New[string, V]()
	}
	if opt.Codec == nil {
		opt.Codec = codec.JSON[V]{}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logf == nil {
		opt.Logf = log.Printf
	}

	c := &cache[V]{
		m:   make(map[string]*node[V], opt.MaxSize),
		opt: opt,
	}
	c.pol = opt.Policy.New(storeHooks[V]{c: c})

	if opt.Mirror != nil {
		if opt.Namespace == "" || strings.Contains(opt.Namespace, ":") {
			panic("cache: a persistent cache needs a Namespace without ':'")
		}
		c.mirrorPrefix = "cache:" + opt.Namespace + ":"
		c.rehydrate()
	}
	return c
}

// ---- Cache[V] implementation ----

func (c *cache[V]) Set(k string, v V) {
	c.SetWithTTL(k, v, 0)
}

func (c *cache[V]) SetWithTTL(k string, v V, ttl time.Duration) {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(k, v, c.ttlOf(ttl), c.now(), true)
}

func (c *cache[V]) Add(k string, v V) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookupLocked(k); ok {
		return false
	}
	c.setLocked(k, v, c.ttlOf(0), c.now(), true)
	return true
}

func (c *cache[V]) Get(k string) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.lookupLocked(k)
	if !ok {
		c.misses++
		c.opt.Metrics.Miss()
		return zero, false
	}
	c.pol.OnGet(n)
	c.hits++
	c.opt.Metrics.Hit()
	return n.val, true
}

func (c *cache[V]) Has(k string) bool {
	_, ok := c.Entry(k)
	return ok
}

func (c *cache[V]) Entry(k string) (Entry[V], bool) {
	if c.closed.Load() {
		return Entry[V]{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.lookupLocked(k)
	if !ok {
		return Entry[V]{}, false
	}
	return Entry[V]{
		Value:     n.val,
		CreatedAt: time.Unix(0, n.created),
		TTL:       time.Duration(n.ttl),
	}, true
}

func (c *cache[V]) Delete(k string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.m[k]
	if !ok {
		c.unmirror(k)
		return false
	}
	c.dropLocked(n, EvictExplicit, true)
	c.opt.Metrics.Size(c.len)
	return true
}

func (c *cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for n := c.tail; n != nil; {
		prev := n.prev
		c.dropLocked(n, EvictExplicit, false)
		n = prev
	}
	if c.opt.Mirror != nil {
		c.opt.Mirror.RemovePrefix(c.mirrorPrefix)
	}
	c.opt.Metrics.Size(c.len)
}

func (c *cache[V]) InvalidatePattern(expr string) (int, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return 0, fmt.Errorf("cache: invalid pattern %q: %w", expr, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, n := range c.m {
		if re.MatchString(k) {
			c.dropLocked(n, EvictExplicit, true)
			removed++
		}
	}
	c.opt.Metrics.Size(c.len)
	return removed, nil
}

// GetOrSet returns the value for k; on miss it runs fn, coalescing
// concurrent loads for the same key (singleflight).
func (c *cache[V]) GetOrSet(ctx context.Context, k string, fn Loader[V], ttl time.Duration) (V, error) {
	if c.closed.Load() {
		var zero V
		return zero, ErrClosed
	}
	// fast path
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	return c.load(ctx, k, fn, ttl, true)
}

func (c *cache[V]) Load(ctx context.Context, k string, fn Loader[V], ttl time.Duration) (V, error) {
	if c.closed.Load() {
		var zero V
		return zero, ErrClosed
	}
	return c.load(ctx, k, fn, ttl, false)
}

func (c *cache[V]) Forget(k string) { c.sf.Forget(k) }

func (c *cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for n := c.tail; n != nil; {
		prev := n.prev
		if n.expiredAt(now) {
			c.dropLocked(n, EvictTTL, true)
			removed++
		}
		n = prev
	}
	if removed > 0 {
		c.opt.Metrics.Size(c.len)
	}
	return removed
}

// Start launches the background sweep. Calling Start twice is a no-op.
func (c *cache[V]) Start() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.stop != nil || c.closed.Load() {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.sweepLoop(c.opt.SweepInterval, c.stop, c.done)
}

// Stop halts the background sweep and waits for it to exit.
func (c *cache[V]) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop, c.done = nil, nil
}

func (c *cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.len
}

func (c *cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:       c.len,
		MaxSize:    c.opt.MaxSize,
		DefaultTTL: c.opt.DefaultTTL,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evicts,
	}
}

// Close stops the sweep and marks the cache closed. Persisted mirrors are
// kept so the next process can rehydrate from them.
func (c *cache[V]) Close() error {
	c.Stop()
	c.closed.Store(true)
	return nil
}

// ---- helpers ----

func (c *cache[V]) load(ctx context.Context, k string, fn Loader[V], ttl time.Duration, recheck bool) (V, error) {
	v, err, shared := c.sf.Do(ctx, k, func(ctx context.Context) (V, error) {
		// double-check after winning the flight
		if recheck {
			if e, ok := c.Entry(k); ok {
				return e.Value, nil
			}
		}
		v, err := fn(ctx)
		if err == nil {
			c.SetWithTTL(k, v, ttl)
		}
		return v, err
	})
	if shared {
		c.opt.Metrics.Coalesced()
	}
	return v, err
}

func (c *cache[V]) sweepLoop(every time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.Sweep()
		case <-stop:
			return
		}
	}
}

func (c *cache[V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// ttlOf resolves a caller ttl to nanoseconds, falling back to DefaultTTL.
func (c *cache[V]) ttlOf(ttl time.Duration) int64 {
	if ttl <= 0 {
		return int64(c.opt.DefaultTTL)
	}
	return int64(ttl)
}

// rehydrate loads persisted entries, oldest first, so the restored list
// keeps creation-time order. Unreadable or expired copies are removed.
func (c *cache[V]) rehydrate() {
	type restored struct {
		key     string
		val     V
		created int64
		ttl     int64
	}

	now := c.now()
	var entries []restored
	for _, mk := range c.opt.Mirror.KeysWithPrefix(c.mirrorPrefix) {
		e, ok := c.opt.Mirror.Entry(mk)
		if !ok {
			continue
		}
		v, err := c.opt.Codec.Decode(e.Data)
		if err != nil {
			c.opt.Logf("cache: drop undecodable mirror %q: %v", mk, err)
			c.opt.Mirror.RemoveItem(mk)
			continue
		}
		r := restored{
			key:     strings.TrimPrefix(mk, c.mirrorPrefix),
			val:     v,
			created: e.CreatedAt.UnixNano(),
			ttl:     c.ttlOf(e.TTL),
		}
		if now-r.created > r.ttl {
			c.opt.Mirror.RemoveItem(mk)
			continue
		}
		entries = append(entries, r)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].created < entries[j].created })

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range entries {
		c.setLocked(r.key, r.val, r.ttl, r.created, false)
	}
}

// -------------------- internals (mu held) --------------------

// lookupLocked returns a readable node, evicting it if it has expired.
func (c *cache[V]) lookupLocked(k string) (*node[V], bool) {
	n, ok := c.m[k]
	if !ok {
		return nil, false
	}
	if n.expiredAt(c.now()) {
		c.dropLocked(n, EvictTTL, true)
		c.opt.Metrics.Size(c.len)
		return nil, false
	}
	return n, true
}

func (c *cache[V]) setLocked(k string, v V, ttl, created int64, persist bool) {
	n, ok := c.m[k]
	if ok {
		n.val = v
		n.created = created
		n.ttl = ttl
		c.pol.OnUpdate(n)
	} else {
		// Make room before admitting a new key.
		if c.len >= c.opt.MaxSize {
			if victim := c.back(); victim != nil {
				c.dropLocked(victim, EvictCapacity, true)
			}
		}
		n = &node[V]{key: k, val: v, created: created, ttl: ttl}
		c.m[k] = n
		c.pol.OnAdd(n)
	}
	if persist {
		c.mirrorLocked(n)
	}
	c.opt.Metrics.Size(c.len)
}

// dropLocked removes n from the map and list, updating counters, metrics,
// callbacks, and (when unmirror is set) the persistent copy.
func (c *cache[V]) dropLocked(n *node[V], reason EvictReason, unmirror bool) {
	c.pol.OnRemove(n)
	c.removeNode(n)
	delete(c.m, n.key)
	if reason != EvictExplicit {
		c.evicts++
	}
	c.opt.Metrics.Evict(reason)
	if unmirror {
		c.unmirror(n.key)
	}
	if cb := c.opt.OnEvict; cb != nil {
		cb(n.key, n.val, reason)
	}
}

func (c *cache[V]) mirrorLocked(n *node[V]) {
	if c.opt.Mirror == nil {
		return
	}
	data, err := c.opt.Codec.Encode(n.val)
	if err != nil {
		c.opt.Logf("cache: not persisting %q: %v", n.key, err)
		return
	}
	c.opt.Mirror.PutEntry(c.mirrorPrefix+n.key, data, time.Unix(0, n.created), time.Duration(n.ttl))
}

func (c *cache[V]) unmirror(k string) {
	if c.opt.Mirror != nil {
		c.opt.Mirror.RemoveItem(c.mirrorPrefix + k)
	}
}

// insertFront inserts n as the newest node in O(1).
func (c *cache[V]) insertFront(n *node[V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
	c.len++
}

// moveToFront promotes n to the head in O(1).
func (c *cache[V]) moveToFront(n *node[V]) {
	if n == c.head {
		return
	}
	// detach
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if c.tail == n {
		c.tail = n.prev
	}
	// insert at head
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

// removeNode unlinks n and updates the length in O(1).
func (c *cache[V]) removeNode(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if c.head == n {
		c.head = n.next
	}
	if c.tail == n {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
	c.len--
}

// back returns the next eviction victim in O(1).
func (c *cache[V]) back() *node[V] { return c.tail }

// -------------------- policy hooks --------------------

// storeHooks adapts the store's list operations to policy.Hooks.
type storeHooks[V any] struct{ c *cache[V] }

func (h storeHooks[V]) MoveToFront(x policy.Node[string, V]) { h.c.moveToFront(x.(*node[V])) }
func (h storeHooks[V]) PushFront(x policy.Node[string, V])   { h.c.insertFront(x.(*node[V])) }
func (h storeHooks[V]) Remove(x policy.Node[string, V])      { h.c.removeNode(x.(*node[V])) }
func (h storeHooks[V]) Back() policy.Node[string, V] {
	if h.c.tail == nil {
		return nil
	}
	return h.c.tail
}
func (h storeHooks[V]) Len() int { return h.c.len }
