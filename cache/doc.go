// Package cache provides a generic, string-keyed in-memory store with
// per-entry TTL, a bounded size, regexp invalidation, coalesced loading,
// and an optional persistent mirror.
//
// Design
//
//   - Concurrency: one mutex per store. Every check-then-act sequence
//     (lookup, expiry check, eviction, insert) runs under it, so callers
//     observe each operation atomically.
//
//   - Storage: a map[string]*node for lookups and an intrusive doubly linked
//     list for ordering. The default fifo policy keeps the list in creation
//     order, so the tail is always the oldest entry and is the one evicted
//     when a new key arrives at MaxSize. An overwrite refreshes the entry's
//     creation time and moves it to the front.
//
//   - TTL: an entry created at t0 with ttl T is readable while now-t0 <= T.
//     Get, Has, and Entry share this predicate and delete an expired entry
//     they find. Sweep (and the Start/Stop background loop) removes expired
//     entries proactively.
//
//   - Loading: GetOrSet and Load coalesce concurrent loads of the same key.
//     The in-flight record is dropped before waiters are released, so a call
//     made right after a load settles always starts a fresh one. A caller
//     whose context ends stops waiting; the load itself continues and still
//     populates the store.
//
//   - Persistence: with Options.Mirror (a *storage.Manager) every entry is
//     mirrored under "cache:<Namespace>:<key>" using Options.Codec. New
//     rehydrates the store from those copies, oldest first, removing any
//     that have expired or no longer decode. Mirror failures are logged and
//     never surface to callers.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size/Coalesced
//     signals. NoopMetrics is the default; metrics/prom exports them.
//
// Basic usage
//
//	c := cache.New(cache.Options[Order]{MaxSize: 50, DefaultTTL: 5 * time.Minute})
//	c.Set("order_venueA_1", o)
//	if o, ok := c.Get("order_venueA_1"); ok {
//	    _ = o
//	}
//	n, _ := c.InvalidatePattern("venueA")
//
// Coalesced loading
//
//	v, err := c.GetOrSet(ctx, "venue:42", func(ctx context.Context) (Venue, error) {
//	    return api.Venue(ctx, 42)
//	}, 0)
//
// Persistent store
//
//	m := storage.New(memory.New(0), storage.Options{})
//	c := cache.New(cache.Options[Venue]{Mirror: m, Namespace: "static"})
//	c.Start()
//	defer c.Close()
package cache
