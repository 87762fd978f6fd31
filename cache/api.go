package cache

import (
	"context"
	"time"
)

// Loader produces the value for a key on a cache miss.
type Loader[V any] func(ctx context.Context) (V, error)

// Cache is a string-keyed, typed in-memory store with per-entry TTL,
// bounded size, and coalesced loading.
// All methods are safe for concurrent use by multiple goroutines.
type Cache[V any] interface {
	// Set inserts or updates k→v with the store's DefaultTTL. An update
	// resets the entry's creation time. Inserting a new key into a full
	// store first evicts the oldest entry.
	Set(k string, v V)

	// SetWithTTL is Set with a per-entry TTL. A non-positive ttl selects
	// the DefaultTTL.
	SetWithTTL(k string, v V, ttl time.Duration)

	// Add inserts k→v only if no readable entry exists.
	// Returns false if the key is already present (no update is performed).
	Add(k string, v V) bool

	// Get returns the value for k and whether it was found. Expired entries
	// are deleted and reported as misses.
	Get(k string) (V, bool)

	// Has reports whether a readable entry exists. It never reorders the
	// entry; an expired entry it finds is deleted exactly as Get would.
	Has(k string) bool

	// Entry returns the value with its metadata, with Has semantics.
	Entry(k string) (Entry[V], bool)

	// Delete removes k (and its persistent mirror) and reports whether it
	// existed.
	Delete(k string) bool

	// Clear removes every entry and this store's mirrors.
	Clear()

	// InvalidatePattern deletes every key matching the regular expression
	// and returns how many were removed.
	InvalidatePattern(expr string) (int, error)

	// GetOrSet returns the cached value for k or runs fn once for all
	// concurrent callers, stores its result with ttl, and returns it.
	// Errors from fn are returned to every waiting caller; nothing is cached.
	GetOrSet(ctx context.Context, k string, fn Loader[V], ttl time.Duration) (V, error)

	// Load is GetOrSet without the cache-hit shortcut: fn always runs,
	// but concurrent loads of k are still coalesced.
	Load(ctx context.Context, k string, fn Loader[V], ttl time.Duration) (V, error)

	// Forget drops the in-flight load record for k so the next load starts
	// fresh instead of joining it.
	Forget(k string)

	// Sweep evicts every expired entry and returns how many were removed.
	Sweep() int

	// Start launches the periodic background sweep; Stop halts it.
	Start()
	Stop()

	// Len returns the number of resident entries (expired ones included
	// until they are swept or read).
	Len() int

	// Stats returns a snapshot of counters and limits.
	Stats() Stats

	// Close stops the sweep and marks the cache closed. Later writes are
	// ignored, reads miss, and loads return ErrClosed.
	Close() error
}

// Entry is a readable cache entry with its metadata.
type Entry[V any] struct {
	Value     V
	CreatedAt time.Time
	TTL       time.Duration
}

// Stats is a point-in-time snapshot of a store.
type Stats struct {
	Size       int
	MaxSize    int
	DefaultTTL time.Duration
	Hits       uint64
	Misses     uint64
	Evictions  uint64
}
