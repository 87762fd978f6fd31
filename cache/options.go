package cache

import (
	"time"

	"github.com/IvanBrykalov/venuecache/codec"
	"github.com/IvanBrykalov/venuecache/policy"
	"github.com/IvanBrykalov/venuecache/storage"
)

// Defaults applied by New for zero-valued Options fields.
const (
	DefaultMaxSize       = 100
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = time.Minute
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictCapacity: the oldest entry made room for a new key.
	EvictCapacity EvictReason = iota
	// EvictTTL: expired, found by a read or by the sweep.
	EvictTTL
	// EvictExplicit: Delete, Clear, or InvalidatePattern.
	EvictExplicit
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictTTL:
		return "ttl"
	default:
		return "explicit"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int)
	// Coalesced is called when a load joins one already in flight.
	Coalesced()
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Mirror is the persistent copy of a store. *storage.Manager implements it.
type Mirror interface {
	PutEntry(key string, data []byte, createdAt time.Time, ttl time.Duration) bool
	Entry(key string) (storage.Entry, bool)
	RemoveItem(key string)
	RemovePrefix(prefix string) int
	KeysWithPrefix(prefix string) []string
}

var _ Mirror = (*storage.Manager)(nil)

// Options configures the cache behavior. Zero values are safe;
// sane defaults are applied in New():
//   - MaxSize <= 0       => DefaultMaxSize
//   - DefaultTTL <= 0    => DefaultTTL
//   - SweepInterval <= 0 => DefaultSweepInterval
//   - nil Policy         => fifo (evict by creation time)
//   - nil Codec          => codec.JSON
//   - nil Metrics        => NoopMetrics
type Options[V any] struct {
	// MaxSize bounds the number of resident entries.
	MaxSize int

	// DefaultTTL applies to Set and to SetWithTTL/GetOrSet with ttl <= 0.
	DefaultTTL time.Duration

	// SweepInterval is the period of the background sweep started by Start.
	SweepInterval time.Duration

	// Policy orders eviction victims; nil => fifo.
	Policy policy.Policy[string, V]

	// Persistence. When Mirror is set every entry is copied under
	// "cache:<Namespace>:<key>" and the store is rehydrated from those
	// copies in New. Namespace must be non-empty and must not contain ':'.
	Mirror    Mirror
	Namespace string
	Codec     codec.Codec[V]

	// Observability
	// OnEvict is called under the store lock; keep callbacks lightweight.
	OnEvict func(k string, v V, reason EvictReason)
	Metrics Metrics
	// Logf receives swallowed persistence failures. Nil => log.Printf.
	Logf func(format string, args ...any)

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}
