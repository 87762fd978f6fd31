package fetch

import "time"

// Defaults applied by NewQuery for zero-valued Options fields.
const (
	DefaultStaleTime  = 30 * time.Second
	DefaultRetryCount = 3
	DefaultRetryDelay = time.Second
)

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures a Query. Zero values are safe:
//   - TTL <= 0          => the cache's DefaultTTL
//   - StaleTime <= 0    => DefaultStaleTime, then clamped to the TTL
//   - RetryCount == 0   => DefaultRetryCount; negative disables retries
//   - RetryDelay <= 0   => DefaultRetryDelay
//   - nil Metrics       => NoopMetrics
//   - nil Logf          => log.Printf
type Options[V any] struct {
	// CacheKey identifies the data. Required.
	CacheKey string
	// Deps are folded into the effective key; changing them through
	// SetDeps refetches.
	Deps []any

	TTL time.Duration

	// Disabled turns every fetching operation into ErrDisabled.
	Disabled bool
	// RefetchOnMount makes Mount bypass a cached value.
	RefetchOnMount bool
	// RefetchOnWindowFocus makes Focus refetch stale data.
	RefetchOnWindowFocus bool
	// StaleTime is how long fetched data counts as fresh for Focus. It never
	// exceeds the TTL.
	StaleTime time.Duration

	RetryCount int
	RetryDelay time.Duration

	OnSuccess func(V)
	OnError   func(error)

	Metrics Metrics
	Logf    func(format string, args ...any)
	Clock   Clock
}
