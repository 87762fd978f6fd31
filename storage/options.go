package storage

import (
	"log"
	"time"
)

const (
	// CurrentVersion is the schema version stamped on every envelope.
	// Entries carrying any other version are discarded on read.
	CurrentVersion = "1.0.0"

	// DefaultPrefix namespaces every key the Manager owns.
	DefaultPrefix = "venuecache_"

	// DefaultCleanupInterval is how often Start runs PerformCleanup.
	DefaultCleanupInterval = 5 * time.Minute
)

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Metrics receives storage maintenance signals.
type Metrics interface {
	Cleanup(expired, corrupted int)
	Emergency(evicted int)
	Dropped()
}

// NoopMetrics is the default Metrics implementation.
type NoopMetrics struct{}

func (NoopMetrics) Cleanup(int, int) {}
func (NoopMetrics) Emergency(int)    {}
func (NoopMetrics) Dropped()         {}

var _ Metrics = NoopMetrics{}

// Options configures a Manager. Zero values are safe:
//   - empty Prefix   => DefaultPrefix
//   - empty Version  => CurrentVersion
//   - CleanupInterval <= 0 => DefaultCleanupInterval
//   - nil Logf       => log.Printf
type Options struct {
	Prefix          string
	Version         string
	CleanupInterval time.Duration

	Clock   Clock
	Metrics Metrics
	// Logf receives every swallowed failure (corruption, dropped writes).
	Logf func(format string, args ...any)
}

func (o *Options) applyDefaults() {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Version == "" {
		o.Version = CurrentVersion
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = DefaultCleanupInterval
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logf == nil {
		o.Logf = log.Printf
	}
}
