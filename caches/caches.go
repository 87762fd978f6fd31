// Package caches builds the application's caches from a config.Config and
// owns their lifecycles. It replaces process-wide cache singletons: build
// one Factory at startup and pass the caches it returns to their users.
package caches

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/venuecache/cache"
	"github.com/IvanBrykalov/venuecache/codec"
	"github.com/IvanBrykalov/venuecache/config"
	"github.com/IvanBrykalov/venuecache/fetch"
	"github.com/IvanBrykalov/venuecache/metrics/prom"
	"github.com/IvanBrykalov/venuecache/storage"
	"github.com/IvanBrykalov/venuecache/storage/leveldb"
	"github.com/IvanBrykalov/venuecache/storage/memory"
	"github.com/IvanBrykalov/venuecache/storage/sqlite"
)

// Profile names used by API, User, and Static. They double as the mirror
// namespace of persistent caches.
const (
	ProfileAPI    = "api"
	ProfileUser   = "user"
	ProfileStatic = "static"
)

// ErrDuplicate is returned when a cache name is used twice.
var ErrDuplicate = errors.New("caches: duplicate cache name")

// Options tunes a Factory. Zero values are safe.
type Options struct {
	// Registerer receives every metric; nil disables export.
	Registerer prometheus.Registerer
	// MetricsNamespace prefixes metric names; empty => "venuecache".
	MetricsNamespace string
	// Logf receives swallowed failures; nil => log.Printf.
	Logf func(format string, args ...any)
	// Clock is shared by the store, every cache, and every query.
	Clock interface{ NowUnixNano() int64 }
}

type lifecycle interface {
	Start()
	Stop()
	Close() error
}

// Factory owns the persistent store and the caches built on it.
type Factory struct {
	cfg config.Config
	opt Options

	backend io.Closer
	mgr     *storage.Manager
	fetchM  fetch.Metrics

	mu      sync.Mutex
	names   map[string]bool
	owned   []lifecycle
	started bool
	closed  bool
}

// Open opens the configured backend and wraps it in a storage.Manager.
func Open(cfg config.Config, opt Options) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opt.Logf == nil {
		opt.Logf = log.Printf
	}
	if opt.MetricsNamespace == "" {
		opt.MetricsNamespace = "venuecache"
	}

	b, closer, err := OpenBackend(cfg.Storage)
	if err != nil {
		return nil, err
	}

	sopt := storage.Options{
		Prefix:          cfg.Storage.Prefix,
		Version:         cfg.Storage.Version,
		CleanupInterval: cfg.Storage.CleanupInterval,
		Clock:           opt.Clock,
		Logf:            opt.Logf,
	}
	f := &Factory{
		cfg:     cfg,
		opt:     opt,
		backend: closer,
		fetchM:  fetch.NoopMetrics{},
		names:   make(map[string]bool),
	}
	if opt.Registerer != nil {
		sopt.Metrics = prom.NewStorage(opt.Registerer, opt.MetricsNamespace, nil)
		f.fetchM = prom.NewFetch(opt.Registerer, opt.MetricsNamespace, nil)
	}
	f.mgr = storage.New(b, sopt)
	return f, nil
}

// OpenBackend opens the backend named by sc. The returned Closer releases
// it.
func OpenBackend(sc config.Storage) (storage.Backend, io.Closer, error) {
	switch sc.Backend {
	case config.BackendMemory, "":
		return memory.New(sc.QuotaBytes), nopCloser{}, nil
	case config.BackendSQLite:
		s, err := sqlite.Open(sc.Path, sc.QuotaBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("caches: %w", err)
		}
		return s, s, nil
	case config.BackendLevelDB:
		s, err := leveldb.Open(sc.Path, sc.QuotaBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("caches: %w", err)
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("caches: unknown storage backend %q", sc.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Config returns the configuration the factory was opened with.
func (f *Factory) Config() config.Config { return f.cfg }

// Storage returns the shared persistent store (auth data, settings, and
// cache mirrors).
func (f *Factory) Storage() *storage.Manager { return f.mgr }

// New builds a cache sized by p. Persistent profiles mirror into Storage
// under name. A nil codec selects JSON.
func New[V any](f *Factory, name string, p config.Profile, c codec.Codec[V]) (cache.Cache[V], error) {
	if name == "" || strings.Contains(name, ":") {
		return nil, fmt.Errorf("caches: invalid cache name %q", name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, cache.ErrClosed
	}
	if f.names[name] {
		return nil, fmt.Errorf("%w: %q", ErrDuplicate, name)
	}

	opt := cache.Options[V]{
		MaxSize:       p.MaxSize,
		DefaultTTL:    p.TTL,
		SweepInterval: f.cfg.SweepInterval,
		Namespace:     name,
		Codec:         c,
		Logf:          f.opt.Logf,
		Clock:         f.opt.Clock,
	}
	if p.Persistent {
		opt.Mirror = f.mgr
	}
	if f.opt.Registerer != nil {
		opt.Metrics = prom.New(f.opt.Registerer, f.opt.MetricsNamespace, "cache",
			prometheus.Labels{"cache": name})
	}

	cc := cache.New(opt)
	f.names[name] = true
	f.owned = append(f.owned, cc)
	if f.started {
		cc.Start()
	}
	return cc, nil
}

// API builds the short-lived, in-memory API response cache.
func API[V any](f *Factory) (cache.Cache[V], error) {
	return New[V](f, ProfileAPI, f.cfg.API, nil)
}

// User builds the persistent per-user data cache.
func User[V any](f *Factory) (cache.Cache[V], error) {
	return New[V](f, ProfileUser, f.cfg.User, nil)
}

// Static builds the persistent reference-data cache.
func Static[V any](f *Factory) (cache.Cache[V], error) {
	return New[V](f, ProfileStatic, f.cfg.Static, nil)
}

// Query builds a fetch.Query over c. Zero-valued fetch options take the
// configured defaults and the factory's metrics, logger and clock. The
// configured retry count is taken literally: 0 disables retries.
func Query[V any](f *Factory, c cache.Cache[V], fn fetch.Func[V], opt fetch.Options[V]) *fetch.Query[V] {
	if opt.StaleTime <= 0 {
		opt.StaleTime = f.cfg.Fetch.StaleTime
	}
	if opt.RetryCount == 0 {
		opt.RetryCount = f.cfg.Fetch.RetryCount
		// A configured zero means no retries, not the fetch package default.
		if opt.RetryCount == 0 {
			opt.RetryCount = -1
		}
	}
	if opt.RetryDelay <= 0 {
		opt.RetryDelay = f.cfg.Fetch.RetryDelay
	}
	if opt.Metrics == nil {
		opt.Metrics = f.fetchM
	}
	if opt.Logf == nil {
		opt.Logf = f.opt.Logf
	}
	if opt.Clock == nil {
		opt.Clock = f.opt.Clock
	}
	return fetch.NewQuery(c, fn, opt)
}

// Start runs the storage cleanup loop and every cache sweep. Caches built
// afterwards start immediately.
func (f *Factory) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.closed {
		return
	}
	f.started = true
	f.mgr.Start()
	for _, c := range f.owned {
		c.Start()
	}
}

// Stop halts every background loop started by Start.
func (f *Factory) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return
	}
	f.started = false
	for _, c := range f.owned {
		c.Stop()
	}
	f.mgr.Stop()
}

// Close stops everything, closes the caches, and releases the backend.
// Persisted data stays for the next Open.
func (f *Factory) Close() error {
	f.Stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	var errs []error
	for _, c := range f.owned {
		errs = append(errs, c.Close())
	}
	errs = append(errs, f.backend.Close())
	return errors.Join(errs...)
}
