// Package config loads venuecache settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "VENUECACHE_"

// Storage backends understood by caches.OpenBackend.
const (
	BackendMemory  = "memory"
	BackendSQLite  = "sqlite"
	BackendLevelDB = "leveldb"
)

// Profile sizes one cache.
type Profile struct {
	TTL        time.Duration `env:"TTL"`
	MaxSize    int           `env:"MAX_SIZE"`
	Persistent bool          `env:"PERSISTENT"`
}

// Storage selects and sizes the persistent backend.
type Storage struct {
	Backend         string        `env:"BACKEND"          envDefault:"memory"`
	Path            string        `env:"PATH"`
	Prefix          string        `env:"PREFIX"           envDefault:"venuecache_"`
	Version         string        `env:"VERSION"          envDefault:"1.0.0"`
	QuotaBytes      int64         `env:"QUOTA_BYTES"      envDefault:"5242880"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
}

// Fetch holds the defaults for fetch.Query. RetryCount is the number of
// retries after the first attempt; 0 or a negative value disables them.
type Fetch struct {
	StaleTime  time.Duration `env:"STALE_TIME"  envDefault:"30s"`
	RetryCount int           `env:"RETRY_COUNT" envDefault:"3"`
	RetryDelay time.Duration `env:"RETRY_DELAY" envDefault:"1s"`
}

// Config is the complete runtime configuration.
type Config struct {
	// Cache profiles. Defaults come from Default, not from tags, because
	// each profile has its own.
	API    Profile `envPrefix:"API_"`
	User   Profile `envPrefix:"USER_"`
	Static Profile `envPrefix:"STATIC_"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`

	Storage Storage `envPrefix:"STORAGE_"`
	Fetch   Fetch   `envPrefix:"FETCH_"`

	// MetricsAddr serves /metrics when non-empty.
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Default returns the built-in profile sizes.
func Default() Config {
	return Config{
		API:    Profile{TTL: 5 * time.Minute, MaxSize: 50},
		User:   Profile{TTL: 10 * time.Minute, MaxSize: 10, Persistent: true},
		Static: Profile{TTL: 30 * time.Minute, MaxSize: 100, Persistent: true},
	}
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads the configuration from environ; nil means the process
// environment.
func LoadFrom(environ map[string]string) (Config, error) {
	cfg := Default()
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	for name, p := range map[string]Profile{"api": c.API, "user": c.User, "static": c.Static} {
		if p.TTL <= 0 {
			errs = append(errs, fmt.Errorf("config: %s ttl must be positive", name))
		}
		if p.MaxSize <= 0 {
			errs = append(errs, fmt.Errorf("config: %s max size must be positive", name))
		}
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite, BackendLevelDB:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("config: storage backend %q needs a path", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend))
	}
	if c.Fetch.RetryDelay <= 0 {
		errs = append(errs, errors.New("config: fetch retry delay must be positive"))
	}
	return errors.Join(errs...)
}
