package caches

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/venuecache/config"
	"github.com/IvanBrykalov/venuecache/fetch"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64 { return f.t }

func quiet(string, ...any) {}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(map[string]string{})
	require.NoError(t, err)
	return cfg
}

type order struct {
	ID    string `json:"id"`
	Table int    `json:"table"`
}

func TestFactory_Profiles(t *testing.T) {
	f, err := Open(testConfig(t), Options{Logf: quiet})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	api, err := API[order](f)
	require.NoError(t, err)
	user, err := User[order](f)
	require.NoError(t, err)
	static, err := Static[[]string](f)
	require.NoError(t, err)

	assert.Equal(t, 50, api.Stats().MaxSize)
	assert.Equal(t, 5*time.Minute, api.Stats().DefaultTTL)
	assert.Equal(t, 10, user.Stats().MaxSize)
	assert.Equal(t, 10*time.Minute, user.Stats().DefaultTTL)
	assert.Equal(t, 30*time.Minute, static.Stats().DefaultTTL)

	api.Set("o1", order{ID: "o1"})
	user.Set("o1", order{ID: "o1"})
	static.Set("menu", []string{"soup"})

	assert.ElementsMatch(t,
		[]string{"cache:user:o1", "cache:static:menu"},
		f.Storage().KeysWithPrefix("cache:"),
		"only persistent profiles are mirrored")

	_, err = API[order](f)
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = New[int](f, "bad:name", config.Profile{TTL: time.Second, MaxSize: 1}, nil)
	assert.Error(t, err)
}

// A persistent cache survives a restart of the whole factory.
func TestFactory_ReopenRehydrates(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendLevelDB} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Storage.Backend = backend
			cfg.Storage.Path = filepath.Join(t.TempDir(), "kv")

			f1, err := Open(cfg, Options{Logf: quiet})
			require.NoError(t, err)
			u1, err := User[order](f1)
			require.NoError(t, err)
			u1.Set("o1", order{ID: "o1", Table: 4})
			f1.Storage().SetToken("tok")
			require.NoError(t, f1.Close())

			f2, err := Open(cfg, Options{Logf: quiet})
			require.NoError(t, err)
			t.Cleanup(func() { _ = f2.Close() })
			u2, err := User[order](f2)
			require.NoError(t, err)

			got, ok := u2.Get("o1")
			require.True(t, ok)
			assert.Equal(t, order{ID: "o1", Table: 4}, got)
			tok, ok := f2.Storage().Token()
			assert.True(t, ok)
			assert.Equal(t, "tok", tok)
		})
	}
}

func TestFactory_QueryDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fetch.StaleTime = 10 * time.Second
	cfg.Fetch.RetryCount = -1
	reg := prometheus.NewRegistry()
	clk := &fakeClock{t: 1}

	f, err := Open(cfg, Options{Registerer: reg, Logf: quiet, Clock: clk})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	api, err := API[int](f)
	require.NoError(t, err)

	calls := 0
	q := Query(f, api, func(context.Context) (int, error) {
		calls++
		return 0, &fetch.StatusError{Code: 500}
	}, fetch.Options[int]{CacheKey: "tables"})

	assert.Equal(t, 10*time.Second, q.StaleTime())
	_, err = q.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls, "configured retry count applies")

	n, err := testutil.GatherAndCount(reg, "venuecache_fetch_attempts_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = testutil.GatherAndCount(reg, "venuecache_cache_misses_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// RETRY_COUNT=0 from the environment turns retries off.
func TestFactory_QueryZeroRetryCount(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"VENUECACHE_FETCH_RETRY_COUNT": "0",
		"VENUECACHE_FETCH_RETRY_DELAY": "1ms",
	})
	require.NoError(t, err)
	require.Equal(t, 0, cfg.Fetch.RetryCount)

	f, err := Open(cfg, Options{Logf: quiet})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	api, err := API[int](f)
	require.NoError(t, err)

	calls := 0
	q := Query(f, api, func(context.Context) (int, error) {
		calls++
		return 0, &fetch.StatusError{Code: 503}
	}, fetch.Options[int]{CacheKey: "venues"})

	_, err = q.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	// An explicit per-query count still wins over the configuration.
	calls = 0
	q = Query(f, api, func(context.Context) (int, error) {
		calls++
		return 0, &fetch.StatusError{Code: 503}
	}, fetch.Options[int]{CacheKey: "tables", RetryCount: 2})

	_, err = q.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestFactory_Lifecycle(t *testing.T) {
	cfg := testConfig(t)
	cfg.SweepInterval = time.Millisecond
	f, err := Open(cfg, Options{Logf: quiet})
	require.NoError(t, err)

	api, err := API[int](f)
	require.NoError(t, err)
	f.Start()
	f.Start()

	late, err := User[int](f)
	require.NoError(t, err)
	late.SetWithTTL("gone", 1, time.Millisecond)
	assert.Eventually(t, func() bool { return late.Len() == 0 }, 2*time.Second, time.Millisecond,
		"caches built after Start are swept too")

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = api.GetOrSet(context.Background(), "k", func(context.Context) (int, error) { return 1, nil }, 0)
	assert.Error(t, err)
	_, err = Static[int](f)
	assert.Error(t, err)
}

func TestOpenBackend_Unknown(t *testing.T) {
	_, _, err := OpenBackend(config.Storage{Backend: "redis"})
	assert.ErrorContains(t, err, "unknown storage backend")
}
