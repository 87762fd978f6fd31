package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/venuecache/policy/lru"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

// An entry is readable at exactly created+ttl and expired one tick later.
func TestCache_TTL_ExactInstant(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := New(Options[string]{Clock: clk})
	t.Cleanup(func() { _ = c.Close() })

	c.SetWithTTL("x", "v", time.Second)

	clk.add(500 * time.Millisecond)
	if v, ok := c.Get("x"); !ok || v != "v" {
		t.Fatalf("fresh read: want v, got %q ok=%v", v, ok)
	}
	clk.add(500 * time.Millisecond)
	if !c.Has("x") {
		t.Fatal("entry must be readable at exactly ttl")
	}
	if _, ok := c.Get("x"); !ok {
		t.Fatal("Get and Has must agree at exactly ttl")
	}
	clk.add(time.Nanosecond)
	if c.Has("x") {
		t.Fatal("entry must expire strictly after ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("Has must delete an expired entry, len=%d", c.Len())
	}
}

// The worked scenario: set at 0, hit at 500ms, miss at 1500ms.
func TestCache_TTL_Scenario(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := New(Options[map[string]int]{Clock: clk})
	t.Cleanup(func() { _ = c.Close() })

	c.SetWithTTL("x", map[string]int{"v": 1}, time.Second)
	clk.add(500 * time.Millisecond)
	if v, ok := c.Get("x"); !ok || v["v"] != 1 {
		t.Fatalf("t=500ms: got %v ok=%v", v, ok)
	}
	clk.add(time.Second)
	if _, ok := c.Get("x"); ok {
		t.Fatal("t=1500ms: want miss")
	}
	if c.Has("x") {
		t.Fatal("t=1500ms: Has must be false")
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := New(Options[int]{DefaultTTL: time.Minute, Clock: clk})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("a", 1)
	c.SetWithTTL("b", 2, -time.Second) // non-positive => default

	e, ok := c.Entry("b")
	if !ok || e.TTL != time.Minute {
		t.Fatalf("want default ttl, got %v ok=%v", e.TTL, ok)
	}
	clk.add(time.Minute + 1)
	if c.Has("a") || c.Has("b") {
		t.Fatal("both entries must expire with the default ttl")
	}
}

// Basic Add/Set/Get/Delete semantics.
func TestCache_BasicAddSetGetDelete(t *testing.T) {
	t.Parallel()

	c := New(Options[int]{MaxSize: 8})
	t.Cleanup(func() { _ = c.Close() })

	if !c.Add("a", 1) {
		t.Fatal("Add a=1 must be true")
	}
	if c.Add("a", 2) {
		t.Fatal("Add duplicate must be false")
	}

	c.Set("a", 11)
	if v, ok := c.Get("a"); !ok || v != 11 {
		t.Fatalf("Get a want 11, got %v ok=%v", v, ok)
	}

	if !c.Delete("a") {
		t.Fatal("Delete a must be true")
	}
	if c.Delete("a") {
		t.Fatal("second Delete must be false")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("a must be absent after Delete")
	}
}

// Inserting MaxSize+1 keys evicts exactly the oldest one, even when it was
// read recently.
func TestCache_EvictOldestByInsertion(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	var evicted []string
	c := New(Options[int]{
		MaxSize: 3,
		Clock:   clk,
		OnEvict: func(k string, _ int, r EvictReason) {
			if r == EvictCapacity {
				evicted = append(evicted, k)
			}
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	for i, k := range []string{"a", "b", "c"} {
		clk.add(time.Millisecond)
		c.Set(k, i)
	}
	c.Get("a") // reads never protect an entry from insertion-order eviction
	clk.add(time.Millisecond)
	c.Set("d", 3)

	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("want [a] evicted, got %v", evicted)
	}
	for _, k := range []string{"b", "c", "d"} {
		if !c.Has(k) {
			t.Fatalf("%s must remain", k)
		}
	}
	if st := c.Stats(); st.Size != 3 || st.Evictions != 1 || st.MaxSize != 3 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

// Overwriting refreshes the creation time, so the entry is no longer the
// oldest.
func TestCache_OverwriteRefreshesAge(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := New(Options[int]{MaxSize: 2, Clock: clk})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("a", 1)
	clk.add(time.Millisecond)
	c.Set("b", 2)
	clk.add(time.Millisecond)
	c.Set("a", 10)
	clk.add(time.Millisecond)
	c.Set("c", 3)

	if c.Has("b") {
		t.Fatal("b is now the oldest and must be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 10 {
		t.Fatalf("a must survive with new value, got %v ok=%v", v, ok)
	}
}

// Overwriting a key in a full store never evicts.
func TestCache_OverwriteWhenFull(t *testing.T) {
	t.Parallel()

	c := New(Options[int]{MaxSize: 2})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("b", 3)
	if c.Len() != 2 || !c.Has("a") {
		t.Fatal("overwrite must not evict")
	}
}

// The opt-in lru policy promotes on read.
func TestCache_LRUPolicy(t *testing.T) {
	t.Parallel()

	c := New(Options[int]{MaxSize: 2, Policy: lru.New[string, int]()})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if c.Has("b") {
		t.Fatal("b must be evicted under lru")
	}
	if !c.Has("a") {
		t.Fatal("a must survive (promoted)")
	}
}

func TestCache_InvalidatePattern(t *testing.T) {
	t.Parallel()

	c := New(Options[int]{})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("order_venueA_1", 1)
	c.Set("order_venueB_1", 2)
	c.Set("table_venueA_1", 3)

	n, err := c.InvalidatePattern("venueA")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("want 2 removed, got %d", n)
	}
	if c.Has("order_venueA_1") || c.Has("table_venueA_1") {
		t.Fatal("venueA keys must be gone")
	}
	if !c.Has("order_venueB_1") {
		t.Fatal("order_venueB_1 must remain")
	}
}

func TestCache_InvalidatePattern_BadExpr(t *testing.T) {
	t.Parallel()

	c := New(Options[int]{})
	t.Cleanup(func() { _ = c.Close() })
	c.Set("a", 1)

	if _, err := c.InvalidatePattern("("); err == nil {
		t.Fatal("invalid expression must fail")
	}
	if !c.Has("a") {
		t.Fatal("nothing may be removed on error")
	}
}

func TestCache_Sweep(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	var reasons []EvictReason
	c := New(Options[int]{
		Clock:   clk,
		OnEvict: func(_ string, _ int, r EvictReason) { reasons = append(reasons, r) },
	})
	t.Cleanup(func() { _ = c.Close() })

	c.SetWithTTL("short1", 1, time.Second)
	c.SetWithTTL("short2", 2, time.Second)
	c.SetWithTTL("long", 3, time.Hour)
	clk.add(2 * time.Second)

	if n := c.Sweep(); n != 2 {
		t.Fatalf("want 2 swept, got %d", n)
	}
	if c.Len() != 1 {
		t.Fatalf("want 1 left, got %d", c.Len())
	}
	for _, r := range reasons {
		if r != EvictTTL {
			t.Fatalf("want ttl reason, got %v", r)
		}
	}
}

// The background loop sweeps on its own once started.
func TestCache_StartStop(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := New(Options[int]{Clock: clk, SweepInterval: time.Millisecond})
	t.Cleanup(func() { _ = c.Close() })

	c.SetWithTTL("x", 1, time.Second)
	clk.add(2 * time.Second)
	c.Start()
	c.Start()

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	c.Stop()
	c.Stop()
	if c.Len() != 0 {
		t.Fatal("background sweep did not remove the expired entry")
	}
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c := New(Options[int]{})
	t.Cleanup(func() { _ = c.Close() })

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprint(i), i)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("want empty, got %d", c.Len())
	}
	c.Set("again", 1)
	if !c.Has("again") {
		t.Fatal("store must be usable after Clear")
	}
}

func TestCache_Stats_HitsMisses(t *testing.T) {
	t.Parallel()

	c := New(Options[int]{MaxSize: 7, DefaultTTL: time.Minute})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("b")
	c.Has("a") // no metrics

	st := c.Stats()
	if st.Hits != 2 || st.Misses != 1 {
		t.Fatalf("want 2 hits/1 miss, got %+v", st)
	}
	if st.MaxSize != 7 || st.DefaultTTL != time.Minute || st.Size != 1 {
		t.Fatalf("unexpected limits %+v", st)
	}
}

// Concurrent GetOrSet calls for the same key run the loader once and all
// observe the same value; subsequent calls are cache hits.
func TestCache_GetOrSet_Singleflight(t *testing.T) {
	var calls int64

	c := New(Options[string]{MaxSize: 64})
	t.Cleanup(func() { _ = c.Close() })

	release := make(chan struct{})
	load := func(context.Context) (string, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return "v:k", nil
	}

	const N = 64
	var g errgroup.Group
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var started sync32
	for i := 0; i < N; i++ {
		g.Go(func() error {
			started.inc()
			v, err := c.GetOrSet(ctx, "k", load, 0)
			if err != nil {
				return err
			}
			if v != "v:k" {
				return fmt.Errorf("got %q", v)
			}
			return nil
		})
	}
	started.wait(N)
	time.Sleep(10 * time.Millisecond) // let every caller reach the flight
	close(release)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("loader must run exactly once, got %d", got)
	}

	v, err := c.GetOrSet(context.Background(), "k", func(context.Context) (string, error) {
		t.Fatal("cache hit expected")
		return "", nil
	}, 0)
	if err != nil || v != "v:k" {
		t.Fatalf("second GetOrSet failed: v=%q err=%v", v, err)
	}
}

func TestCache_GetOrSet_ErrorNotCached(t *testing.T) {
	t.Parallel()

	c := New(Options[int]{})
	t.Cleanup(func() { _ = c.Close() })

	boom := errors.New("boom")
	_, err := c.GetOrSet(context.Background(), "k", func(context.Context) (int, error) {
		return 0, boom
	}, 0)
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if c.Has("k") {
		t.Fatal("failed loads must not be cached")
	}

	v, err := c.GetOrSet(context.Background(), "k", func(context.Context) (int, error) {
		return 7, nil
	}, 0)
	if err != nil || v != 7 {
		t.Fatalf("next load must start fresh: v=%d err=%v", v, err)
	}
}

// Load skips the hit shortcut but stores its result.
func TestCache_Load_BypassesHit(t *testing.T) {
	t.Parallel()

	c := New(Options[int]{})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("k", 1)
	v, err := c.Load(context.Background(), "k", func(context.Context) (int, error) { return 2, nil }, 0)
	if err != nil || v != 2 {
		t.Fatalf("v=%d err=%v", v, err)
	}
	if got, _ := c.Get("k"); got != 2 {
		t.Fatalf("Load must store its result, got %d", got)
	}
}

// A caller that gives up does not cancel the load; the store is still
// populated.
func TestCache_GetOrSet_CallerCancel(t *testing.T) {
	t.Parallel()

	c := New(Options[int]{})
	t.Cleanup(func() { _ = c.Close() })

	release := make(chan struct{})
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(done)
		_, err := c.GetOrSet(ctx, "k", func(ctx context.Context) (int, error) {
			<-release
			return 5, ctx.Err()
		}, 0)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("want context.Canceled, got %v", err)
		}
	}()
	cancel()
	<-done
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for !c.Has("k") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if v, ok := c.Get("k"); !ok || v != 5 {
		t.Fatalf("detached load must populate the store, got %d ok=%v", v, ok)
	}
}

func TestCache_Closed(t *testing.T) {
	t.Parallel()

	c := New(Options[int]{})
	c.Set("a", 1)
	_ = c.Close()

	if _, ok := c.Get("a"); ok {
		t.Fatal("reads after Close must miss")
	}
	c.Set("b", 2)
	if _, err := c.GetOrSet(context.Background(), "b", func(context.Context) (int, error) { return 1, nil }, 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}

type countingMetrics struct {
	NoopMetrics
	hits, misses, coalesced atomic.Int64
}

func (m *countingMetrics) Hit()       { m.hits.Add(1) }
func (m *countingMetrics) Miss()      { m.misses.Add(1) }
func (m *countingMetrics) Coalesced() { m.coalesced.Add(1) }

func TestCache_MetricsCoalesced(t *testing.T) {
	m := &countingMetrics{}
	c := New(Options[int]{Metrics: m})
	t.Cleanup(func() { _ = c.Close() })

	release := make(chan struct{})
	var g errgroup.Group
	var started sync32
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			started.inc()
			_, err := c.Load(context.Background(), "k", func(context.Context) (int, error) {
				<-release
				return 1, nil
			}, 0)
			return err
		})
	}
	started.wait(4)
	time.Sleep(10 * time.Millisecond)
	close(release)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := m.coalesced.Load(); got != 3 {
		t.Fatalf("want 3 coalesced joins, got %d", got)
	}
}

// sync32 counts goroutines that reached a point.
type sync32 struct{ n atomic.Int32 }

func (s *sync32) inc() { s.n.Add(1) }
func (s *sync32) wait(n int32) {
	for s.n.Load() < n {
		time.Sleep(time.Millisecond)
	}
}
