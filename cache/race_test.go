package cache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// A mixed workload of concurrent Set/Get/SetWithTTL/Delete/Sweep on random
// keys. Should pass under `-race` without detector reports.
func TestRace_Basic(t *testing.T) {
	c := New(Options[[]byte]{MaxSize: 1_024, DefaultTTL: 50 * time.Millisecond})
	t.Cleanup(func() { _ = c.Close() })

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 5_000
	deadline := time.Now().Add(time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch n := r.Intn(100); {
				case n < 5:
					c.Delete(k)
				case n < 10:
					c.SetWithTTL(k, []byte("x"), time.Duration(10+r.Intn(20))*time.Millisecond)
				case n < 20:
					c.Set(k, []byte("x"))
				case n == 20:
					c.Sweep()
				case n == 21:
					_, _ = c.InvalidatePattern("^k:1")
				default:
					c.Get(k)
				}
			}
		}(w)
	}
	wg.Wait()

	if c.Len() > 1_024 {
		t.Fatalf("size bound violated: %d", c.Len())
	}
}

// One hundred goroutines call GetOrSet on the same key concurrently.
// The loader should run at most once (singleflight coalescing).
func TestRace_GetOrSet(t *testing.T) {
	var calls int64

	c := New(Options[string]{})
	t.Cleanup(func() { _ = c.Close() })

	load := func(context.Context) (string, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(2 * time.Millisecond) // simulate I/O
		return "v", nil
	}

	const goroutines = 100
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := c.GetOrSet(context.Background(), "same-key", load, 0)
			if err != nil {
				t.Errorf("GetOrSet error: %v", err)
				return
			}
			if v != "v" {
				t.Errorf("unexpected value: %q", v)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got > 1 {
		t.Fatalf("loader should run at most once, got %d", got)
	}
}
