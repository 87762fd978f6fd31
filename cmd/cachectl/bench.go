package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/venuecache/caches"
	"github.com/IvanBrykalov/venuecache/config"
	"github.com/IvanBrykalov/venuecache/fetch"
)

var (
	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "number of worker goroutines",
		Value: 2 * runtime.GOMAXPROCS(0),
	}
	durationFlag = &cli.DurationFlag{
		Name:  "duration",
		Usage: "benchmark duration",
		Value: 5 * time.Second,
	}
	keysFlag = &cli.IntFlag{
		Name:  "keys",
		Usage: "keyspace size",
		Value: 1_000,
	}
	zipfSFlag = &cli.Float64Flag{
		Name:  "zipf_s",
		Usage: "Zipf s > 1 (skew)",
		Value: 1.1,
	}
	zipfVFlag = &cli.Float64Flag{
		Name:  "zipf_v",
		Usage: "Zipf v",
		Value: 1.0,
	}
	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Usage: "random seed (0 = time based)",
	}
	latencyFlag = &cli.DurationFlag{
		Name:  "latency",
		Usage: "simulated fetch latency",
		Value: 20 * time.Millisecond,
	}
	failFlag = &cli.IntFlag{
		Name:  "fail",
		Usage: "percentage [0..100] of fetch attempts that fail transiently",
	}
	ttlFlag = &cli.DurationFlag{
		Name:  "ttl",
		Usage: "cache ttl",
		Value: time.Second,
	}
	maxSizeFlag = &cli.IntFlag{
		Name:  "max-size",
		Usage: "cache capacity (entries)",
		Value: 100,
	}
	httpFlag = &cli.StringFlag{
		Name:  "http",
		Usage: "serve Prometheus metrics at addr (e.g. :8080); empty = disabled",
	}
)

var errTransient = errors.New("bench: transient failure")

var commandBench = &cli.Command{
	Name:  "bench",
	Usage: "run a synthetic fetch workload through the dedup layer",
	Description: `
Workers request Zipf-distributed keys through fetch queries backed by one
cache. The report compares logical requests with real fetch calls, which is
the work saved by caching and request coalescing.`,
	Flags: []cli.Flag{
		workersFlag, durationFlag, keysFlag, zipfSFlag, zipfVFlag, seedFlag,
		latencyFlag, failFlag, ttlFlag, maxSizeFlag, httpFlag,
	},
	Action: runBench,
}

func runBench(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	cfg.Fetch.RetryDelay = time.Millisecond

	opt := caches.Options{Logf: func(string, ...any) {}}
	if addr := ctx.String(httpFlag.Name); addr != "" {
		reg := prometheus.NewRegistry()
		opt.Registerer = reg
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			log.Printf("metrics: serving at %s", addr)
			log.Println(http.ListenAndServe(addr, mux))
		}()
	}

	f, err := caches.Open(cfg, opt)
	if err != nil {
		return err
	}
	defer f.Close()

	c, err := caches.New[string](f, "bench", config.Profile{
		TTL:     ctx.Duration(ttlFlag.Name),
		MaxSize: ctx.Int(maxSizeFlag.Name),
	}, nil)
	if err != nil {
		return err
	}
	f.Start()

	// ---- Snapshot flags for goroutines ----
	workersN := ctx.Int(workersFlag.Name)
	if workersN <= 0 {
		workersN = 1
	}
	keys := ctx.Int(keysFlag.Name)
	if keys < 1 {
		keys = 1
	}
	keysMax := uint64(keys - 1)
	zipfS, zipfV := ctx.Float64(zipfSFlag.Name), ctx.Float64(zipfVFlag.Name)
	if zipfS <= 1 || zipfV < 1 {
		return fmt.Errorf("bench: need zipf_s > 1 and zipf_v >= 1")
	}
	seedBase := ctx.Int64(seedFlag.Name)
	if seedBase == 0 {
		seedBase = time.Now().UnixNano()
	}
	latency := ctx.Duration(latencyFlag.Name)
	failPct := int32(ctx.Int(failFlag.Name))

	var requests, fetches, failures uint64
	runCtx, cancel := context.WithTimeout(ctx.Context, ctx.Duration(durationFlag.Name))
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(runCtx)
	for w := 0; w < workersN; w++ {
		id := w
		g.Go(func() error {
			// rand.Rand is not goroutine-safe; one per worker.
			r := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			zipf := rand.NewZipf(r, zipfS, zipfV, keysMax)
			fr := rand.New(rand.NewSource(seedBase - int64(id)))

			for gctx.Err() == nil {
				key := "venue:" + strconv.FormatUint(zipf.Uint64(), 10)
				fail := fr.Int31n(100) < failPct
				q := caches.Query(f, c, func(context.Context) (string, error) {
					atomic.AddUint64(&fetches, 1)
					time.Sleep(latency)
					if fail {
						return "", errTransient
					}
					return "menu of " + key, nil
				}, fetch.Options[string]{CacheKey: key})

				atomic.AddUint64(&requests, 1)
				if _, err := q.Fetch(gctx); err != nil && gctx.Err() == nil {
					atomic.AddUint64(&failures, 1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	// ---- Report ----
	st := c.Stats()
	reqN := atomic.LoadUint64(&requests)
	fetchN := atomic.LoadUint64(&fetches)
	saved := 0.0
	if reqN > 0 {
		saved = (1 - float64(fetchN)/float64(reqN)) * 100
	}

	table := tablewriter.NewWriter(ctx.App.Writer)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"workers", strconv.Itoa(workersN)})
	table.Append([]string{"duration", elapsed.Round(time.Millisecond).String()})
	table.Append([]string{"seed", strconv.FormatInt(seedBase, 10)})
	table.Append([]string{"requests", fmt.Sprintf("%d (%.0f/s)", reqN, float64(reqN)/elapsed.Seconds())})
	table.Append([]string{"fetch calls", strconv.FormatUint(fetchN, 10)})
	table.Append([]string{"saved", fmt.Sprintf("%.2f%%", saved)})
	table.Append([]string{"failed requests", strconv.FormatUint(atomic.LoadUint64(&failures), 10)})
	table.Append([]string{"hits / misses", fmt.Sprintf("%d / %d", st.Hits, st.Misses)})
	table.Append([]string{"evictions", strconv.FormatUint(st.Evictions, 10)})
	table.Append([]string{"resident", fmt.Sprintf("%d / %d", st.Size, st.MaxSize)})
	table.Render()
	return nil
}
