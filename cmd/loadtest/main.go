// Package main is a load generator for the keyed task engine.
//
// It submits N work items spread over K affinity keys, verifies that every
// key observed its items in submission order and reports throughput.
//
// Run with: go run ./cmd/loadtest
//
// Configure via environment variables:
//
//	N=200000        Total number of work items
//	K=1000          Number of distinct affinity keys
//	W=8             Worker pool size
//	CEILING=0       Admission ceiling; 0 runs an unbounded engine
//	WORK_US=0       Simulated work per item in microseconds
//	B=20000         Batch size for progress reporting
//	SOURCE=direct   "direct" submits in-process, "nats" publishes via NATS
//	NATS_URL=       NATS server for SOURCE=nats; empty starts a container
//	PROM_PORT=0     Serve Prometheus metrics on this port when > 0
//	DEBUG=false     Enable debug logging
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codewandler/keyexec-go/adapters/nats"
	promadapter "github.com/codewandler/keyexec-go/adapters/prometheus"
	"github.com/codewandler/keyexec-go/core/engine"
)

// =============================================================================
// Configuration
// =============================================================================

var (
	totalItems = getEnvInt("N", 200_000)
	numKeys    = getEnvInt("K", 1_000)
	numWorkers = getEnvInt("W", runtime.NumCPU())
	ceiling    = getEnvInt("CEILING", 0)
	workUS     = getEnvInt("WORK_US", 0)
	batchSize  = getEnvInt("B", 20_000)
	source     = getEnv("SOURCE", "direct")
	natsURL    = getEnv("NATS_URL", "")
	promPort   = getEnvInt("PROM_PORT", 0)
	debug      = getEnvBool("DEBUG", false)
)

// =============================================================================
// Main
// =============================================================================

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if err := run(ctx, log); err != nil {
		log.Error("loadtest failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	fmt.Println("=== Load Test Configuration ===")
	fmt.Printf("  Source:      %s\n", source)
	fmt.Printf("  Items:       %d\n", totalItems)
	fmt.Printf("  Keys:        %d\n", numKeys)
	fmt.Printf("  Workers:     %d\n", numWorkers)
	fmt.Printf("  Ceiling:     %d\n", ceiling)
	fmt.Printf("  Work:        %dus\n", workUS)
	fmt.Println()

	reg := prometheus.NewRegistry()
	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithMetrics(promadapter.NewEngineMetrics(reg)),
	}

	if promPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: fmt.Sprintf(":%d", promPort), Handler: mux}
		go func() {
			log.Info("prometheus metrics server starting", slog.Int("port", promPort))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("prometheus server error", slog.Any("error", err))
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	registry := engine.NewRegistry(opts...)
	defer registry.StopAll()

	var target engine.Submitter
	if ceiling > 0 {
		b, err := registry.CreateBounded("loadtest", numWorkers, ceiling)
		if err != nil {
			return err
		}
		target = b
	} else {
		e, err := registry.Create("loadtest", numWorkers)
		if err != nil {
			return err
		}
		target = e
	}

	c := newChecker(numKeys)

	log.Info("=== Starting Load Test ===")
	startAt := time.Now()

	var err error
	switch source {
	case "nats":
		err = runNATS(ctx, log, target, c)
	default:
		err = runDirect(ctx, target, c)
	}
	if err != nil {
		return err
	}

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if err := registry.StopAllWhenEmpty(drainCtx); err != nil {
		return fmt.Errorf("drain: %w", err)
	}

	printResults(time.Since(startAt), c)
	if v := c.violations.Load(); v > 0 {
		return fmt.Errorf("%d ordering violations", v)
	}
	return nil
}

// =============================================================================
// Sources
// =============================================================================

func runDirect(ctx context.Context, target engine.Submitter, c *checker) error {
	seqs := make([]int64, numKeys)
	lastTime := time.Now()

	for i := range totalItems {
		if err := ctx.Err(); err != nil {
			return err
		}

		key := i % numKeys
		seqs[key]++
		item := c.item(key, seqs[key])

		// a bounded engine refuses instead of blocking, so back off and retry
		for !target.Submit(key, item) {
			c.refused.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Microsecond):
			}
		}

		lastTime = progress(i, lastTime)
	}
	return nil
}

func runNATS(ctx context.Context, log *slog.Logger, target engine.Submitter, c *checker) error {
	url := natsURL
	if url == "" {
		log.Info("starting NATS container...")
		var (
			cleanup func()
			err     error
		)
		url, cleanup, err = startNATSContainer(ctx, log)
		if err != nil {
			return fmt.Errorf("start nats: %w", err)
		}
		defer cleanup()
	}

	connect := nats.ShareConnection(nats.ConnectURL(url))
	d, err := nats.NewDispatcher(nats.DispatcherConfig{
		Connect: connect,
		Log:     log,
		Subject: "loadtest.>",
		Engine:  target,
		Handler: func(_ context.Context, msg *natsgo.Msg) error {
			key, err := strconv.Atoi(msg.Header.Get(nats.DefaultKeyHeader))
			if err != nil {
				return err
			}
			seq, err := strconv.ParseInt(string(msg.Data), 10, 64)
			if err != nil {
				return err
			}
			c.item(key, seq)()
			return nil
		},
	})
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Start(ctx); err != nil {
		return err
	}

	nc, release, err := connect()
	if err != nil {
		return err
	}
	defer release()

	seqs := make([]int64, numKeys)
	lastTime := time.Now()
	for i := range totalItems {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := i % numKeys
		seqs[key]++

		msg := natsgo.NewMsg(fmt.Sprintf("loadtest.%d", key))
		msg.Header.Set(nats.DefaultKeyHeader, strconv.Itoa(key))
		msg.Data = strconv.AppendInt(nil, seqs[key], 10)
		if err := nc.PublishMsg(msg); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		lastTime = progress(i, lastTime)
	}
	if err := nc.Flush(); err != nil {
		return err
	}

	// wait until every published message reached the engine
	for {
		st := d.Stats()
		if int(st.Dispatched+st.Refused) >= totalItems {
			c.refused.Add(int64(st.Refused))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// =============================================================================
// Ordering checker
// =============================================================================

type checker struct {
	last       []atomic.Int64
	executed   atomic.Int64
	refused    atomic.Int64
	violations atomic.Int64
}

func newChecker(keys int) *checker {
	return &checker{last: make([]atomic.Int64, keys)}
}

// item returns a work item that asserts it runs right after seq-1 of key.
func (c *checker) item(key int, seq int64) engine.WorkItem {
	return func() {
		if workUS > 0 {
			time.Sleep(time.Duration(workUS) * time.Microsecond)
		}
		// refused NATS messages leave gaps, so only going backwards is a violation
		if prev := c.last[key].Swap(seq); prev >= seq {
			c.violations.Add(1)
		}
		c.executed.Add(1)
	}
}

// =============================================================================
// Reporting
// =============================================================================

func progress(i int, lastTime time.Time) time.Time {
	if batchSize <= 0 {
		return lastTime
	}
	if i > 0 && i%(batchSize/10+1) == 0 {
		fmt.Print(".")
	}
	if i == 0 || i%batchSize != 0 {
		return lastTime
	}
	mem := getMemUsage()
	elapsed := time.Since(lastTime)
	rate := float64(batchSize) / elapsed.Seconds()
	fmt.Printf(" | %6d items | %6d ms | %8.0f items/s | %d/%d MiB (heap/sys)\n",
		batchSize, elapsed.Milliseconds(), rate,
		mem.Alloc/1024/1024, mem.Sys/1024/1024)
	return time.Now()
}

func printResults(took time.Duration, c *checker) {
	fmt.Println()
	fmt.Println("=== Results ===")
	runtime.GC()

	fmt.Printf("  Total time:    %.3f seconds\n", took.Seconds())
	fmt.Printf("  Executed:      %d\n", c.executed.Load())
	fmt.Printf("  Refused:       %d\n", c.refused.Load())
	fmt.Printf("  Violations:    %d\n", c.violations.Load())
	fmt.Printf("  Avg rate:      %.0f items/s\n", float64(c.executed.Load())/took.Seconds())

	mem := getMemUsage()
	fmt.Printf("  Final memory:  %d MiB heap, %d MiB sys\n", mem.Alloc/1024/1024, mem.Sys/1024/1024)
}

// =============================================================================
// Helpers
// =============================================================================

func startNATSContainer(ctx context.Context, log *slog.Logger) (string, func(), error) {
	natsC, err := testcontainers.Run(
		ctx, "nats:latest",
		testcontainers.WithExposedPorts("4222/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("4222/tcp"),
			wait.ForLog("Server is ready"),
		),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start container: %w", err)
	}

	endpoint, err := natsC.PortEndpoint(ctx, "4222/tcp", "nats")
	if err != nil {
		_ = testcontainers.TerminateContainer(natsC)
		return "", nil, fmt.Errorf("get container endpoint: %w", err)
	}

	cleanup := func() {
		log.Info("terminating NATS container...")
		if err := testcontainers.TerminateContainer(natsC); err != nil {
			log.Error("failed to terminate container", slog.Any("error", err))
		}
	}
	return endpoint, cleanup, nil
}

type memUsage struct {
	Alloc uint64
	Sys   uint64
}

func getMemUsage() memUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return memUsage{Alloc: m.Alloc, Sys: m.Sys}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}
