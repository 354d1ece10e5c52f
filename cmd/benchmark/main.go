package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"

	"asynckv/pkg/asyncdb"
	"asynckv/pkg/engine"
)

// Load generator that drives the bridge directly, bypassing HTTP, so the
// numbers reflect the mailbox and store rather than the network stack.
func main() {
	dir := flag.String("dir", "", "data directory (default: a temp dir)")
	ops := flag.Int("ops", 10000, "operations per worker")
	workers := flag.Int("workers", 8, "concurrent workers")
	queue := flag.Int("queue", asyncdb.DefaultQueueCapacity, "mailbox capacity")
	flag.Parse()

	path := *dir
	if path == "" {
		tmp, err := os.MkdirTemp("", "asynckv-bench-*")
		if err != nil {
			slog.Error("failed to create temp dir", "error", err)
			os.Exit(1)
		}
		defer os.RemoveAll(tmp)
		path = tmp
	}

	db, err := asyncdb.Open(path, asyncdb.Options{
		Engine:        engine.Options{},
		QueueCapacity: *queue,
	})
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}

	fmt.Printf("=== asynckv benchmark ===\n")
	fmt.Printf("dir=%s workers=%d ops/worker=%d queue=%d\n\n", path, *workers, *ops, *queue)

	runPhase("put", *workers, *ops, func(ctx context.Context, worker, i int) error {
		key := []byte(fmt.Sprintf("w%03d-key%08d", worker, i))
		value := []byte(fmt.Sprintf("value-%d-%d", worker, i))
		return db.Put(ctx, key, value)
	})

	runPhase("get", *workers, *ops, func(ctx context.Context, worker, i int) error {
		key := []byte(fmt.Sprintf("w%03d-key%08d", worker, i))
		_, _, err := db.Get(ctx, key)
		return err
	})

	runPhase("delete", *workers, *ops, func(ctx context.Context, worker, i int) error {
		key := []byte(fmt.Sprintf("w%03d-key%08d", worker, i))
		return db.Delete(ctx, key)
	})

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Close(closeCtx); err != nil {
		slog.Error("failed to close database", "error", err)
		os.Exit(1)
	}
}

func runPhase(name string, workers, ops int, op func(ctx context.Context, worker, i int) error) {
	avg := movingaverage.New(1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	var failed int64
	var mu sync.Mutex

	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < ops; i++ {
				opStart := time.Now()
				if err := op(ctx, worker, i); err != nil {
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}
				latency := float64(time.Since(opStart).Microseconds())
				mu.Lock()
				avg.Add(latency)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	total := workers * ops
	fmt.Printf("%-8s %8d ops in %8v  %10.0f ops/s  avg latency %8.1fus  failed %d\n",
		name, total, elapsed.Round(time.Millisecond),
		float64(total)/elapsed.Seconds(), avg.Avg(), failed)
}
