package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"asynckv/internal/http"
	"asynckv/pkg/asyncdb"
	"asynckv/pkg/engine"
	"asynckv/pkg/metrics"
)

const closeTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := initConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	initLogger(&cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := metrics.NewRegistry()
	db, err := asyncdb.Open(cfg.DB.Path, asyncdb.Options{
		Engine: engine.Options{
			MemtableFlushBytes: cfg.DB.Memtable.FlushThresholdBytes,
			L0CompactThreshold: cfg.DB.Compaction.L0CompactThreshold,
			BloomFPRate:        cfg.DB.Compaction.BloomFPRate,
			SyncWrites:         cfg.DB.SyncWrites,
		},
		QueueCapacity: cfg.DB.Bridge.QueueCapacity,
		Collector:     registry,
	})
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DB.Path, "error", err)
		os.Exit(1)
	}

	server := http.NewServer(db, registry, strconv.Itoa(cfg.Server.Port))
	if err := server.Start(); err != nil {
		slog.Error("failed to start HTTP server", "error", err)
		os.Exit(1)
	}

	slog.Info("asynckv started", "path", cfg.DB.Path, "port", cfg.Server.Port)
	<-ctx.Done()
	slog.Info("shutting down")

	if err := server.Stop(); err != nil {
		slog.Error("failed to stop HTTP server", "error", err)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	defer closeCancel()
	if err := db.Close(closeCtx); err != nil {
		slog.Error("failed to close database", "error", err)
		os.Exit(1)
	}

	slog.Info("asynckv stopped")
}
