// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// adserved is the campaign delivery daemon: it owns the durable campaign
// store, the in-memory delivery index, the background delta flusher, and the
// HTTP serve surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adxyz/adserve/admission"
	"github.com/adxyz/adserve/api"
	"github.com/adxyz/adserve/cache"
	"github.com/adxyz/adserve/engine"
	"github.com/adxyz/adserve/flush"
	"github.com/adxyz/adserve/indexer"
	"github.com/adxyz/adserve/internal/config"
	"github.com/adxyz/adserve/metacache"
	"github.com/adxyz/adserve/pkg/log"
	"github.com/adxyz/adserve/pkg/metric"
	"github.com/adxyz/adserve/store"
)

var (
	port     = flag.Int("port", 0, "HTTP port (overrides ADSERVE_PORT)")
	dbPath   = flag.String("db", "", "SQLite database path (overrides ADSERVE_DB_PATH)")
	logLevel = flag.String("log-level", "", "Log level (overrides ADSERVE_LOG_LEVEL)")

	Version = "dev"
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := log.NewWithLevel(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("adserved starting", "version", Version, "port", cfg.Port, "db", cfg.DBPath)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("adserved failed", "error", err)
	}
}

func run(cfg config.Config, logger log.Logger) error {
	metrics := metric.New()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	cs := cache.New(logger)

	meta, err := metacache.New(st, cfg.MetaEntries, cfg.MetaTTL, logger)
	if err != nil {
		return fmt.Errorf("metadata cache: %w", err)
	}
	defer meta.Close()

	neg, err := admission.NewNegative(cfg.MemoEntries, cfg.NegativeTTL)
	if err != nil {
		return fmt.Errorf("negative memo: %w", err)
	}
	defer neg.Close()

	pos, err := admission.NewPositive(cfg.MemoEntries, cfg.PositiveTTL)
	if err != nil {
		return fmt.Errorf("positive memo: %w", err)
	}
	defer pos.Close()

	bulkhead := admission.NewBulkhead(cfg.BulkheadPermits)

	ix := indexer.New(cs, st, meta, metrics, logger, indexer.Config{
		TopLimitPerKey: cfg.TopLimitPerKey,
		SliceSize:      cfg.SliceSize,
		KeyTTL:         cfg.KeyTTL,
		EmptyKeyTTL:    cfg.EmptyKeyTTL,
		BuildLockLease: cfg.BuildLockLease,
	})

	eng := engine.New(cs, st, meta, ix, neg, pos, bulkhead, metrics, logger, engine.Config{
		FallbackEnabled:     cfg.FallbackEnabled,
		FallbackTimeout:     cfg.FallbackTimeout,
		FallbackPageSize:    cfg.FallbackPageSize,
		BulkheadNegativeTTL: cfg.BulkheadNegativeTTL,
	})

	if cfg.WarmOnStart {
		n, err := ix.WarmAllPaged(context.Background(), cfg.WarmPageSize, cfg.WarmBatchSize)
		if err != nil {
			return fmt.Errorf("startup warm: %w", err)
		}
		logger.Info("startup warm complete", "campaigns", n)
	}

	flusher := flush.New(cs, st, metrics, logger, flush.Config{
		Interval:   cfg.FlushInterval,
		MaxPerTick: cfg.FlushMaxPerTick,
		ChunkSize:  cfg.FlushChunkSize,
	})
	flusher.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.New(eng, ix, st, metrics, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			flusher.Stop()
			return fmt.Errorf("http server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}

	// Stop the flusher last so the final drain sees every delta the last
	// in-flight requests recorded.
	flusher.Stop()

	logger.Info("adserved stopped")
	return nil
}
