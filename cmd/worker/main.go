// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/northbound-system/axon/internal/chunk"
	"github.com/northbound-system/axon/internal/embedder"
	"github.com/northbound-system/axon/internal/embedding"
	"github.com/northbound-system/axon/internal/equeue"
	"github.com/northbound-system/axon/internal/jobhistory"
	"github.com/northbound-system/axon/internal/logger"
	"github.com/northbound-system/axon/internal/pipeline"
	"github.com/northbound-system/axon/internal/reconcile"
	"github.com/northbound-system/axon/internal/scrape"
	"github.com/northbound-system/axon/internal/settings"
	"github.com/northbound-system/axon/internal/vectorstore"
)

var (
	queueDir     = flag.String("queue-dir", "", "queue directory; defaults to <home>/queue")
	reconcileDir = flag.String("reconcile-dir", "", "reconciliation state directory; defaults to <home>/reconcile")
	scrapeURL    = flag.String("scrape-url", "", "base URL of the crawl/scrape service; empty runs against an in-memory mock")
	pollInterval = flag.Duration("poll-interval", 0, "override the settings-derived poll interval")
	maxConcurrent = flag.Int("max-concurrent", 0, "override the settings-derived per-job page concurrency")
)

func main() {
	flag.Parse()

	if _, err := logger.Init("worker.log"); err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed, using stdout only: %v\n", err)
	}
	if err := godotenv.Load(); err != nil {
		logger.Printf("no .env file found, using environment variables: %v", err)
	}
	env := settings.LoadEnvOverrides()

	home := env.ConfigRoot
	if home == "" {
		h, err := settings.Home()
		if err != nil {
			logger.Fatalf("resolve home directory: %v", err)
		}
		home = h
	}

	store, err := settings.NewStore(home)
	if err != nil {
		logger.Fatalf("open settings store: %v", err)
	}
	effective, err := store.Get()
	if err != nil {
		logger.Fatalf("load effective settings: %v", err)
	}

	qDir := *queueDir
	if qDir == "" {
		qDir = filepath.Join(home, "queue")
	}
	rDir := *reconcileDir
	if rDir == "" {
		rDir = filepath.Join(home, "reconcile")
	}

	queue, err := equeue.New(qDir, equeue.DefaultRetryPolicy())
	if err != nil {
		logger.Fatalf("open queue at %s: %v", qDir, err)
	}

	reconStore, err := reconcile.NewStore(rDir)
	if err != nil {
		logger.Fatalf("open reconciliation store at %s: %v", rDir, err)
	}

	var scrapeClient scrape.Client
	if *scrapeURL != "" {
		scrapeClient = scrape.NewHTTPClient(*scrapeURL, time.Duration(effective.Scrape.TimeoutMs)*time.Millisecond)
	} else {
		logger.Printf("worker: no -scrape-url given, running against an in-memory mock scrape client")
		scrapeClient = scrape.NewMockClient(nil)
	}

	conn, err := grpc.NewClient(env.VectorStoreURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Fatalf("dial vector store at %s: %v", env.VectorStoreURL, err)
	}
	defer conn.Close()

	backend := embedding.NewHTTPBackend(env.EmbeddingBackendURL, httpRetryConfig(effective.HTTP))
	vstore := vectorstore.New(conn)

	p := pipeline.New(backend, vstore, embedding.BatchConfig{
		BatchSize:            effective.Embedding.BatchSize,
		MaxConcurrentBatches: effective.Embedding.MaxConcurrentBatches,
	}, chunk.Options{
		MaxChunkSize:    effective.Chunking.MaxChunkSize,
		TargetChunkSize: effective.Chunking.TargetChunkSize,
		Overlap:         effective.Chunking.Overlap,
		MinChunkSize:    effective.Chunking.MinChunkSize,
	})

	cfg := embedder.DefaultConfig()
	if effective.Polling.IntervalMs > 0 {
		cfg.PollInterval = time.Duration(effective.Polling.IntervalMs) * time.Millisecond
	}
	if effective.Embedding.MaxConcurrent > 0 {
		cfg.MaxConcurrent = effective.Embedding.MaxConcurrent
	}
	if *pollInterval > 0 {
		cfg.PollInterval = *pollInterval
	}
	if *maxConcurrent > 0 {
		cfg.MaxConcurrent = *maxConcurrent
	}

	historyDir := filepath.Join(home, "history")
	if err := os.MkdirAll(historyDir, 0o700); err != nil {
		logger.Fatalf("create job history directory at %s: %v", historyDir, err)
	}
	jobHistory, err := jobhistory.NewJobHistoryStore(filepath.Join(historyDir, "jobs.db"))
	if err != nil {
		logger.Fatalf("open job history store: %v", err)
	}
	baselines, err := jobhistory.NewBaselineStore(filepath.Join(historyDir, "crawl-baselines.json"))
	if err != nil {
		logger.Fatalf("open crawl baseline store: %v", err)
	}

	bg := embedder.New(queue, scrapeClient, p, reconStore, vstore, logger.GetDefault(), cfg, jobHistory, baselines)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go queue.Watch(ctx, logger.GetDefault(), bg.Wake())

	logger.Printf("worker: starting, queue=%s reconcile=%s poll=%s concurrency=%d", qDir, rDir, cfg.PollInterval, cfg.MaxConcurrent)
	if err := bg.Run(ctx); err != nil {
		logger.Fatalf("worker: %v", err)
	}
	logger.Printf("worker: shut down cleanly")
}

// httpRetryConfig converts the millisecond-typed EffectiveSettings.HTTP
// block into embedding.HTTPRetryConfig's time.Duration fields, so an
// operator's settings.json retry overrides actually reach the backend
// instead of the package default.
func httpRetryConfig(h settings.HTTPSettings) embedding.HTTPRetryConfig {
	return embedding.HTTPRetryConfig{
		BaseDelay:  time.Duration(h.BaseDelayMs) * time.Millisecond,
		MaxDelay:   time.Duration(h.MaxDelayMs) * time.Millisecond,
		MaxRetries: h.MaxRetries,
		Timeout:    time.Duration(h.TimeoutMs) * time.Millisecond,
	}
}
