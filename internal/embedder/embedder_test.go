// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embedder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/northbound-system/axon/internal/chunk"
	"github.com/northbound-system/axon/internal/embedding"
	"github.com/northbound-system/axon/internal/equeue"
	"github.com/northbound-system/axon/internal/pipeline"
	"github.com/northbound-system/axon/internal/reconcile"
	"github.com/northbound-system/axon/internal/scrape"
	"github.com/northbound-system/axon/internal/vectorstore"
)

type fakePipelineStore struct {
	mu     sync.Mutex
	points map[string][]vectorstore.Point
}

func newFakePipelineStore() *fakePipelineStore {
	return &fakePipelineStore{points: make(map[string][]vectorstore.Point)}
}

func (f *fakePipelineStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	return nil
}

func (f *fakePipelineStore) UpsertPoints(ctx context.Context, collection string, points []vectorstore.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[collection] = append(f.points[collection], points...)
	return nil
}

func (f *fakePipelineStore) DeleteByUrl(ctx context.Context, collection, url string) error {
	return nil
}

func (f *fakePipelineStore) DeleteByUrlAndSourceCommand(ctx context.Context, collection, url, sourceCommand string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []vectorstore.Point
	for _, p := range f.points[collection] {
		if s, ok := p.Payload["url"].(string); ok && s == url {
			continue
		}
		kept = append(kept, p)
	}
	f.points[collection] = kept
	return nil
}

func (f *fakePipelineStore) countByUrl(collection, url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.points[collection] {
		if s, ok := p.Payload["url"].(string); ok && s == url {
			n++
		}
	}
	return n
}

func TestAsyncCrawlDrainCompletesWithinThreeTicks(t *testing.T) {
	q, err := equeue.New(t.TempDir(), equeue.RetryPolicy{BaseDelay: 0, MaxDelay: 0, MaxRetries: 5})
	if err != nil {
		t.Fatalf("equeue.New: %v", err)
	}
	if _, err := q.Enqueue(equeue.Job{JobID: "J1", URL: "https://site.test", Collection: "axon"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	scrapeClient := scrape.NewMockClient(map[string][]scrape.CrawlStatus{
		"J1": {
			{Status: scrape.StatusScraping},
			{Status: scrape.StatusScraping},
			{Status: scrape.StatusCompleted, Pages: []scrape.Page{{SourceURL: "https://site.test/a", Title: "A", Markdown: "A"}}},
		},
	})

	store := newFakePipelineStore()
	p := pipeline.New(embedding.NewMockBackend(8), store, embedding.DefaultBatchConfig(), chunk.DefaultOptions())
	recon, err := reconcile.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("reconcile.NewStore: %v", err)
	}

	be := New(q, scrapeClient, p, recon, store, nil, Config{PollInterval: time.Millisecond, MaxConcurrent: 4}, nil, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := be.drainOnce(ctx); err != nil {
			t.Fatalf("drainOnce #%d: %v", i, err)
		}
	}

	jobs, err := q.List(equeue.StatusCompleted)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected job to be completed after 3 drain ticks, got jobs=%+v", jobs)
	}

	if n := store.countByUrl("axon", "https://site.test/a"); n < 1 {
		t.Fatalf("expected at least one point for https://site.test/a, got %d", n)
	}
}

func TestJobNotFoundFailsPermanently(t *testing.T) {
	q, err := equeue.New(t.TempDir(), equeue.DefaultRetryPolicy())
	if err != nil {
		t.Fatalf("equeue.New: %v", err)
	}
	if _, err := q.Enqueue(equeue.Job{JobID: "unknown-job", URL: "https://site.test", Collection: "axon"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	scrapeClient := scrape.NewMockClient(map[string][]scrape.CrawlStatus{})
	store := newFakePipelineStore()
	p := pipeline.New(embedding.NewMockBackend(8), store, embedding.DefaultBatchConfig(), chunk.DefaultOptions())
	recon, err := reconcile.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("reconcile.NewStore: %v", err)
	}

	be := New(q, scrapeClient, p, recon, store, nil, Config{PollInterval: time.Millisecond}, nil, nil)
	if err := be.drainOnce(context.Background()); err != nil {
		t.Fatalf("drainOnce: %v", err)
	}

	jobs, err := q.List(equeue.StatusFailed)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected job to be permanently failed, got %+v", jobs)
	}
}
