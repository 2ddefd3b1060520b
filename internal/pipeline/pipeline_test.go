// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/northbound-system/axon/internal/chunk"
	"github.com/northbound-system/axon/internal/embedding"
	"github.com/northbound-system/axon/internal/sourceid"
	"github.com/northbound-system/axon/internal/vectorstore"
)

type fakeStore struct {
	mu          sync.Mutex
	ops         []string
	ensureErr   error
	ensureCalls int
	points      map[string][]vectorstore.Point
}

func newFakeStore() *fakeStore {
	return &fakeStore{points: make(map[string][]vectorstore.Point)}
}

func (f *fakeStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	f.ops = append(f.ops, "ensure:"+name)
	return f.ensureErr
}

func (f *fakeStore) UpsertPoints(ctx context.Context, collection string, points []vectorstore.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "upsert")
	f.points[collection] = append(f.points[collection], points...)
	return nil
}

func (f *fakeStore) DeleteByUrl(ctx context.Context, collection, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "delete")
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

func (f *fakeStore) DeleteByUrlAndSourceCommand(ctx context.Context, collection, url, sourceCommand string) error {
	return f.DeleteByUrl(ctx, collection, url)
}

func docMeta(url string) DocumentMeta {
	return DocumentMeta{
		Source:        sourceid.FromURL(url),
		Title:         "Auth",
		SourceCommand: "scrape",
		ContentType:   "markdown",
	}
}

func TestAutoEmbedIdempotent(t *testing.T) {
	store := newFakeStore()
	backend := embedding.NewMockBackend(8)
	p := New(backend, store, embedding.DefaultBatchConfig(), defaultChunkOpts())

	content := "# Auth\n\nUse bearer tokens via the Authorization header."
	meta := docMeta("https://docs.example.com/auth")

	r1, err := p.AutoEmbed(context.Background(), content, meta)
	if err != nil {
		t.Fatalf("first AutoEmbed: %v", err)
	}
	r2, err := p.AutoEmbed(context.Background(), content, meta)
	if err != nil {
		t.Fatalf("second AutoEmbed: %v", err)
	}

	if r1.ChunkCount != r2.ChunkCount {
		t.Fatalf("chunk counts differ: %d vs %d", r1.ChunkCount, r2.ChunkCount)
	}

	ids1 := make(map[string]bool)
	for _, pt := range store.points[r1.Collection] {
		ids1[pt.ID] = true
	}
	if len(ids1) != r2.ChunkCount {
		t.Fatalf("expected store to hold exactly %d unique ids after two runs, got %d", r2.ChunkCount, len(ids1))
	}
}

func TestDeleteBeforeUpsert(t *testing.T) {
	store := newFakeStore()
	backend := embedding.NewMockBackend(8)
	p := New(backend, store, embedding.DefaultBatchConfig(), defaultChunkOpts())

	_, err := p.AutoEmbed(context.Background(), "hello world, this is a test document", docMeta("https://x.test/a"))
	if err != nil {
		t.Fatalf("AutoEmbed: %v", err)
	}

	deleteIdx, upsertIdx := -1, -1
	for i, op := range store.ops {
		if op == "delete" && deleteIdx == -1 {
			deleteIdx = i
		}
		if op == "upsert" && upsertIdx == -1 {
			upsertIdx = i
		}
	}
	if deleteIdx == -1 || upsertIdx == -1 || deleteIdx > upsertIdx {
		t.Fatalf("expected delete before upsert, got ops=%v", store.ops)
	}
}

func TestPoisonedCollectionInitRecovers(t *testing.T) {
	store := newFakeStore()
	store.ensureErr = errors.New("backend down")
	backend := embedding.NewMockBackend(8)
	p := New(backend, store, embedding.DefaultBatchConfig(), defaultChunkOpts())

	_, err := p.AutoEmbed(context.Background(), "some content here", docMeta("https://x.test/b"))
	if err == nil {
		t.Fatal("expected first AutoEmbed to fail")
	}

	store.ensureErr = nil
	_, err = p.AutoEmbed(context.Background(), "some content here", docMeta("https://x.test/b"))
	if err != nil {
		t.Fatalf("second AutoEmbed should succeed after clearing the cached rejection: %v", err)
	}
	if store.ensureCalls < 2 {
		t.Fatalf("expected EnsureCollection to be retried, called %d times", store.ensureCalls)
	}
}

func TestEmptyContentFails(t *testing.T) {
	store := newFakeStore()
	backend := embedding.NewMockBackend(8)
	p := New(backend, store, embedding.DefaultBatchConfig(), defaultChunkOpts())

	_, err := p.AutoEmbed(context.Background(), "   ", docMeta("https://x.test/c"))
	if err == nil {
		t.Fatal("expected empty content to fail")
	}
}

func defaultChunkOpts() chunk.Options {
	return chunk.DefaultOptions()
}
