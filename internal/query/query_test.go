// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package query

import (
	"context"
	"testing"

	"github.com/northbound-system/axon/internal/embedding"
	"github.com/northbound-system/axon/internal/vectorstore"
)

type fakeStore struct {
	hits []vectorstore.ScoredPoint
}

func (f *fakeStore) QueryPoints(ctx context.Context, collection string, vector []float32, k int, filter map[string]string) ([]vectorstore.ScoredPoint, error) {
	return f.hits, nil
}

func TestQueryReturnsAuthDocument(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.ScoredPoint{
		{
			ID:    "1",
			Score: 0.9,
			Payload: map[string]any{
				"url":          "https://docs.example.com/auth",
				"title":        "Auth",
				"chunk_header": "Auth",
				"chunk_text":   "Use bearer tokens via the Authorization header.",
				"domain":       "docs.example.com",
			},
		},
	}}

	core := New(embedding.NewMockBackend(8), store)
	resp, err := core.Query(context.Background(), Request{Query: "how do I authenticate?", Limit: 5})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Items))
	}
	if resp.Items[0].URL != "https://docs.example.com/auth" {
		t.Fatalf("URL = %q", resp.Items[0].URL)
	}
	if resp.Items[0].ChunkHeader != "Auth" {
		t.Fatalf("ChunkHeader = %q", resp.Items[0].ChunkHeader)
	}
}

func TestQueryDedupOrdering(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.ScoredPoint{
		{ID: "1", Score: 0.8, Payload: map[string]any{"url": "https://x/a#top", "chunk_text": "x"}},
		{ID: "2", Score: 0.9, Payload: map[string]any{"url": "https://x/a?utm_source=z", "chunk_text": "x"}},
		{ID: "3", Score: 0.7, Payload: map[string]any{"url": "https://x/a", "chunk_text": "x"}},
	}}

	core := New(embedding.NewMockBackend(8), store)
	resp, err := core.Query(context.Background(), Request{Query: "anything searched", Limit: 5, Group: false})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected exactly one grouped result, got %d: %+v", len(resp.Items), resp.Items)
	}
	if resp.Items[0].URL != "https://x/a" {
		t.Fatalf("URL = %q, want https://x/a", resp.Items[0].URL)
	}
	if resp.Items[0].Score < 0.9 {
		t.Fatalf("Score = %v, want base score derived from the 0.9 hit", resp.Items[0].Score)
	}
}

func TestQueryRejectsEmptyQuery(t *testing.T) {
	core := New(embedding.NewMockBackend(8), &fakeStore{})
	_, err := core.Query(context.Background(), Request{Query: "  "})
	if err == nil {
		t.Fatal("expected empty query to fail")
	}
}
