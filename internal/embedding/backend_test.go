// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embedding

import (
	"context"
	"errors"
	"testing"
)

type countingBackend struct {
	dim       int
	batches   [][]string
	failAfter int
	calls     int
}

func (c *countingBackend) Info(ctx context.Context) (Info, error) {
	return Info{ModelID: "counting", Dimension: c.dim}, nil
}

func (c *countingBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.failAfter > 0 && c.calls > c.failAfter {
		return nil, errors.New("boom")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestEmbedChunks_PreservesOrder(t *testing.T) {
	backend := &countingBackend{dim: 1}
	texts := make([]string, 50)
	for i := range texts {
		texts[i] = string(rune('a' + i%26))
	}

	vectors, err := EmbedChunks(context.Background(), backend, texts, BatchConfig{BatchSize: 7, MaxConcurrentBatches: 3})
	if err != nil {
		t.Fatalf("EmbedChunks failed: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	for i, text := range texts {
		if vectors[i][0] != float32(len(text)) {
			t.Errorf("vector %d out of order: got %v for text %q", i, vectors[i], text)
		}
	}
}

func TestEmbedChunks_PropagatesBatchFailure(t *testing.T) {
	backend := &countingBackend{dim: 1, failAfter: 1}
	texts := make([]string, 30)
	for i := range texts {
		texts[i] = "x"
	}

	_, err := EmbedChunks(context.Background(), backend, texts, BatchConfig{BatchSize: 5, MaxConcurrentBatches: 4})
	if err == nil {
		t.Fatal("expected error when a batch fails")
	}
}

func TestEmbedChunks_Empty(t *testing.T) {
	backend := &countingBackend{dim: 1}
	vectors, err := EmbedChunks(context.Background(), backend, nil, DefaultBatchConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("expected no vectors, got %d", len(vectors))
	}
}
