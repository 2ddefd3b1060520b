// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/northbound-system/axon/internal/apperr"
)

// Info describes the embedding model behind a Backend.
type Info struct {
	ModelID        string
	Dimension      int
	MaxInputLength int
}

// Backend is the low-level contract: text in, vectors out, same order.
// Concrete backends (OpenAI, Ollama, mock) only need to implement this; the
// batching/concurrency/retry policy in EmbedChunks is shared.
type Backend interface {
	// Info returns model metadata. Implementations should cache it after the
	// first successful call.
	Info(ctx context.Context) (Info, error)
	// EmbedBatch embeds a single batch of texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// BatchConfig controls how EmbedChunks fans a request out across batches.
type BatchConfig struct {
	BatchSize            int
	MaxConcurrentBatches int
}

// DefaultBatchConfig matches spec.md's documented defaults.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{BatchSize: 24, MaxConcurrentBatches: 4}
}

// EmbedChunks is the high-level helper spec.md §4.2 describes: split into
// batches of BatchSize, fan out up to MaxConcurrentBatches at a time,
// preserve input order, and fail the whole call (cancelling outstanding
// batches) if any one batch fails.
func EmbedChunks(ctx context.Context, backend Backend, texts []string, cfg BatchConfig) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchConfig().BatchSize
	}
	if cfg.MaxConcurrentBatches <= 0 {
		cfg.MaxConcurrentBatches = DefaultBatchConfig().MaxConcurrentBatches
	}

	type batch struct {
		start int
		texts []string
	}
	var batches []batch
	for start := 0; start < len(texts); start += cfg.BatchSize {
		end := start + cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{start: start, texts: texts[start:end]})
	}

	result := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrentBatches)

	for _, b := range batches {
		b := b
		g.Go(func() error {
			vectors, err := backend.EmbedBatch(gctx, b.texts)
			if err != nil {
				return fmt.Errorf("embed batch starting at chunk %d: %w", b.start, err)
			}
			if len(vectors) != len(b.texts) {
				return apperr.New(apperr.BackendUnavailable, fmt.Sprintf("expected %d vectors, got %d", len(b.texts), len(vectors)))
			}
			for i, v := range vectors {
				result[b.start+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
