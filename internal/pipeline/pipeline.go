// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/northbound-system/axon/internal/apperr"
	"github.com/northbound-system/axon/internal/chunk"
	"github.com/northbound-system/axon/internal/embedding"
	"github.com/northbound-system/axon/internal/sourceid"
	"github.com/northbound-system/axon/internal/vectorstore"
)

// Store is the slice of the VectorStore adapter (internal/vectorstore.Store)
// that EmbedPipeline needs. Declaring it here — rather than depending on the
// concrete type directly — is what lets spec.md §8's "delete-before-upsert"
// and "no poisoned collection init" properties be tested with an
// interception double instead of a live Qdrant connection.
type Store interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	UpsertPoints(ctx context.Context, collection string, points []vectorstore.Point) error
	DeleteByUrl(ctx context.Context, collection, url string) error
	DeleteByUrlAndSourceCommand(ctx context.Context, collection, url, sourceCommand string) error
}

var _ Store = (*vectorstore.Store)(nil)

// pointNamespace is the fixed UUIDv5 namespace VectorPoint ids are derived
// from, so repeated runs of the same (sourceId, chunkIndex) always produce
// the same id (spec.md §3's "deterministic UUID" invariant).
var pointNamespace = uuid.MustParse("8f14e45f-ceea-4a9e-8b55-3c2d1e6dbb2e")

// FileInfo carries the local-file-specific payload fields spec.md §3
// documents for a `file` SourceId.
type FileInfo struct {
	RelPath      string
	Name         string
	Ext          string
	SizeBytes    int64
	ModifiedAt   time.Time
}

// DocumentMeta is the caller-supplied metadata for one document, mirroring
// spec.md §4.4's `meta` parameter.
type DocumentMeta struct {
	Source        sourceid.SourceId
	Title         string
	SourceCommand string // one of scrape|crawl|search|extract|embed
	ContentType   string // markdown|html|text
	Collection    string // explicit override; empty means auto-route
	FileInfo      *FileInfo
	IngestID      string
	IngestRoot    string
	HardSync      bool
	NoChunk       bool
}

// Result is what autoEmbed/batchEmbed report back to the caller.
type Result struct {
	Source     sourceid.SourceId
	Collection string
	ChunkCount int
}

const defaultCollection = "web"
const repoCollection = "repo"
const upsertBatchSize = 100

// Pipeline orchestrates chunk -> embed -> upsert for one document with
// idempotent replace-by-source, per spec.md §4.4.
type Pipeline struct {
	backend embedding.Backend
	store   Store
	batch   embedding.BatchConfig
	chunk   chunk.Options

	mu                sync.Mutex
	collectionPending map[string]*collectionInit
}

type collectionInit struct {
	done chan struct{}
	err  error
}

// New builds a Pipeline over an embedding backend and vector store.
func New(backend embedding.Backend, store Store, batch embedding.BatchConfig, chunkOpts chunk.Options) *Pipeline {
	return &Pipeline{
		backend:           backend,
		store:             store,
		batch:             batch,
		chunk:             chunkOpts,
		collectionPending: make(map[string]*collectionInit),
	}
}

// AutoEmbed chunks content, embeds it, and replaces any prior chunks for
// meta.Source with the freshly computed set.
func (p *Pipeline) AutoEmbed(ctx context.Context, content string, meta DocumentMeta) (Result, error) {
	collection := p.resolveCollection(meta)

	if err := p.ensureCollection(ctx, collection); err != nil {
		return Result{}, err
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return Result{}, apperr.New(apperr.InvalidInput, "empty content")
	}

	var chunks []chunk.Piece
	if meta.NoChunk {
		chunks = []chunk.Piece{{Index: 0, Text: trimmed, TotalChunks: 1}}
	} else {
		chunks = chunk.Chunk(trimmed, p.chunk)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := embedding.EmbedChunks(ctx, p.backend, texts, p.batch)
	if err != nil {
		return Result{}, fmt.Errorf("embed chunks for %s: %w", meta.Source, err)
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.Point{
			ID:      pointID(meta.Source, c.Index),
			Vector:  vectors[i],
			Payload: buildPayload(c, meta),
		}
	}

	// Delete-before-upsert: this makes the replace atomic from the caller's
	// point of view even though the store itself isn't transactional. If
	// the store is empty for this source and the upsert then fails, that's
	// strictly safer than a stale mixture of old and new chunks.
	if meta.HardSync && meta.SourceCommand != "" {
		if err := p.store.DeleteByUrlAndSourceCommand(ctx, collection, meta.Source.String(), meta.SourceCommand); err != nil {
			return Result{}, fmt.Errorf("delete prior chunks for %s: %w", meta.Source, err)
		}
	} else {
		if err := p.store.DeleteByUrl(ctx, collection, meta.Source.String()); err != nil {
			return Result{}, fmt.Errorf("delete prior chunks for %s: %w", meta.Source, err)
		}
	}

	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := p.store.UpsertPoints(ctx, collection, points[start:end]); err != nil {
			return Result{}, fmt.Errorf("upsert chunks for %s: %w", meta.Source, err)
		}
	}

	return Result{Source: meta.Source, Collection: collection, ChunkCount: len(chunks)}, nil
}

// BatchEmbed runs AutoEmbed over several documents, stopping at the first
// error (the caller decides whether to continue with the remaining items).
func (p *Pipeline) BatchEmbed(ctx context.Context, items []struct {
	Content string
	Meta    DocumentMeta
}) ([]Result, error) {
	results := make([]Result, 0, len(items))
	for _, item := range items {
		r, err := p.AutoEmbed(ctx, item.Content, item.Meta)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// resolveCollection implements spec.md §4.4 step 1: an explicit override
// wins; otherwise file/stdin sources route to the repo collection only when
// the default collection is still the generic "web" collection.
func (p *Pipeline) resolveCollection(meta DocumentMeta) string {
	if meta.Collection != "" {
		return meta.Collection
	}
	if (meta.Source.Kind == sourceid.File || meta.Source.Kind == sourceid.Stdin) {
		return repoCollection
	}
	return defaultCollection
}

// ensureCollection calls Info()+EnsureCollection() once per collection name
// and memoizes the result — except on failure, where it clears the pending
// entry so the next caller retries. This is spec.md §4.4/§7's single most
// important bug to avoid: a cached rejected promise must never poison the
// pipeline (PoisonedCollectionInit).
func (p *Pipeline) ensureCollection(ctx context.Context, collection string) error {
	p.mu.Lock()
	pending, exists := p.collectionPending[collection]
	if !exists {
		pending = &collectionInit{done: make(chan struct{})}
		p.collectionPending[collection] = pending
		p.mu.Unlock()

		go func() {
			info, err := p.backend.Info(ctx)
			if err == nil {
				err = p.store.EnsureCollection(ctx, collection, info.Dimension)
			}

			if err != nil {
				p.mu.Lock()
				if p.collectionPending[collection] == pending {
					delete(p.collectionPending, collection)
				}
				p.mu.Unlock()
			}
			pending.err = err
			close(pending.done)
		}()
	} else {
		p.mu.Unlock()
	}

	select {
	case <-pending.done:
		if pending.err != nil {
			return apperr.Wrap(apperr.PoisonedCollectionInit, fmt.Sprintf("ensure collection %q", collection), pending.err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func pointID(source sourceid.SourceId, chunkIndex int) string {
	data := fmt.Sprintf("%s#%d", source.String(), chunkIndex)
	return uuid.NewSHA1(pointNamespace, []byte(data)).String()
}

func buildPayload(c chunk.Piece, meta DocumentMeta) map[string]any {
	payload := map[string]any{
		"url":            meta.Source.String(),
		"title":          meta.Title,
		"domain":         meta.Source.Domain(),
		"source_command": meta.SourceCommand,
		"source_type":    sourceKindString(meta.Source.Kind),
		"content_type":   meta.ContentType,
		"chunk_index":    c.Index,
		"total_chunks":   c.TotalChunks,
		"chunk_header":   c.Header,
		"chunk_text":     c.Text,
		"scraped_at":     time.Now().UTC().Format(time.RFC3339),
		"ingest_id":      meta.IngestID,
		"ingest_root":    meta.IngestRoot,
	}

	if meta.FileInfo != nil {
		payload["source_path_rel"] = meta.FileInfo.RelPath
		payload["file_name"] = meta.FileInfo.Name
		payload["file_ext"] = meta.FileInfo.Ext
		payload["file_size_bytes"] = meta.FileInfo.SizeBytes
		payload["file_modified_at"] = meta.FileInfo.ModifiedAt.UTC().Format(time.RFC3339)
	}

	return payload
}

func sourceKindString(k sourceid.Kind) string {
	switch k {
	case sourceid.URL:
		return "url"
	case sourceid.File:
		return "file"
	case sourceid.Stdin:
		return "stdin"
	default:
		return "unknown"
	}
}
