// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package query

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/northbound-system/axon/internal/apperr"
	"github.com/northbound-system/axon/internal/embedding"
	"github.com/northbound-system/axon/internal/vectorstore"
)

// Store is the slice of internal/vectorstore.Store QueryCore needs.
type Store interface {
	QueryPoints(ctx context.Context, collection string, vector []float32, k int, filter map[string]string) ([]vectorstore.ScoredPoint, error)
}

var _ Store = (*vectorstore.Store)(nil)

// Request mirrors spec.md §4.8's query contract.
type Request struct {
	Query      string
	Limit      int
	Domain     string
	Collection string
	Group      bool
	Full       bool
	// Temporal, if non-empty, scopes results to a calendar day (UTC); Strict
	// turns an empty post-filter result into an error instead of a silent
	// fallback to the unscoped result.
	Temporal time.Time
	Strict   bool
}

// ResultItem is one grouped hit, mirroring spec.md §4.8 step 3/6.
type ResultItem struct {
	URL           string
	Title         string
	Score         float32
	ChunkHeader   string
	ChunkText     string
	ChunkIndex    int
	TotalChunks   int
	Domain        string
	SourceCommand string
	FileModifiedAt string
	ScrapedAt     string
	SourcePathRel string
	Snippet       string
	AllChunks     []ChunkHit // populated only when Request.Group is true
}

// ChunkHit is one member of a grouped result's chunk list.
type ChunkHit struct {
	ChunkIndex  int
	ChunkHeader string
	ChunkText   string
	Score       float32
}

// Response is what Query returns.
type Response struct {
	Items         []ResultItem
	ScopeFallback bool
}

const overFetchFactor = 10
const overFetchFloor = 50

// Core embeds a query, over-fetches candidates, canonicalizes and groups by
// URL, reranks with a small fusion score, and extracts snippets. Grounded
// on the teacher's internal/vectordb.QdrantVectorDB.Search plus the
// payload-shaping idiom from internal/parser, generalized to the
// group/rerank/snippet pipeline spec.md §4.8 describes (the teacher has no
// direct analog — this component's dedup/fusion logic is new, built in the
// teacher's plain-function, no-framework style).
type Core struct {
	backend embedding.Backend
	store   Store
}

// New builds a Core over an embedding backend and vector store.
func New(backend embedding.Backend, store Store) *Core {
	return &Core{backend: backend, store: store}
}

// Query runs the full retrieval pipeline for one request.
func (c *Core) Query(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Response{}, apperr.New(apperr.InvalidInput, "empty query")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	vectors, err := c.backend.EmbedBatch(ctx, []string{req.Query})
	if err != nil {
		return Response{}, fmt.Errorf("embed query: %w", err)
	}

	fetchK := limit * overFetchFactor
	if fetchK < overFetchFloor {
		fetchK = overFetchFloor
	}

	var filter map[string]string
	if req.Domain != "" {
		filter = map[string]string{"domain": req.Domain}
	}

	hits, err := c.store.QueryPoints(ctx, req.Collection, vectors[0], fetchK, filter)
	if err != nil {
		return Response{}, fmt.Errorf("search vector store: %w", err)
	}

	groups := groupByURL(hits)
	terms := tokenize(req.Query)

	items := make([]ResultItem, 0, len(groups))
	for _, g := range groups {
		items = append(items, rerank(g, terms))
	}

	sort.SliceStable(items, func(i, k int) bool { return items[i].Score > items[k].Score })
	if len(items) > limit {
		items = items[:limit]
	}

	if !req.Group {
		for i := range items {
			items[i].AllChunks = nil
		}
	}

	if !req.Full {
		for i := range items {
			items[i].Snippet = extractSnippet(items[i].ChunkText)
		}
	}

	if !req.Temporal.IsZero() {
		scoped := filterTemporal(items, req.Temporal)
		if len(scoped) == 0 {
			if req.Strict {
				return Response{}, apperr.New(apperr.InvalidInput, "no results within temporal scope")
			}
			return Response{Items: items, ScopeFallback: true}, nil
		}
		items = scoped
	}

	return Response{Items: items}, nil
}

var tokenRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "to": true, "of": true, "in": true,
	"on": true, "for": true, "and": true, "or": true, "how": true, "do": true,
	"does": true, "with": true, "that": true, "this": true, "it": true,
	"at": true, "by": true, "from": true, "as": true, "can": true, "you": true,
}

// tokenize lowercases, splits on non-letter/non-digit runs, drops stop
// words, and keeps only terms of length >= 3 (spec.md §4.8 step 5).
func tokenize(s string) []string {
	lower := strings.ToLower(s)
	parts := tokenRe.Split(lower, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) < 3 || stopWords[p] {
			continue
		}
		out = append(out, p)
	}
	return out
}
