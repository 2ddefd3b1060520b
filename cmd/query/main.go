// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/northbound-system/axon/internal/embedding"
	"github.com/northbound-system/axon/internal/logger"
	"github.com/northbound-system/axon/internal/query"
	"github.com/northbound-system/axon/internal/settings"
	"github.com/northbound-system/axon/internal/vectorstore"
)

var (
	queryText  = flag.String("q", "", "query text (required)")
	limit      = flag.Int("limit", 10, "max results to return")
	domain     = flag.String("domain", "", "restrict results to this domain")
	collection = flag.String("collection", "web", "collection to search")
	group      = flag.Bool("group", false, "return every chunk per result instead of just the top one")
	full       = flag.Bool("full", false, "return full chunk text instead of an extracted snippet")
	asJSON     = flag.Bool("json", false, "print results as JSON")
)

func main() {
	flag.Parse()
	if *queryText == "" {
		fmt.Fprintln(os.Stderr, "usage: query -q \"<question>\" [-limit N] [-domain D] [-collection C] [-group] [-full]")
		os.Exit(1)
	}

	if _, err := logger.Init("query.log"); err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed, using stdout only: %v\n", err)
	}
	if err := godotenv.Load(); err != nil {
		logger.Printf("no .env file found, using environment variables: %v", err)
	}
	env := settings.LoadEnvOverrides()

	store, err := settingsStore(env)
	if err != nil {
		logger.Fatalf("open settings store: %v", err)
	}
	effective, err := store.Get()
	if err != nil {
		logger.Fatalf("load effective settings: %v", err)
	}

	conn, err := grpc.NewClient(env.VectorStoreURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Fatalf("dial vector store at %s: %v", env.VectorStoreURL, err)
	}
	defer conn.Close()

	backend := embedding.NewHTTPBackend(env.EmbeddingBackendURL, httpRetryConfig(effective.HTTP))
	vstore := vectorstore.New(conn)
	core := query.New(backend, vstore)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := core.Query(ctx, query.Request{
		Query:      *queryText,
		Limit:      *limit,
		Domain:     *domain,
		Collection: *collection,
		Group:      *group,
		Full:       *full,
	})
	if err != nil {
		logger.Fatalf("query failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			logger.Fatalf("encode results: %v", err)
		}
		return
	}

	if resp.ScopeFallback {
		fmt.Println("(no results within the requested temporal scope; showing unscoped results)")
	}
	for i, item := range resp.Items {
		fmt.Printf("%d. %s  (score %.3f)\n", i+1, item.URL, item.Score)
		if item.Title != "" {
			fmt.Printf("   %s\n", item.Title)
		}
		if item.ChunkHeader != "" {
			fmt.Printf("   § %s\n", item.ChunkHeader)
		}
		snippet := item.Snippet
		if snippet == "" {
			snippet = item.ChunkText
		}
		fmt.Printf("   %s\n\n", snippet)
	}
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

func settingsStore(env settings.EnvOverrides) (*settings.Store, error) {
	dir := env.ConfigRoot
	if dir == "" {
		home, err := settings.Home()
		if err != nil {
			return nil, err
		}
		dir = home
	}
	return settings.NewStore(dir)
}
