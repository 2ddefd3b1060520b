// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/northbound-system/axon/internal/chunk"
	"github.com/northbound-system/axon/internal/docparse"
	"github.com/northbound-system/axon/internal/embedding"
	"github.com/northbound-system/axon/internal/logger"
	"github.com/northbound-system/axon/internal/pipeline"
	"github.com/northbound-system/axon/internal/settings"
	"github.com/northbound-system/axon/internal/sourceid"
	"github.com/northbound-system/axon/internal/vectorstore"
)

var (
	path          = flag.String("path", "", "local file to embed; omit to read from stdin")
	urlFlag       = flag.String("url", "", "source URL to embed (content still read from -path or stdin)")
	title         = flag.String("title", "", "document title stored in the payload")
	collection    = flag.String("collection", "", "collection override; empty auto-routes per spec.md §4.4")
	sourceCommand = flag.String("source-command", "embed", "one of scrape|crawl|search|extract|embed")
	hardSync      = flag.Bool("hard-sync", false, "delete by (url, source-command) instead of by url alone")
)

func main() {
	flag.Parse()

	if _, err := logger.Init("embed.log"); err != nil {
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

	content, source, fileInfo, err := resolveContent()
	if err != nil {
		logger.Fatalf("resolve content: %v", err)
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	contentType := "markdown"
	if filepath.Ext(*path) != "" {
		switch filepath.Ext(*path) {
		case ".html", ".htm":
			contentType = "html"
		case ".txt", ".pdf", ".docx", ".xlsx", ".xls", ".eml":
			contentType = "text"
		}
	}

	result, err := p.AutoEmbed(ctx, content, pipeline.DocumentMeta{
		Source:        source,
		Title:         *title,
		SourceCommand: *sourceCommand,
		ContentType:   contentType,
		Collection:    *collection,
		FileInfo:      fileInfo,
		HardSync:      *hardSync,
	})
	if err != nil {
		logger.Fatalf("embed %s: %v", source, err)
	}

	fmt.Printf("embedded %s into %q (%d chunks)\n", result.Source, result.Collection, result.ChunkCount)
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

// resolveContent derives the SourceId and reads the document body, routing
// local files through internal/docparse when the extension needs it and
// falling back to stdin per spec.md §3's Stdin SourceId variant.
func resolveContent() (string, sourceid.SourceId, *pipeline.FileInfo, error) {
	if *urlFlag != "" {
		raw, err := readStdinOrPath()
		if err != nil {
			return "", sourceid.SourceId{}, nil, err
		}
		return raw, sourceid.FromURL(*urlFlag), nil, nil
	}

	if *path == "" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", sourceid.SourceId{}, nil, fmt.Errorf("read stdin: %w", err)
		}
		source, err := sourceid.FromStdin(raw)
		if err != nil {
			return "", sourceid.SourceId{}, nil, err
		}
		return string(raw), source, nil, nil
	}

	source, err := sourceid.FromFile(*path)
	if err != nil {
		return "", sourceid.SourceId{}, nil, err
	}

	var (
		text string
	)
	if docparse.IsSupportedFile(*path) && filepath.Ext(*path) != ".md" && filepath.Ext(*path) != ".markdown" && filepath.Ext(*path) != ".txt" {
		result, err := docparse.ParseFile(*path)
		if err != nil {
			return "", sourceid.SourceId{}, nil, err
		}
		text = result.Text
	} else {
		raw, err := os.ReadFile(*path)
		if err != nil {
			return "", sourceid.SourceId{}, nil, fmt.Errorf("read %s: %w", *path, err)
		}
		text = string(raw)
	}

	info, err := os.Stat(*path)
	if err != nil {
		return "", sourceid.SourceId{}, nil, fmt.Errorf("stat %s: %w", *path, err)
	}
	fileInfo := &pipeline.FileInfo{
		RelPath:    source.String(),
		Name:       filepath.Base(*path),
		Ext:        filepath.Ext(*path),
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime(),
	}
	return text, source, fileInfo, nil
}

func readStdinOrPath() (string, error) {
	if *path == "" {
		raw, err := io.ReadAll(os.Stdin)
		return string(raw), err
	}
	raw, err := os.ReadFile(*path)
	return string(raw), err
}
