// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package scrape

import (
	"context"
	"errors"
)

// This package is the opaque collaborator boundary spec.md §1 calls out:
// the crawl/scrape HTTP client that fetches page markdown lives outside this
// core. This file declares the shapes BackgroundEmbedder needs; http.go holds
// a thin HTTP client (HTTPClient) for cmd/worker and mock.go a scripted
// MockClient for tests.

// Page is one crawled document returned by a completed crawl job.
type Page struct {
	SourceURL string
	Title     string
	Markdown  string
	HTML      string
}

// Status is a crawl job's state as reported by the external service.
type Status string

const (
	StatusScraping  Status = "scraping"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// CrawlStatus is the result of polling a crawl job.
type CrawlStatus struct {
	Status    Status
	Total     int
	Completed int
	Pages     []Page
}

// MapLink is one URL discovered by a preflight map call.
type MapLink struct {
	URL   string
	Title string
}

// Client is the external scrape/crawl collaborator. BackgroundEmbedder polls
// GetCrawlStatus; nothing in this module calls StartCrawl or Map.
type Client interface {
	GetCrawlStatus(ctx context.Context, jobID string) (CrawlStatus, error)
	StartCrawl(ctx context.Context, url string) (jobID string, err error)
	Map(ctx context.Context, url string) ([]MapLink, error)
}

// IsJobNotFoundError classifies an error from GetCrawlStatus as "the
// upstream job no longer exists or was never valid" per spec.md §4.6: this
// is the shared predicate BackgroundEmbedder uses to decide between a
// terminal failure and a retryable one.
func IsJobNotFoundError(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// NotFoundError is returned by a Client implementation when jobID is
// unknown to the upstream service.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string { return "crawl job not found: " + e.JobID }
