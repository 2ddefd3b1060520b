// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient is a concrete Client against the opaque crawl/scrape service
// spec.md §6 describes: getCrawlStatus/startCrawl/map over plain HTTP. This
// is the one piece of the "external collaborator" spec.md §1 calls out of
// scope that still needs a runnable default for cmd/worker; it intentionally
// stays a thin JSON-over-HTTP shim rather than pulling in the teacher's
// retry machinery, since the actual crawl backend's behavior is unspecified
// here.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds an HTTPClient against baseURL (no trailing slash).
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type statusResponse struct {
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Data      []struct {
		Markdown string `json:"markdown"`
		HTML     string `json:"html"`
		Metadata struct {
			SourceURL string `json:"sourceURL"`
			URL       string `json:"url"`
			Title     string `json:"title"`
		} `json:"metadata"`
	} `json:"data"`
}

// GetCrawlStatus polls GET {baseURL}/crawl/{jobID}.
func (c *HTTPClient) GetCrawlStatus(ctx context.Context, jobID string) (CrawlStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/crawl/"+url.PathEscape(jobID), nil)
	if err != nil {
		return CrawlStatus{}, fmt.Errorf("build crawl status request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return CrawlStatus{}, fmt.Errorf("get crawl status for %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return CrawlStatus{}, &NotFoundError{JobID: jobID}
	}
	if resp.StatusCode != http.StatusOK {
		return CrawlStatus{}, fmt.Errorf("crawl status for %s: unexpected status %s", jobID, resp.Status)
	}

	var raw statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return CrawlStatus{}, fmt.Errorf("decode crawl status for %s: %w", jobID, err)
	}

	status := CrawlStatus{
		Status:    Status(raw.Status),
		Total:     raw.Total,
		Completed: raw.Completed,
	}
	for _, d := range raw.Data {
		sourceURL := d.Metadata.SourceURL
		if sourceURL == "" {
			sourceURL = d.Metadata.URL
		}
		status.Pages = append(status.Pages, Page{
			SourceURL: sourceURL,
			Title:     d.Metadata.Title,
			Markdown:  d.Markdown,
			HTML:      d.HTML,
		})
	}
	return status, nil
}

// StartCrawl issues POST {baseURL}/crawl with {url}.
func (c *HTTPClient) StartCrawl(ctx context.Context, pageURL string) (string, error) {
	body, err := json.Marshal(struct {
		URL string `json:"url"`
	}{URL: pageURL})
	if err != nil {
		return "", fmt.Errorf("marshal start-crawl request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/crawl", strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("build start-crawl request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("start crawl for %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("start crawl for %s: unexpected status %s", pageURL, resp.Status)
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode start-crawl response: %w", err)
	}
	return out.ID, nil
}

// Map issues GET {baseURL}/map?url=... for the preflight discovery baseline.
func (c *HTTPClient) Map(ctx context.Context, pageURL string) ([]MapLink, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/map?url="+url.QueryEscape(pageURL), nil)
	if err != nil {
		return nil, fmt.Errorf("build map request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("map %s: unexpected status %s", pageURL, resp.Status)
	}

	var out struct {
		Links []struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode map response: %w", err)
	}

	links := make([]MapLink, 0, len(out.Links))
	for _, l := range out.Links {
		links = append(links, MapLink{URL: l.URL, Title: l.Title})
	}
	return links, nil
}

var _ Client = (*HTTPClient)(nil)
