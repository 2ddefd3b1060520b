// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package scrape

import (
	"context"
	"sync"
)

// MockClient is a deterministic, scripted Client for tests: callers queue a
// sequence of statuses per job id and MockClient returns one per call,
// repeating the last entry once exhausted.
type MockClient struct {
	mu       sync.Mutex
	sequence map[string][]CrawlStatus
	cursor   map[string]int
}

// NewMockClient builds a MockClient with the given per-job status scripts.
func NewMockClient(sequence map[string][]CrawlStatus) *MockClient {
	return &MockClient{sequence: sequence, cursor: map[string]int{}}
}

func (m *MockClient) GetCrawlStatus(ctx context.Context, jobID string) (CrawlStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	steps, ok := m.sequence[jobID]
	if !ok || len(steps) == 0 {
		return CrawlStatus{}, &NotFoundError{JobID: jobID}
	}

	idx := m.cursor[jobID]
	if idx >= len(steps) {
		idx = len(steps) - 1
	}
	step := steps[idx]
	if m.cursor[jobID] < len(steps)-1 {
		m.cursor[jobID]++
	}
	return step, nil
}

func (m *MockClient) StartCrawl(ctx context.Context, url string) (string, error) {
	return "mock-job", nil
}

func (m *MockClient) Map(ctx context.Context, url string) ([]MapLink, error) {
	return nil, nil
}
