// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package reconcile

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// URLState tracks one URL's crawl-presence history within a domain.
type URLState struct {
	LastSeenAt         time.Time  `json:"lastSeenAt"`
	MissingConsecutive int        `json:"missingConsecutive"`
	FirstMissingAt     *time.Time `json:"firstMissingAt,omitempty"`
	LastMissingAt      *time.Time `json:"lastMissingAt,omitempty"`
}

// DomainState is the on-disk record for one domain's tracked URLs.
type DomainState struct {
	Domain string              `json:"domain"`
	URLs   map[string]URLState `json:"urls"`
}

// Options configures one reconcile call; zero values fall back to the
// package defaults (missingThreshold=2, gracePeriod=7d).
type Options struct {
	HardSync         bool
	DryRun           bool
	MissingThreshold int
	GracePeriod      time.Duration
	Now              time.Time
}

const (
	DefaultMissingThreshold = 2
	DefaultGracePeriod      = 7 * 24 * time.Hour
)

// Result reports what reconcile decided.
type Result struct {
	URLsToDelete  []string
	TrackedBefore int
	TrackedAfter  int
	Seen          int
}

// Store persists one DomainState per domain as an atomically-written JSON
// file, grounded on the teacher's internal/rules.Store sqlite cache-refresh
// pattern but redesigned onto plain files: reconciliation state is a
// handful of small per-domain records, not a query-heavy rule table, so a
// JSON file with the same mutex-serialized-write discipline is the
// simpler idiom here.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore opens (creating if absent) a reconciliation state directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create reconciliation directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(domain string) string {
	return filepath.Join(s.dir, strings.ToLower(domain)+".json")
}

func (s *Store) load(domain string) (DomainState, error) {
	raw, err := os.ReadFile(s.path(domain))
	if os.IsNotExist(err) {
		return DomainState{Domain: domain, URLs: make(map[string]URLState)}, nil
	}
	if err != nil {
		return DomainState{}, fmt.Errorf("read reconciliation state for %s: %w", domain, err)
	}
	var state DomainState
	if err := json.Unmarshal(raw, &state); err != nil {
		return DomainState{}, fmt.Errorf("unmarshal reconciliation state for %s: %w", domain, err)
	}
	if state.URLs == nil {
		state.URLs = make(map[string]URLState)
	}
	return state, nil
}

func (s *Store) save(state DomainState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal reconciliation state for %s: %w", state.Domain, err)
	}
	tmp := s.path(state.Domain) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write reconciliation state for %s: %w", state.Domain, err)
	}
	return os.Rename(tmp, s.path(state.Domain))
}

// Reconcile compares seenUrls against the tracked state for domain and
// decides which previously-tracked URLs should be deleted, per spec.md
// §4.7's consecutive-miss + grace-period rule.
func (s *Store) Reconcile(domain string, seenUrls []string, opts Options) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	domain = strings.ToLower(domain)
	threshold := opts.MissingThreshold
	if threshold <= 0 {
		threshold = DefaultMissingThreshold
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	state, err := s.load(domain)
	if err != nil {
		return Result{}, err
	}
	trackedBefore := len(state.URLs)

	seen := make(map[string]bool, len(seenUrls))
	for _, raw := range seenUrls {
		canon, err := canonicalize(raw)
		if err != nil {
			continue
		}
		seen[canon] = true
		state.URLs[canon] = URLState{LastSeenAt: now, MissingConsecutive: 0}
	}

	var toDelete []string
	for u, st := range state.URLs {
		if seen[u] {
			continue
		}
		if opts.HardSync {
			toDelete = append(toDelete, u)
			delete(state.URLs, u)
			continue
		}

		if st.FirstMissingAt == nil {
			first := now
			st.FirstMissingAt = &first
		}
		st.MissingConsecutive++
		last := now
		st.LastMissingAt = &last

		if st.MissingConsecutive >= threshold && now.Sub(*st.FirstMissingAt) >= grace {
			toDelete = append(toDelete, u)
			delete(state.URLs, u)
			continue
		}
		state.URLs[u] = st
	}

	if !opts.DryRun {
		if err := s.save(state); err != nil {
			return Result{}, err
		}
	}

	return Result{
		URLsToDelete:  toDelete,
		TrackedBefore: trackedBefore,
		TrackedAfter:  len(state.URLs),
		Seen:          len(seen),
	}, nil
}

// canonicalize restricts a URL to http(s) and normalizes it via
// url.URL.String(), matching spec.md §4.7 step 1.
func canonicalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
