// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package jobhistory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// BaselineEntry is a preflight expected-URL-count record for a crawl job id,
// used by the discovery guardrail to warn when a crawl came back with
// unexpectedly few pages (spec.md §3's BaselineEntry, §8.3's "Baseline").
type BaselineEntry struct {
	JobID        string    `json:"jobId"`
	URL          string    `json:"url"`
	ExpectedURLs int       `json:"expectedUrls"`
	CreatedAt    time.Time `json:"createdAt"`
}

// JobRecord is one entry in the bounded recent-job-history log (spec.md
// §6's jobs.json).
type JobRecord struct {
	JobID     string    `json:"jobId"`
	URL       string    `json:"url"`
	Kind      string    `json:"kind"` // scrape|crawl
	CreatedAt time.Time `json:"createdAt"`
}

const (
	defaultBaselineCap = 200
	defaultJobCap      = 200
)

// boundedFileStore is the shape behind BaselineStore: a single bounded,
// most-recent-first JSON array, held in an in-memory cache that is
// refreshed on every mutation and written back atomically. Grounded on the
// teacher's internal/rules.Store cache-refresh-on-mutation discipline,
// redesigned onto a bounded JSON array since spec.md §6 places
// crawl-baselines.json in a plain file rather than a database — baselines
// are written once per preflight and read by job id, a lookup pattern a
// flat bounded array serves fine.
type boundedFileStore struct {
	path string
	cap  int

	mu    sync.Mutex
	cache []BaselineEntry
}

func newBoundedFileStore(path string, cap int) (*boundedFileStore, error) {
	s := &boundedFileStore{path: path, cap: cap}
	if err := s.refreshCache(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *boundedFileStore) refreshCache() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.cache = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	var wrapper struct {
		Entries []BaselineEntry `json:"entries"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return fmt.Errorf("unmarshal %s: %w", s.path, err)
	}
	s.cache = wrapper.Entries
	return nil
}

// All returns a copy of the cached entries, most-recent-first.
func (s *boundedFileStore) All() []BaselineEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BaselineEntry, len(s.cache))
	copy(out, s.cache)
	return out
}

// Add prepends entry, truncates to the cap, persists, and refreshes the
// cache.
func (s *boundedFileStore) Add(entry BaselineEntry) error {
	s.mu.Lock()
	entries := append([]BaselineEntry{entry}, s.cache...)
	if len(entries) > s.cap {
		entries = entries[:s.cap]
	}
	s.mu.Unlock()

	if err := s.writeAtomic(entries); err != nil {
		return err
	}
	return s.refreshCache()
}

func (s *boundedFileStore) writeAtomic(entries []BaselineEntry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create directory for %s: %w", s.path, err)
	}
	wrapper := struct {
		Entries []BaselineEntry `json:"entries"`
	}{Entries: entries}
	data, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.path, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return os.Rename(tmp, s.path)
}

// BaselineStore persists crawl-baselines.json.
type BaselineStore struct {
	inner *boundedFileStore
}

// NewBaselineStore opens (or creates) the baseline store at path.
func NewBaselineStore(path string) (*BaselineStore, error) {
	inner, err := newBoundedFileStore(path, defaultBaselineCap)
	if err != nil {
		return nil, err
	}
	return &BaselineStore{inner: inner}, nil
}

// Record stores a new preflight baseline for jobID.
func (b *BaselineStore) Record(jobID, url string, expectedURLs int) error {
	return b.inner.Add(BaselineEntry{JobID: jobID, URL: url, ExpectedURLs: expectedURLs, CreatedAt: time.Now().UTC()})
}

// Lookup returns the most recent baseline recorded for jobID, if any.
func (b *BaselineStore) Lookup(jobID string) (BaselineEntry, bool) {
	for _, e := range b.inner.All() {
		if e.JobID == jobID {
			return e, true
		}
	}
	return BaselineEntry{}, false
}

// JobHistoryStore persists the bounded recent-job-history spec.md §6 names
// as jobs.json. Unlike BaselineStore, this one is read far more than
// written (every scrape/crawl CLI invocation wants "was this URL recently
// crawled?"), so it is backed by an embedded sqlite table instead of a flat
// file — the same cache-refresh-on-write-over-database/sql pattern the
// teacher's internal/rules.Store uses, indexed by job id and bounded by a
// trim-on-insert delete rather than array truncation.
type JobHistoryStore struct {
	db  *sql.DB
	cap int
	mu  sync.Mutex
}

// NewJobHistoryStore opens (creating if absent) the sqlite-backed job
// history database at path.
func NewJobHistoryStore(path string) (*JobHistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", path, err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open job history database: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS job_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL,
	url TEXT NOT NULL,
	kind TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_history_job_id ON job_history(job_id);
CREATE INDEX IF NOT EXISTS idx_job_history_created_at ON job_history(created_at);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create job history schema: %w", err)
	}

	return &JobHistoryStore{db: db, cap: defaultJobCap}, nil
}

// Close releases the underlying database handle.
func (j *JobHistoryStore) Close() error {
	return j.db.Close()
}

// Record inserts a new job history entry and trims the table back down to
// the bounded window, oldest-first.
func (j *JobHistoryStore) Record(jobID, url, kind string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	// Fixed-width fraction so created_at text sorts in time order.
	now := time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
	if _, err := j.db.Exec(
		`INSERT INTO job_history (job_id, url, kind, created_at) VALUES (?, ?, ?, ?)`,
		jobID, url, kind, now,
	); err != nil {
		return fmt.Errorf("insert job history entry: %w", err)
	}

	if _, err := j.db.Exec(`
DELETE FROM job_history WHERE id NOT IN (
	SELECT id FROM job_history ORDER BY created_at DESC LIMIT ?
)`, j.cap); err != nil {
		return fmt.Errorf("trim job history: %w", err)
	}
	return nil
}

// Recent returns the bounded, most-recent-first job history.
func (j *JobHistoryStore) Recent() ([]JobRecord, error) {
	rows, err := j.db.Query(
		`SELECT job_id, url, kind, created_at FROM job_history ORDER BY created_at DESC LIMIT ?`,
		j.cap,
	)
	if err != nil {
		return nil, fmt.Errorf("query job history: %w", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var rec JobRecord
		var createdAt string
		if err := rows.Scan(&rec.JobID, &rec.URL, &rec.Kind, &createdAt); err != nil {
			return nil, fmt.Errorf("scan job history row: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse job history timestamp: %w", err)
		}
		rec.CreatedAt = parsed
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ForJob returns the most recent history entry recorded for jobID, if any.
func (j *JobHistoryStore) ForJob(jobID string) (JobRecord, bool, error) {
	row := j.db.QueryRow(
		`SELECT job_id, url, kind, created_at FROM job_history WHERE job_id = ? ORDER BY created_at DESC LIMIT 1`,
		jobID,
	)
	var rec JobRecord
	var createdAt string
	if err := row.Scan(&rec.JobID, &rec.URL, &rec.Kind, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return JobRecord{}, false, nil
		}
		return JobRecord{}, false, fmt.Errorf("scan job history row: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return JobRecord{}, false, fmt.Errorf("parse job history timestamp: %w", err)
	}
	rec.CreatedAt = parsed
	return rec, true, nil
}
