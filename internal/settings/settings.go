// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CrawlSettings, ScrapeSettings, etc. are the nested, totally-defaulted
// records spec.md §3's EffectiveSettings requires. Every field has a
// documented default so a caller never has to nil-check a section.
type CrawlSettings struct {
	MaxDepth       int `json:"maxDepth"`
	MaxPages       int `json:"maxPages"`
	MissingThreshold int `json:"missingThreshold"`
	GracePeriodMs  int64 `json:"gracePeriodMs"`
}

type ScrapeSettings struct {
	TimeoutMs int `json:"timeoutMs"`
}

type MapSettings struct {
	MaxLinks int `json:"maxLinks"`
}

type SearchSettings struct {
	DefaultLimit int `json:"defaultLimit"`
}

type ExtractSettings struct {
	MaxChars int `json:"maxChars"`
}

type BatchSettings struct {
	MaxConcurrentDocuments int `json:"maxConcurrentDocuments"`
}

type AskSettings struct {
	Enabled bool `json:"enabled"`
}

type HTTPSettings struct {
	BaseDelayMs int `json:"baseDelayMs"`
	MaxDelayMs  int `json:"maxDelayMs"`
	MaxRetries  int `json:"maxRetries"`
	TimeoutMs   int `json:"timeoutMs"`
}

type ChunkingSettings struct {
	MaxChunkSize    int `json:"maxChunkSize"`
	TargetChunkSize int `json:"targetChunkSize"`
	Overlap         int `json:"overlap"`
	MinChunkSize    int `json:"minChunkSize"`
}

type EmbeddingSettings struct {
	BatchSize            int `json:"batchSize"`
	MaxConcurrentBatches int `json:"maxConcurrentBatches"`
	MaxConcurrent        int `json:"maxConcurrent"`
}

type PollingSettings struct {
	IntervalMs int `json:"intervalMs"`
}

// EffectiveSettings is the typed merge of on-disk user settings over
// built-in defaults (spec.md §4.9).
type EffectiveSettings struct {
	SettingsVersion          int      `json:"settingsVersion"`
	DefaultExcludePaths      []string `json:"defaultExcludePaths"`
	DefaultExcludeExtensions []string `json:"defaultExcludeExtensions"`

	Crawl     CrawlSettings     `json:"crawl"`
	Scrape    ScrapeSettings    `json:"scrape"`
	Map       MapSettings       `json:"map"`
	Search    SearchSettings    `json:"search"`
	Extract   ExtractSettings   `json:"extract"`
	Batch     BatchSettings     `json:"batch"`
	Ask       AskSettings       `json:"ask"`
	HTTP      HTTPSettings      `json:"http"`
	Chunking  ChunkingSettings  `json:"chunking"`
	Embedding EmbeddingSettings `json:"embedding"`
	Polling   PollingSettings   `json:"polling"`
}

const currentSettingsVersion = 1

// Defaults returns a fully populated EffectiveSettings, matching spec.md's
// documented defaults for chunking/embedding/http/reconciliation.
func Defaults() EffectiveSettings {
	return EffectiveSettings{
		SettingsVersion:          currentSettingsVersion,
		DefaultExcludePaths:      []string{"node_modules", ".git", "dist", "build"},
		DefaultExcludeExtensions: []string{".png", ".jpg", ".jpeg", ".gif", ".ico", ".woff", ".woff2"},
		Crawl: CrawlSettings{
			MaxDepth:         3,
			MaxPages:         1000,
			MissingThreshold: 2,
			GracePeriodMs:    int64(7 * 24 * time.Hour / time.Millisecond),
		},
		Scrape:  ScrapeSettings{TimeoutMs: 30_000},
		Map:     MapSettings{MaxLinks: 5000},
		Search:  SearchSettings{DefaultLimit: 10},
		Extract: ExtractSettings{MaxChars: 50_000},
		Batch:   BatchSettings{MaxConcurrentDocuments: 4},
		Ask:     AskSettings{Enabled: false},
		HTTP: HTTPSettings{
			BaseDelayMs: 5_000,
			MaxDelayMs:  60_000,
			MaxRetries:  3,
			TimeoutMs:   30_000,
		},
		Chunking: ChunkingSettings{
			MaxChunkSize:    1500,
			TargetChunkSize: 1000,
			Overlap:         100,
			MinChunkSize:    50,
		},
		Embedding: EmbeddingSettings{
			BatchSize:            24,
			MaxConcurrentBatches: 4,
			MaxConcurrent:        10,
		},
		Polling: PollingSettings{IntervalMs: 10_000},
	}
}

// Store persists EffectiveSettings to a single JSON file under a
// platform-appropriate config root, atomically. Grounded on the teacher's
// internal/config.NewRedisClient's env-var-reading shape (AXON_HOME mirrors
// REDIS_ADDR's override-or-default pattern), generalized to the file-backed
// merge/versioning/corruption-recovery scheme spec.md §4.9 and §9 require —
// viper has no atomic-rename-with-backup primitive, so that part is
// hand-written, matching the teacher's own habit of hand-rolling persistence.
type Store struct {
	path string

	cachedModTime time.Time
	cached        *EffectiveSettings
}

// Home resolves the settings directory: AXON_HOME if set, else
// $XDG_CONFIG_HOME/axon or ~/.config/axon.
func Home() (string, error) {
	if v := os.Getenv("AXON_HOME"); v != "" {
		return v, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "axon"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "axon"), nil
}

// NewStore builds a Store rooted at dir/settings.json, creating dir with
// 0700 permissions if it doesn't exist.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create settings directory: %w", err)
	}
	return &Store{path: filepath.Join(dir, "settings.json")}, nil
}

// Get returns the effective settings, deep-merging the on-disk user file
// over Defaults(). It caches by mtime so repeated calls don't re-read the
// file on every access (spec.md §5 "read-mostly, invalidated by mtime").
func (s *Store) Get() (EffectiveSettings, error) {
	stat, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return Defaults(), nil
	}
	if err != nil {
		return EffectiveSettings{}, fmt.Errorf("stat settings file: %w", err)
	}

	if s.cached != nil && stat.ModTime().Equal(s.cachedModTime) {
		return *s.cached, nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return EffectiveSettings{}, fmt.Errorf("read settings file: %w", err)
	}

	var userSettings map[string]json.RawMessage
	if err := json.Unmarshal(raw, &userSettings); err != nil {
		return s.recoverFromCorruption(err)
	}

	merged := Defaults()
	if err := mergeOneLevel(&merged, userSettings); err != nil {
		return s.recoverFromCorruption(err)
	}

	s.cached = &merged
	s.cachedModTime = stat.ModTime()
	return merged, nil
}

// recoverFromCorruption renames the unreadable file aside and writes
// defaults in its place, per spec.md §4.9.
func (s *Store) recoverFromCorruption(cause error) (EffectiveSettings, error) {
	backup := fmt.Sprintf("%s.invalid-backup-%d", s.path, time.Now().UnixNano())
	if err := os.Rename(s.path, backup); err != nil && !os.IsNotExist(err) {
		return EffectiveSettings{}, fmt.Errorf("back up corrupt settings file (cause: %v): %w", cause, err)
	}

	defaults := Defaults()
	if err := s.writeAtomic(defaults); err != nil {
		return EffectiveSettings{}, fmt.Errorf("write defaults after corrupt settings (cause: %v): %w", cause, err)
	}
	s.cached = nil
	return defaults, nil
}

// Save deep-merges partial over the current on-disk settings (one level
// deep: scalars and arrays replaced wholesale, known nested records merged
// key-by-key) and writes the result atomically with 0600 permissions.
func (s *Store) Save(partial map[string]json.RawMessage) (EffectiveSettings, error) {
	current, err := s.Get()
	if err != nil {
		return EffectiveSettings{}, err
	}

	if err := mergeOneLevel(&current, partial); err != nil {
		return EffectiveSettings{}, fmt.Errorf("validate settings patch: %w", err)
	}
	current.SettingsVersion = currentSettingsVersion

	if err := s.writeAtomic(current); err != nil {
		return EffectiveSettings{}, err
	}
	s.cached = nil
	return current, nil
}

func (s *Store) writeAtomic(settings EffectiveSettings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp settings file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename temp settings file: %w", err)
	}
	return nil
}

// mergeOneLevel merges patch over dst one level deep: top-level scalar and
// array fields are replaced wholesale; each nested record field (crawl,
// http, ...) is unmarshaled over its existing value so unset keys within it
// keep their current/default values. Arbitrary recursive merge is
// deliberately not supported (spec.md §9): it would make unset-to-default
// semantics ambiguous.
func mergeOneLevel(dst *EffectiveSettings, patch map[string]json.RawMessage) error {
	for key, raw := range patch {
		var err error
		switch key {
		case "settingsVersion":
			err = json.Unmarshal(raw, &dst.SettingsVersion)
		case "defaultExcludePaths":
			err = json.Unmarshal(raw, &dst.DefaultExcludePaths)
		case "defaultExcludeExtensions":
			err = json.Unmarshal(raw, &dst.DefaultExcludeExtensions)
		case "crawl":
			err = json.Unmarshal(raw, &dst.Crawl)
		case "scrape":
			err = json.Unmarshal(raw, &dst.Scrape)
		case "map":
			err = json.Unmarshal(raw, &dst.Map)
		case "search":
			err = json.Unmarshal(raw, &dst.Search)
		case "extract":
			err = json.Unmarshal(raw, &dst.Extract)
		case "batch":
			err = json.Unmarshal(raw, &dst.Batch)
		case "ask":
			err = json.Unmarshal(raw, &dst.Ask)
		case "http":
			err = json.Unmarshal(raw, &dst.HTTP)
		case "chunking":
			err = json.Unmarshal(raw, &dst.Chunking)
		case "embedding":
			err = json.Unmarshal(raw, &dst.Embedding)
		case "polling":
			err = json.Unmarshal(raw, &dst.Polling)
		default:
			return fmt.Errorf("unknown setting key %q", key)
		}
		if err != nil {
			return fmt.Errorf("unmarshal setting %q: %w", key, err)
		}
	}
	return nil
}
