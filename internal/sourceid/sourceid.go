// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package sourceid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind tags the variant of a SourceId.
type Kind int

const (
	// URL tags an absolute HTTP(S) page, used for crawled/scraped content.
	URL Kind = iota
	// File tags a local, repo-relative document path.
	File
	// Stdin tags content piped in on stdin, keyed by a content digest.
	Stdin
)

// SourceId is the stable key under which a document's chunks live in the
// vector store. Two SourceIds are interchangeable with VectorStore payload
// filters once rendered via String.
type SourceId struct {
	Kind  Kind
	Value string
}

func (s SourceId) String() string { return s.Value }

// FromURL builds a SourceId for an absolute http(s) URL. Callers are expected
// to have already validated/canonicalized the URL (see internal/query for the
// query-side canonicalization rules); this constructor just tags it.
func FromURL(u string) SourceId {
	return SourceId{Kind: URL, Value: u}
}

// FromFile derives a stable repo-relative SourceId for a local path.
// It walks up from the absolute path looking for the nearest enclosing
// version-control root (a directory containing .git). If none is found, the
// path is treated as external to any known repo.
func FromFile(path string) (SourceId, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return SourceId{}, fmt.Errorf("resolve absolute path for %q: %w", path, err)
	}
	abs = filepath.Clean(abs)

	root, repoName, found := findRepoRoot(abs)
	if !found {
		digest := sha256.Sum256([]byte(abs))
		base := filepath.Base(abs)
		value := fmt.Sprintf("%s/external/%s-%s", repoName, base, hex.EncodeToString(digest[:])[:12])
		return SourceId{Kind: File, Value: value}, nil
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return SourceId{}, fmt.Errorf("relativize %q against repo root %q: %w", abs, root, err)
	}
	rel = filepath.ToSlash(rel)
	return SourceId{Kind: File, Value: fmt.Sprintf("%s/%s", repoName, rel)}, nil
}

// findRepoRoot walks up from absPath (a file or directory) looking for a
// directory containing .git. It returns the repo root, its base name, and
// whether one was found. When none is found, it falls back to the current
// working directory's base name so FromFile can still build a stable
// "external/" id.
func findRepoRoot(absPath string) (root string, repoName string, found bool) {
	dir := absPath
	if fi, err := os.Stat(absPath); err == nil && !fi.IsDir() {
		dir = filepath.Dir(absPath)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, filepath.Base(dir), true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", "unknown", false
	}
	return "", filepath.Base(cwd), false
}

// FromStdin derives a deterministic SourceId for piped content. The same
// content yields the same SourceId across runs and machines; only the
// repo-root-derived prefix varies by invocation location.
func FromStdin(content []byte) (SourceId, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return SourceId{}, fmt.Errorf("get working directory: %w", err)
	}
	_, repoName, found := findRepoRoot(cwd)
	if !found {
		repoName = filepath.Base(cwd)
	}

	digest := sha256.Sum256(content)
	value := fmt.Sprintf("%s/stdin/%s", repoName, hex.EncodeToString(digest[:])[:16])
	return SourceId{Kind: Stdin, Value: value}, nil
}

// Domain returns the "domain" payload field for a SourceId: the host for a
// URL kind, or the repo name for File/Stdin kinds.
func (s SourceId) Domain() string {
	switch s.Kind {
	case URL:
		rest := strings.TrimPrefix(s.Value, "https://")
		rest = strings.TrimPrefix(rest, "http://")
		if i := strings.IndexAny(rest, "/?#"); i >= 0 {
			rest = rest[:i]
		}
		return rest
	default:
		if i := strings.Index(s.Value, "/"); i >= 0 {
			return s.Value[:i]
		}
		return s.Value
	}
}
