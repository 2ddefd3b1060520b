// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package docparse

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ContentType mirrors the payload.content_type values spec.md §3 defines for
// a VectorPoint.
type ContentType string

const (
	ContentMarkdown ContentType = "markdown"
	ContentHTML     ContentType = "html"
	ContentText     ContentType = "text"
)

// Result is the text extracted from a local document, ready for the
// chunker. Non-text formats (PDF, DOCX, XLSX, EML) are always normalized to
// ContentText; only .md/.markdown files are tagged ContentMarkdown so the
// chunker's heading-aware sectioning applies.
type Result struct {
	Text        string
	ContentType ContentType
}

// ParseFile routes a local file to the parser for its extension and returns
// its extracted text. Grounded on the teacher's internal/parser dispatcher;
// this version returns a Result instead of printing a preview and threads a
// ContentType through for EmbedPipeline's payload.content_type field.
func ParseFile(path string) (Result, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".pdf":
		text, err := parsePDF(path)
		return Result{Text: text, ContentType: ContentText}, err
	case ".docx":
		text, err := parseDOCX(path)
		return Result{Text: text, ContentType: ContentText}, err
	case ".txt":
		text, err := parseText(path)
		return Result{Text: text, ContentType: ContentText}, err
	case ".md", ".markdown":
		text, err := parseText(path)
		return Result{Text: text, ContentType: ContentMarkdown}, err
	case ".xlsx", ".xls":
		text, err := parseExcel(path)
		return Result{Text: text, ContentType: ContentText}, err
	case ".html", ".htm":
		text, err := parseHTML(path)
		return Result{Text: text, ContentType: ContentHTML}, err
	case ".eml":
		text, err := parseEmail(path)
		return Result{Text: text, ContentType: ContentText}, err
	default:
		return Result{}, fmt.Errorf("unsupported file type: %s", ext)
	}
}

// IsSupportedFile reports whether ParseFile has a parser for path's extension.
func IsSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx", ".txt", ".md", ".markdown", ".xlsx", ".xls", ".html", ".htm", ".eml":
		return true
	default:
		return false
	}
}

// IsTemporaryFile reports whether path looks like an editor lock file or
// swap file (e.g. Office's "~$doc.docx") that should never be ingested.
func IsTemporaryFile(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "~$"):
		return true
	case strings.HasPrefix(base, "._"):
		return true
	case strings.HasSuffix(base, ".tmp"):
		return true
	default:
		return false
	}
}
