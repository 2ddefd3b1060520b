// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunk

import (
	"strings"
	"testing"
)

func TestChunk_EmptyText(t *testing.T) {
	chunks := Chunk("   \n\t  ", DefaultOptions())
	if len(chunks) != 0 {
		t.Errorf("Expected 0 chunks for blank text, got %d", len(chunks))
	}
}

func TestChunk_ShortText(t *testing.T) {
	text := "This is a short document that should not be split."
	chunks := Chunk(text, DefaultOptions())

	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk for short text, got %d", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("Chunk content mismatch. Expected: %q, Got: %q", text, chunks[0].Text)
	}
	if chunks[0].TotalChunks != 1 {
		t.Errorf("Expected TotalChunks=1, got %d", chunks[0].TotalChunks)
	}
}

func TestChunk_IndexingIsContiguous(t *testing.T) {
	paragraph := "This is a sample paragraph. It contains multiple sentences. Each sentence ends with a period.\n\n"
	text := strings.Repeat(paragraph, 60)
	chunks := Chunk(text, DefaultOptions())

	if len(chunks) < 2 {
		t.Fatalf("Expected at least 2 chunks for long text, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("Chunk %d has Index=%d, want %d", i, c.Index, i)
		}
		if c.TotalChunks != len(chunks) {
			t.Errorf("Chunk %d has TotalChunks=%d, want %d", i, c.TotalChunks, len(chunks))
		}
	}
}

func TestChunk_MaxSizeRespected(t *testing.T) {
	opts := DefaultOptions()
	text := strings.Repeat("word ", 2000)
	chunks := Chunk(text, opts)

	for i, c := range chunks {
		if len(c.Text) > opts.MaxChunkSize {
			t.Errorf("Chunk %d exceeds MaxChunkSize: len=%d max=%d", i, len(c.Text), opts.MaxChunkSize)
		}
	}
}

func TestChunk_HeadingsBecomeHeaders(t *testing.T) {
	text := "# Auth\n\nUse bearer tokens via the `Authorization` header.\n\n## Refresh\n\nTokens expire after one hour."
	chunks := Chunk(text, DefaultOptions())

	if len(chunks) == 0 {
		t.Fatal("Expected at least 1 chunk")
	}
	if chunks[0].Header != "Auth" {
		t.Errorf("Expected first chunk header %q, got %q", "Auth", chunks[0].Header)
	}

	foundRefresh := false
	for _, c := range chunks {
		if c.Header == "Refresh" {
			foundRefresh = true
		}
	}
	if !foundRefresh {
		t.Errorf("Expected a chunk headed by %q", "Refresh")
	}
}

func TestChunk_MinSizeMergesNonFinalShortChunks(t *testing.T) {
	opts := DefaultOptions()
	opts.MinChunkSize = 80
	text := "A reasonably long opening paragraph that clears the minimum chunk size threshold on its own merits.\n\ntiny\n\nAnother reasonably long closing paragraph that also clears the minimum chunk size threshold easily."
	chunks := Chunk(text, opts)

	for i, c := range chunks {
		isLast := i == len(chunks)-1
		if !isLast && len(c.Text) < opts.MinChunkSize {
			t.Errorf("Non-final chunk %d is shorter than MinChunkSize: len=%d", i, len(c.Text))
		}
	}
}

func TestChunk_NoHeadingsSingleSection(t *testing.T) {
	text := "Paragraph one.\n\nParagraph two.\n\nParagraph three."
	chunks := Chunk(text, DefaultOptions())

	for _, c := range chunks {
		if c.Header != "" {
			t.Errorf("Expected no header for heading-less document, got %q", c.Header)
		}
	}
}
