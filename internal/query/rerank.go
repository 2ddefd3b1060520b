// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package query

import (
	"regexp"
	"strings"
	"time"

	"github.com/northbound-system/axon/internal/vectorstore"
)

type urlGroup struct {
	canonicalURL string
	hits         []vectorstore.ScoredPoint
}

// groupByURL buckets scored points by their canonicalized URL, keeping
// each bucket's hits sorted by score descending so the "top chunk" used by
// rerank is always hits[0].
func groupByURL(hits []vectorstore.ScoredPoint) []urlGroup {
	index := make(map[string]int)
	var groups []urlGroup

	for _, h := range hits {
		view := vectorstore.PayloadView(h.Payload)
		rawURL := view.GetString("url", "")
		canon := canonicalize(rawURL)

		i, ok := index[canon]
		if !ok {
			index[canon] = len(groups)
			groups = append(groups, urlGroup{canonicalURL: canon})
			i = len(groups) - 1
		}
		groups[i].hits = append(groups[i].hits, h)
	}

	for i := range groups {
		hits := groups[i].hits
		for a := 1; a < len(hits); a++ {
			for b := a; b > 0 && hits[b].Score > hits[b-1].Score; b-- {
				hits[b], hits[b-1] = hits[b-1], hits[b]
			}
		}
	}
	return groups
}

// rerank computes the fusion score spec.md §4.8 step 5 describes for one
// URL group and maps it into a ResultItem carrying the top chunk's fields.
func rerank(g urlGroup, queryTerms []string) ResultItem {
	top := g.hits[0]
	view := vectorstore.PayloadView(top.Payload)

	base := float64(top.Score)

	matched, titleMatched := 0, 0
	for _, term := range queryTerms {
		found, foundInTitle := false, false
		for _, h := range g.hits {
			v := vectorstore.PayloadView(h.Payload)
			text := strings.ToLower(v.GetString("chunk_text", ""))
			header := strings.ToLower(v.GetString("chunk_header", ""))
			title := strings.ToLower(v.GetString("title", ""))
			if strings.Contains(text, term) {
				found = true
			}
			if strings.Contains(header, term) || strings.Contains(title, term) {
				foundInTitle = true
			}
		}
		if found {
			matched++
		}
		if foundInTitle {
			titleMatched++
		}
	}

	total := len(queryTerms)
	if total > 0 {
		base += 0.16 * minf(1, float64(matched)/float64(total))
		base += 0.06 * minf(1, float64(titleMatched)/float64(total))
	}

	query := strings.Join(queryTerms, " ")
	if len(query) >= 6 && total >= 2 {
		for _, h := range g.hits {
			v := vectorstore.PayloadView(h.Payload)
			if strings.Contains(strings.ToLower(v.GetString("chunk_text", "")), query) {
				base += 0.08
				break
			}
		}
	}

	allChunks := make([]ChunkHit, len(g.hits))
	for i, h := range g.hits {
		v := vectorstore.PayloadView(h.Payload)
		allChunks[i] = ChunkHit{
			ChunkIndex:  int(v.GetNumber("chunk_index", 0)),
			ChunkHeader: v.GetString("chunk_header", ""),
			ChunkText:   v.GetString("chunk_text", ""),
			Score:       h.Score,
		}
	}

	return ResultItem{
		URL:            g.canonicalURL,
		Title:          view.GetString("title", ""),
		Score:          float32(base),
		ChunkHeader:    view.GetString("chunk_header", ""),
		ChunkText:      view.GetString("chunk_text", ""),
		ChunkIndex:     int(view.GetNumber("chunk_index", 0)),
		TotalChunks:    int(view.GetNumber("total_chunks", 0)),
		Domain:         view.GetString("domain", ""),
		SourceCommand:  view.GetString("source_command", ""),
		FileModifiedAt: view.GetString("file_modified_at", ""),
		ScrapedAt:      view.GetString("scraped_at", ""),
		SourcePathRel:  view.GetString("source_path_rel", ""),
		AllChunks:      allChunks,
	}
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

var markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
var markdownHeadingRe = regexp.MustCompile(`^#{1,6}\s+`)
var horizontalRuleRe = regexp.MustCompile(`^(-{3,}|\*{3,}|_{3,})$`)

// extractSnippet implements spec.md §4.8's snippet-selection rule: strip
// link syntax/headings/rules, keep the first substantive line, else
// truncate to 120 chars.
func extractSnippet(chunkText string) string {
	stripped := markdownLinkRe.ReplaceAllString(chunkText, "$1")

	for _, line := range strings.Split(stripped, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if markdownHeadingRe.MatchString(line) {
			line = markdownHeadingRe.ReplaceAllString(line, "")
		}
		if horizontalRuleRe.MatchString(line) {
			continue
		}
		words := strings.Fields(line)
		if len(words) >= 2 && len(line) >= 10 {
			return line
		}
	}

	flat := strings.Join(strings.Fields(stripped), " ")
	if len(flat) > 120 {
		return flat[:120]
	}
	return flat
}

// filterTemporal keeps only items whose fileModifiedAt/scrapedAt falls on
// the same UTC calendar day as target.
func filterTemporal(items []ResultItem, target time.Time) []ResultItem {
	day := target.UTC().Format("2006-01-02")
	out := make([]ResultItem, 0, len(items))
	for _, item := range items {
		stamp := item.ScrapedAt
		if item.FileModifiedAt != "" {
			stamp = item.FileModifiedAt
		}
		t, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			continue
		}
		if t.UTC().Format("2006-01-02") == day {
			out = append(out, item)
		}
	}
	return out
}
