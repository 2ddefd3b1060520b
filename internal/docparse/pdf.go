// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package docparse

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// parsePDF extracts text from a PDF file using go-fitz (MuPDF).
func parsePDF(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var text strings.Builder
	numPages := doc.NumPage()
	for i := 0; i < numPages; i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			continue
		}
		text.WriteString(pageText)
		if i < numPages-1 {
			text.WriteString("\n\n")
		}
	}

	extracted := strings.TrimSpace(text.String())
	if extracted == "" {
		return "", fmt.Errorf("no text extracted from pdf: %s", path)
	}
	return extracted, nil
}
