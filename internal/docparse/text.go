// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package docparse

import (
	"fmt"
	"os"
)

// parseText reads a plain text or markdown file verbatim.
func parseText(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text file: %w", err)
	}
	if len(content) == 0 {
		return "", fmt.Errorf("no content in text file: %s", path)
	}
	return string(content), nil
}
