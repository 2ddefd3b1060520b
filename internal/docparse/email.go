// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package docparse

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mnako/letters"
)

// parseEmail extracts a text rendition (headers + body) from an EML file.
func parseEmail(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open eml: %w", err)
	}
	defer file.Close()

	email, err := letters.ParseEmail(file)
	if err != nil {
		return "", fmt.Errorf("parse eml: %w", err)
	}

	var out strings.Builder
	if email.Headers.Subject != "" {
		fmt.Fprintf(&out, "Subject: %s\n", email.Headers.Subject)
	}
	if len(email.Headers.From) > 0 {
		from := email.Headers.From[0]
		if from.Name != "" {
			fmt.Fprintf(&out, "Sender: %s <%s>\n", from.Name, from.Address)
		} else {
			fmt.Fprintf(&out, "Sender: %s\n", from.Address)
		}
	}
	if !email.Headers.Date.IsZero() {
		fmt.Fprintf(&out, "Date: %s\n", email.Headers.Date.Format(time.RFC3339))
	}
	out.WriteString("\n")

	body := email.Text
	if body == "" {
		body = email.HTML
	}
	out.WriteString(body)

	result := strings.TrimSpace(out.String())
	if result == "" {
		return "", fmt.Errorf("no content extracted from eml: %s", path)
	}
	return result, nil
}
