// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package docparse

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// parseExcel flattens every sheet's rows into "Header: Value, ..." lines, one
// per row, so the chunker sees prose rather than a grid.
func parseExcel(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open excel: %w", err)
	}
	defer f.Close()

	var out strings.Builder
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("no sheets found in %s", path)
	}

	for idx, sheet := range sheets {
		if idx > 0 {
			out.WriteString("\n\n")
		}
		fmt.Fprintf(&out, "Sheet: %s\n", sheet)

		rows, err := f.GetRows(sheet)
		if err != nil {
			fmt.Fprintf(&out, "(unable to read sheet %s: %v)\n", sheet, err)
			continue
		}
		if len(rows) == 0 {
			continue
		}

		headers := rows[0]
		if len(headers) == 0 {
			continue
		}

		for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
			row := rows[rowIdx]
			var parts []string
			for col, header := range headers {
				if col >= len(row) {
					continue
				}
				value := strings.TrimSpace(row[col])
				if value == "" {
					continue
				}
				name := strings.TrimSpace(header)
				if name == "" {
					name = fmt.Sprintf("Column %d", col+1)
				}
				parts = append(parts, fmt.Sprintf("%s: %s", name, value))
			}
			if len(parts) > 0 {
				fmt.Fprintf(&out, "Row %d: %s\n", rowIdx+1, strings.Join(parts, ", "))
			}
		}
	}

	result := strings.TrimSpace(out.String())
	if result == "" {
		return "", fmt.Errorf("no content extracted from excel: %s", path)
	}
	return result, nil
}
