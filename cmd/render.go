// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/pterm/pterm"

	"osql/cli/internal/querysession"
)

// renderBatch prints one finished batch: a pterm table for the result set,
// followed by any informational or error message. Batches stream out as they
// finish, so each render stands on its own.
func renderBatch(b querysession.Batch) {
	if len(b.Columns) > 0 {
		header := make([]string, 0, len(b.Columns))
		for _, c := range b.Columns {
			header = append(header, c.Name)
		}
		data := pterm.TableData{header}
		for _, row := range b.Rows {
			cells := make([]string, 0, len(row))
			for _, v := range row {
				cells = append(cells, formatCell(v))
			}
			data = append(data, cells)
		}
		_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		pterm.Println(rowCountLine(len(b.Rows)))
	}

	if b.Message != "" {
		if b.IsError {
			pterm.Println(pterm.NewStyle(pterm.FgRed).Sprint(b.Message))
		} else {
			pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint(b.Message))
		}
	}
	pterm.Println()
}

// formatCell renders one value the way sqlcmd-style tools do: NULL for nil,
// plain text otherwise.
func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; print integers without a decimal.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(t)
	}
}

func rowCountLine(n int) string {
	if n == 1 {
		return "(1 row)"
	}
	return fmt.Sprintf("(%d rows)", n)
}
