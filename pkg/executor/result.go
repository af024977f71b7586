package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

const (
	StatusOK    = 200
	StatusError = 500
)

// Result is the outcome of one execution. Failures are reported through
// StatusCode and Error, never as a Go error.
type Result struct {
	StatusCode int
	SQL        string
	Columns    []string
	Rows       [][]any
	Error      string
}

func (r Result) OK() bool {
	return r.StatusCode == StatusOK
}

// HasRows reports whether the execution succeeded with at least one row.
func (r Result) HasRows() bool {
	return r.OK() && len(r.Rows) > 0
}

// Records returns the rows keyed by column name, with values made JSON-safe.
func (r Result) Records() []map[string]any {
	records := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				rec[col] = normalizeValue(row[i])
			}
		}
		records = append(records, rec)
	}
	return records
}

// RecordsJSON encodes the rows as a JSON array of objects.
func (r Result) RecordsJSON() (string, error) {
	b, err := json.Marshal(r.Records())
	if err != nil {
		return "", fmt.Errorf("failed to encode records: %w", err)
	}
	return string(b), nil
}

// Table returns the header row followed by the data rows.
func (r Result) Table() [][]any {
	table := make([][]any, 0, len(r.Rows)+1)
	header := make([]any, len(r.Columns))
	for i, c := range r.Columns {
		header[i] = c
	}
	table = append(table, header)
	for _, row := range r.Rows {
		out := make([]any, len(row))
		for i, v := range row {
			out[i] = normalizeValue(v)
		}
		table = append(table, out)
	}
	return table
}

// Markdown renders the result as a markdown table.
func (r Result) Markdown() string {
	if !r.OK() {
		return fmt.Sprintf("Error: %s", r.Error)
	}
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetHeader(r.Columns)
	for _, row := range r.Rows {
		values := make([]string, len(r.Columns))
		for i := range r.Columns {
			if i < len(row) {
				values[i] = formatValue(row[i])
			}
		}
		table.Append(values)
	}
	table.Render()
	return buf.String()
}

// Format renders up to maxRows rows as compact text for a language model prompt.
func (r Result) Format(maxRows int) string {
	if !r.OK() {
		return fmt.Sprintf("Error: %s", r.Error)
	}
	if len(r.Rows) == 0 {
		return "Query returned no results."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Columns: %s\n", strings.Join(r.Columns, ", ")))
	sb.WriteString(fmt.Sprintf("Rows (%d total):\n", len(r.Rows)))
	displayRows := min(len(r.Rows), maxRows)
	for i := range displayRows {
		values := make([]string, len(r.Rows[i]))
		for j, v := range r.Rows[i] {
			values[j] = formatValueForLLM(v)
		}
		sb.WriteString(strings.Join(values, " | ") + "\n")
	}
	if len(r.Rows) > maxRows {
		sb.WriteString(fmt.Sprintf("... and %d more rows\n", len(r.Rows)-maxRows))
	}
	return sb.String()
}

func formatValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// formatValueForLLM rounds floats to 2 decimal places; long decimals tend to be
// read as encoded values.
func formatValueForLLM(v any) string {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case float32:
		if val == float32(int32(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case nil:
		return ""
	default:
		s := fmt.Sprintf("%v", v)
		if len(s) > 100 {
			s = s[:97] + "..."
		}
		return s
	}
}
