package query

import (
	"sort"

	"github.com/starford/dagaz/internal/preset"
)

// DefaultColumns is the projection used when a request names no columns.
var DefaultColumns = []string{preset.FieldFileName, "controlTitle", preset.FieldType, "className"}

// Request is a query as received from a client. Zero columns means the
// default projection; a zero limit means the server's preview limit.
type Request struct {
	Filters []Filter `json:"filters"`
	Columns []string `json:"columns"`
	Limit   int      `json:"limit,omitempty"`
}

// Result is the tabular answer to a Request. Count is the number of
// matching records before the preview limit clipped Results.
type Result struct {
	Count   int      `json:"count"`
	Columns []string `json:"columns"`
	Results [][]any  `json:"results"`
}

// Project maps records onto rows in column order. A property a record
// does not carry projects as nil, never as a shifted cell.
func Project(records []preset.Record, columns []string) [][]any {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		row := make([]any, len(columns))
		for i, col := range columns {
			if v, ok := rec[col]; ok {
				row[i] = v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// PropertyNames returns the sorted union of property keys across the
// records.
func PropertyNames(records []preset.Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
