// Package importer ingests heterogeneous CSV/XLSX files by fuzzy-matching
// column headers onto canonical fields and driving per-row validation and
// insertion. Partial success is the expected outcome: failed rows are
// recorded and the batch continues.
package importer

import "strings"

// Cell is one header/value pair of an import row.
type Cell struct {
	Key   string
	Value string
}

// Row is an ordered association list from header label to cell value.
// Absent cells are simply not present, which distinguishes "column
// missing" from "value blank" during alias lookups.
type Row struct {
	cells []Cell
}

// Set appends a cell. Keys are kept in file order; duplicates are allowed
// and the first occurrence wins on lookup.
func (r *Row) Set(key, value string) {
	r.cells = append(r.cells, Cell{Key: key, Value: value})
}

// Get resolves a canonical field by trying each alias in order as an
// exact key, then retrying all aliases case-insensitively. Alias order
// encodes priority. It returns the first hit's trimmed value — a present
// but blank cell is a hit — or "" when nothing matches.
func (r Row) Get(aliases ...string) string {
	for _, alias := range aliases {
		for _, c := range r.cells {
			if c.Key == alias {
				return strings.TrimSpace(c.Value)
			}
		}
	}
	for _, alias := range aliases {
		for _, c := range r.cells {
			if strings.EqualFold(c.Key, alias) {
				return strings.TrimSpace(c.Value)
			}
		}
	}
	return ""
}

// Has reports whether any of the aliases matches a present cell.
func (r Row) Has(aliases ...string) bool {
	for _, alias := range aliases {
		for _, c := range r.cells {
			if strings.EqualFold(c.Key, alias) {
				return true
			}
		}
	}
	return false
}

// Len returns the number of present cells.
func (r Row) Len() int { return len(r.cells) }
