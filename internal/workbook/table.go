// Package workbook reads and writes the worker's spreadsheets as plain
// header+rows tables and parses HTML grids into the same shape.
package workbook

import "strings"

// Table is a header row followed by data rows. Every row has len(Headers) cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable returns an empty table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: append([]string(nil), headers...)}
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of the named column, or -1. Names are compared
// after trimming surrounding space.
func (t *Table) Index(name string) int {
	want := strings.TrimSpace(name)
	for i, h := range t.Headers {
		if strings.TrimSpace(h) == want {
			return i
		}
	}
	return -1
}

// Has reports whether every named column exists.
func (t *Table) Has(names ...string) bool {
	for _, n := range names {
		if t.Index(n) < 0 {
			return false
		}
	}
	return true
}

// Value returns the named cell of row, or "" when the column is absent.
func (t *Table) Value(row []string, name string) string {
	i := t.Index(name)
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Append adds a row, padding or truncating it to the header width.
func (t *Table) Append(row []string) {
	t.Rows = append(t.Rows, fit(row, len(t.Headers)))
}

// AddColumn appends a column holding value in every existing row.
func (t *Table) AddColumn(name, value string) {
	t.Headers = append(t.Headers, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], value)
	}
}

// MoveFirst moves the named column to position 0. Missing columns are ignored.
func (t *Table) MoveFirst(name string) {
	i := t.Index(name)
	if i <= 0 {
		return
	}
	t.Headers = moveToFront(t.Headers, i)
	for r := range t.Rows {
		t.Rows[r] = moveToFront(t.Rows[r], i)
	}
}

// Project returns the rows rearranged to the given header order; columns the
// table lacks come out empty.
func (t *Table) Project(headers []string) [][]string {
	idx := make([]int, len(headers))
	for i, h := range headers {
		idx[i] = t.Index(h)
	}
	out := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		projected := make([]string, len(headers))
		for i, j := range idx {
			if j >= 0 && j < len(row) {
				projected[i] = row[j]
			}
		}
		out[r] = projected
	}
	return out
}

// UnionHeaders returns every header of the tables in order of first appearance.
func UnionHeaders(tables ...*Table) []string {
	seen := make(map[string]bool)
	var headers []string
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, h := range t.Headers {
			key := strings.TrimSpace(h)
			if seen[key] {
				continue
			}
			seen[key] = true
			headers = append(headers, h)
		}
	}
	return headers
}

// Concat stacks tables under their union headers, keeping every row.
func Concat(tables ...*Table) *Table {
	out := NewTable(UnionHeaders(tables...)...)
	for _, t := range tables {
		if t == nil {
			continue
		}
		out.Rows = append(out.Rows, t.Project(out.Headers)...)
	}
	return out
}

func fit(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

func moveToFront(s []string, i int) []string {
	out := make([]string, 0, len(s))
	out = append(out, s[i])
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}
