package history

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Table is a parsed CSV file: a header row and string cells.
// Rows are padded or cut to the header width.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of column, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Get returns the cell at row and column, or "" when the column is unknown.
func (t *Table) Get(row int, column string) string {
	i := t.Index(column)
	if i < 0 || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return t.Rows[row][i]
}

// Float parses the cell at row and column. ok is false for empty or
// non-numeric cells.
func (t *Table) Float(row int, column string) (v float64, ok bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(t.Get(row, column)), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Records returns the rows as column-name maps.
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, len(t.Rows))
	for r, row := range t.Rows {
		rec := make(map[string]string, len(t.Columns))
		for i, c := range t.Columns {
			rec[c] = row[i]
		}
		out[r] = rec
	}
	return out
}

// where returns a table holding the rows for which keep is true.
func (t *Table) where(keep func(row int) bool) *Table {
	out := &Table{Columns: t.Columns, Rows: make([][]string, 0)}
	for r, row := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

func emptyTable() *Table {
	return &Table{Columns: []string{}, Rows: [][]string{}}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// parseCSV reads a CSV document with a header row.
func parseCSV(data []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return emptyTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	t := &Table{Columns: make([]string, len(header)), Rows: [][]string{}}
	for i, h := range header {
		t.Columns[i] = strings.TrimSpace(h)
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(t.Rows)+1, err)
		}

		row := make([]string, len(header))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
