package core

import "strings"

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

// Row is one data row of an input table.
type Row struct {
	Number int      // 1-based position among data rows
	Line   int      // 1-based CSV record number in the file, blank lines excluded
	Values []string // raw cells
}

// Table is a decoded CSV input with its header located.
type Table struct {
	FileName string
	Encoding string
	Header   []string
	Index    HeaderIndex
	Rows     []Row
	Bytes    int64
}

// Cell returns the value of column col in row. ok is false when the
// column is not in the header or the row is too short to contain it.
func (t *Table) Cell(row Row, col string) (string, bool) {
	i, found := t.Index[strings.ToLower(col)]
	if !found || i >= len(row.Values) {
		return "", false
	}
	return row.Values[i], true
}

// RowMap returns the row keyed by header name, for error reports.
func (t *Table) RowMap(row Row) map[string]string {
	m := make(map[string]string, len(t.Header))
	for i, h := range t.Header {
		if h == "" {
			continue
		}
		if i < len(row.Values) {
			m[h] = row.Values[i]
		} else {
			m[h] = ""
		}
	}
	return m
}
