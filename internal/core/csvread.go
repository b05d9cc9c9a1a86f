package core

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DefaultHeaderSearchRows is how many leading records are scanned for the
// header when ReadOptions leaves it unset. Report exports put a title block
// above the column names.
const DefaultHeaderSearchRows = 20

// ReadOptions controls how an input file is decoded and its header located.
type ReadOptions struct {
	MaxFileSize      int64    // 0 means unlimited
	HeaderSearchRows int      // 0 means DefaultHeaderSearchRows
	Required         []string // columns the header must contain
}

// fallbackEncodings are tried in order when the input is not valid UTF-8.
var fallbackEncodings = []struct {
	name string
	cm   *charmap.Charmap
}{
	{"windows-1252", charmap.Windows1252},
	{"iso-8859-1", charmap.ISO8859_1},
}

// ReadCSVFile opens path and reads it with ReadCSV. Every failure is a
// *FatalError.
func ReadCSVFile(path string, opts ReadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FatalError{Op: "open input", Err: err}
	}
	defer f.Close()

	if st, err := f.Stat(); err == nil {
		if st.IsDir() {
			return nil, &FatalError{Op: "open input", Err: fmt.Errorf("%s is a directory", path)}
		}
		if opts.MaxFileSize > 0 && st.Size() > opts.MaxFileSize {
			return nil, &FatalError{Op: "open input", Err: fmt.Errorf("file too large: %d bytes exceeds limit of %d", st.Size(), opts.MaxFileSize)}
		}
	}

	return ReadCSV(f, filepath.Base(path), opts)
}

// ReadCSV decodes r, locates the header row and returns the data rows.
//
// The text encoding is detected by trying UTF-8, then Windows-1252, then
// ISO-8859-1. A UTF-8 byte order mark is skipped. Blank rows are dropped and
// do not consume a row number.
func ReadCSV(r io.Reader, name string, opts ReadOptions) (*Table, error) {
	counter := NewStreamingCountingReader(NewBOMSkippingReader(r), 0)
	var src io.Reader = counter
	if opts.MaxFileSize > 0 {
		src = io.LimitReader(counter, opts.MaxFileSize+1)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, &FatalError{Op: "read input", Err: err}
	}
	if opts.MaxFileSize > 0 && int64(len(data)) > opts.MaxFileSize {
		return nil, &FatalError{Op: "read input", Err: fmt.Errorf("file too large: exceeds limit of %d bytes", opts.MaxFileSize)}
	}

	text, encName, err := decodeText(data)
	if err != nil {
		return nil, &FatalError{Op: "decode input", Err: err}
	}

	records, err := parseCSV(text)
	if err != nil {
		return nil, &FatalError{Op: "parse input", Err: fmt.Errorf("invalid csv: %w", err)}
	}

	first := firstNonEmpty(records)
	if first < 0 {
		return nil, &FatalError{Op: "parse input", Err: errors.New("empty file")}
	}

	searchRows := opts.HeaderSearchRows
	if searchRows <= 0 {
		searchRows = DefaultHeaderSearchRows
	}

	headerAt := findHeaderInRecords(records, opts.Required, searchRows)
	if headerAt < 0 {
		missing := missingColumns(records[first], opts.Required)
		return nil, &FatalError{Op: "read header", Err: &MissingColumnsError{Columns: missing}}
	}

	header := make([]string, len(records[headerAt]))
	for i, h := range records[headerAt] {
		header[i] = CleanCell(h)
	}

	t := &Table{
		FileName: name,
		Encoding: encName,
		Header:   header,
		Index:    MakeHeaderIndex(header),
		Bytes:    counter.BytesRead,
	}

	num := 0
	for i := headerAt + 1; i < len(records); i++ {
		if isEmptyRow(records[i]) {
			continue
		}
		num++
		t.Rows = append(t.Rows, Row{Number: num, Line: i + 1, Values: records[i]})
	}

	return t, nil
}

// decodeText returns data as UTF-8 text and the name of the source encoding.
func decodeText(data []byte) (string, string, error) {
	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}
	for _, fe := range fallbackEncodings {
		out, err := fe.cm.NewDecoder().Bytes(data)
		if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
			continue
		}
		return string(out), fe.name, nil
	}
	return "", "", errors.New("encoding error: input is not utf-8, windows-1252 or iso-8859-1")
}

func parseCSV(text string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// findHeaderInRecords returns the index of the first record among the first
// maxRows that contains every required column, or -1. With no required
// columns the first non-empty record is the header.
func findHeaderInRecords(records [][]string, required []string, maxRows int) int {
	if len(records) < maxRows {
		maxRows = len(records)
	}

	for i := 0; i < maxRows; i++ {
		if isEmptyRow(records[i]) {
			continue
		}
		if len(missingColumns(records[i], required)) == 0 {
			return i
		}
	}
	return -1
}

// missingColumns lists the required columns absent from header.
func missingColumns(header, required []string) []string {
	idx := MakeHeaderIndex(header)
	var missing []string
	for _, col := range required {
		if _, ok := idx[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

func firstNonEmpty(records [][]string) int {
	for i, rec := range records {
		if !isEmptyRow(rec) {
			return i
		}
	}
	return -1
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
