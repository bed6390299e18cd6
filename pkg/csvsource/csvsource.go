// Package csvsource parses uploaded CSV content and serves rows by absolute
// row number, which is what resuming an import past its checkpoint needs.
package csvsource

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxFileSize is the maximum allowed CSV file size (100MB).
var MaxFileSize = int64(100 * 1024 * 1024)

var ErrEmptyFile = errors.New("csv file has no header row")

// Document is a fully parsed CSV file: one header row plus data rows.
type Document struct {
	header []string
	rows   [][]string
}

// Parse tokenizes the file. The first non-empty record is the header;
// everything after it is data. Trailing fully-empty rows are dropped so the
// row count matches what an operator sees in a spreadsheet.
func Parse(data []byte) (*Document, error) {
	if int64(len(data)) > MaxFileSize {
		return nil, fmt.Errorf("csv file exceeds %d bytes", MaxFileSize)
	}

	r := csv.NewReader(bytes.NewReader(sanitizeUTF8(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}

	doc := &Document{}
	for _, record := range records {
		if doc.header == nil {
			if isEmptyRow(record) {
				continue
			}
			doc.header = record
			continue
		}
		doc.rows = append(doc.rows, record)
	}
	if doc.header == nil {
		return nil, ErrEmptyFile
	}

	for len(doc.rows) > 0 && isEmptyRow(doc.rows[len(doc.rows)-1]) {
		doc.rows = doc.rows[:len(doc.rows)-1]
	}
	return doc, nil
}

func (d *Document) Header() []string {
	return d.header
}

// RowCount returns the number of data rows, excluding the header.
func (d *Document) RowCount() int {
	return len(d.rows)
}

// Row returns the data row at the zero-based offset.
func (d *Document) Row(n int) ([]string, error) {
	if n < 0 || n >= len(d.rows) {
		return nil, fmt.Errorf("row %d out of range (%d data rows)", n, len(d.rows))
	}
	return d.rows[n], nil
}

// Slice returns up to count data rows starting at the zero-based offset.
func (d *Document) Slice(start, count int) ([][]string, error) {
	if start < 0 || start > len(d.rows) {
		return nil, fmt.Errorf("slice start %d out of range (%d data rows)", start, len(d.rows))
	}
	end := start + count
	if count < 0 || end > len(d.rows) {
		end = len(d.rows)
	}
	return d.rows[start:end], nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
