package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// UnsupportedFormatError reports an import file whose extension maps to
// no known parser. The whole import aborts with zero rows processed.
type UnsupportedFormatError struct {
	Filename string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format %q: upload CSV or XLSX", filepath.Ext(e.Filename))
}

// Parse decodes a raw upload into rows. The filename selects the parser:
// .csv takes the delimited-text path, .xlsx/.xlsm/.xls the spreadsheet
// path. The first line (or worksheet row) is the header row.
func Parse(data []byte, filename string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCSV(data)
	case ".xlsx", ".xlsm", ".xls":
		return parseWorkbook(data)
	default:
		return nil, &UnsupportedFormatError{Filename: filename}
	}
}

// parseCSV reads UTF-8 delimited text, permitting a leading byte-order
// mark. Every record after the header becomes a Row keyed by header
// label; fields beyond the header width are discarded, short records
// leave the trailing columns absent.
func parseCSV(data []byte) ([]Row, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	headers := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		var row Row
		for i, h := range headers {
			if i < len(record) {
				row.Set(h, record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseWorkbook reads the first worksheet. Blank header cells become
// positional placeholders (colN). Numeric cells that are mathematically
// integral render as plain integer strings; empty cells are omitted from
// the row entirely.
func parseWorkbook(data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("col%d", i)
		}
		headers[i] = h
	}

	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		var row Row
		for i, h := range headers {
			if i >= len(record) || record[i] == "" {
				continue
			}
			row.Set(h, renderCell(record[i]))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// renderCell collapses integral numeric cell values to plain integer
// strings ("7.0" -> "7"); everything else passes through untouched.
func renderCell(v string) string {
	if !strings.ContainsAny(v, ".eE") {
		return v
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v
	}
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return v
}
