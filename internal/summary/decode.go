package summary

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is reported for inputs that are neither an OOXML
	// workbook nor delimited text.
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	// ErrEmptyFile is reported for zero-byte uploads.
	ErrEmptyFile = errors.New("file is empty")
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// table is one decoded sheet. Every row in rows has len(header) cells.
type table struct {
	name   string
	header []string
	rows   [][]string
}

// decode turns raw file bytes into tables in the file's native sheet order.
func decode(name string, data []byte) ([]table, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return decodeWorkbook(data)
	case bytes.HasPrefix(data, oleMagic):
		return nil, fmt.Errorf("%w: legacy .xls workbooks must be saved as .xlsx", ErrUnsupportedFormat)
	case ext == ".csv" || ext == ".txt":
		return decodeDelimited(name, data, ',')
	case ext == ".tsv":
		return decodeDelimited(name, data, '\t')
	}
	if ext == "" {
		ext = "(no extension)"
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

func decodeWorkbook(data []byte) ([]table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	cells := newCellReader(f)
	sheets := f.GetSheetList()
	tables := make([]table, 0, len(sheets))
	for _, sheet := range sheets {
		rows, err := cells.rows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		tables = append(tables, newTable(sheet, rows))
	}
	return tables, nil
}

// cellReader reads stored cell values rather than display text, so number
// formats such as "#,##0.00" or "0%" do not hide numeric columns. Cells with
// a date format are converted from their serial number to a timestamp.
type cellReader struct {
	f          *excelize.File
	date1904   bool
	dateStyles map[int]bool
}

func newCellReader(f *excelize.File) *cellReader {
	r := &cellReader{f: f, dateStyles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		r.date1904 = *props.Date1904
	}
	return r
}

func (r *cellReader) rows(sheet string) ([][]string, error) {
	shown, err := r.f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	raw, err := r.f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	for i, row := range raw {
		for j, v := range row {
			row[j] = r.value(sheet, i, j, v, cellAt(shown, i, j))
		}
	}
	return raw, nil
}

func cellAt(rows [][]string, i, j int) string {
	if i < len(rows) && j < len(rows[i]) {
		return rows[i][j]
	}
	return ""
}

func (r *cellReader) value(sheet string, row, col int, raw, shown string) string {
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	// boolean cells store 1 and 0
	if shown == "TRUE" || shown == "FALSE" {
		return shown
	}
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return raw
	}
	styleID, err := r.f.GetCellStyle(sheet, name)
	if err != nil || !r.isDateStyle(styleID) {
		return raw
	}
	t, err := excelize.ExcelDateToTime(serial, r.date1904)
	if err != nil {
		return raw
	}
	return t.Format("2006-01-02 15:04:05")
}

func (r *cellReader) isDateStyle(styleID int) bool {
	if styleID == 0 {
		return false
	}
	if known, ok := r.dateStyles[styleID]; ok {
		return known
	}
	isDate := false
	if style, err := r.f.GetStyle(styleID); err == nil {
		if style.CustomNumFmt != nil {
			isDate = isDateFormatCode(*style.CustomNumFmt)
		} else {
			isDate = isBuiltinDateFormat(style.NumFmt)
		}
	}
	r.dateStyles[styleID] = isDate
	return isDate
}

// isBuiltinDateFormat covers the built-in date and time number format ids,
// including the East Asian locale ranges.
func isBuiltinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode reports whether a custom format code renders a date or
// time. Quoted literals, escaped characters and bracketed sections such as
// colors and locales are ignored.
func isDateFormatCode(code string) bool {
	var sb, bracket strings.Builder
	inQuote, inBracket, escaped := false, false, false
	for _, ch := range strings.ToLower(code) {
		switch {
		case escaped:
			escaped = false
		case inQuote:
			inQuote = ch != '"'
		case inBracket:
			if ch != ']' {
				bracket.WriteRune(ch)
				continue
			}
			inBracket = false
			// elapsed time such as [h]:mm
			if b := bracket.String(); b != "" && strings.Trim(b, "hms") == "" {
				sb.WriteString(b)
			}
			bracket.Reset()
		case ch == '\\':
			escaped = true
		case ch == '"':
			inQuote = true
		case ch == '[':
			inBracket = true
		default:
			sb.WriteRune(ch)
		}
	}
	return strings.ContainsAny(sb.String(), "ydmhs")
}
