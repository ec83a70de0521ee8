// Converts between excelize workbooks and entity.Record rows.

package sheet

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hirot01/excel-db-app/internal/storage/entity"
	"github.com/xuri/excelize/v2"
)

// timeLayouts are tried in order for textual updated_at cells.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// decode reads the items sheet of f. Errors are *LayoutError.
func decode(f *excelize.File) ([]entity.Record, error) {
	idx, err := f.GetSheetIndex(SheetName)
	if err != nil || idx < 0 {
		return nil, &LayoutError{Reason: fmt.Sprintf("sheet %q not found (have %s)", SheetName, strings.Join(f.GetSheetList(), ", "))}
	}
	rows, err := f.GetRows(SheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &LayoutError{Reason: "failed to read rows: " + err.Error()}
	}
	if len(rows) == 0 {
		return nil, &LayoutError{Row: 1, Reason: "missing header row"}
	}
	if err := checkHeader(rows[0]); err != nil {
		return nil, err
	}

	out := make([]entity.Record, 0, len(rows)-1)
	seen := make(map[int64]int, len(rows)-1)
	for i, row := range rows[1:] {
		rowNum := i + 2
		if isBlank(row) {
			continue
		}
		rec, err := decodeRow(row, rowNum)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[rec.ID]; ok {
			return nil, &LayoutError{Row: rowNum, Column: "id", Reason: fmt.Sprintf("duplicate id %d (first seen on row %d)", rec.ID, prev)}
		}
		seen[rec.ID] = rowNum
		out = append(out, rec)
	}
	return out, nil
}

func checkHeader(row []string) error {
	want := Headers()
	got := trimTrailingBlank(row)
	for i, name := range want {
		cell := ""
		if i < len(got) {
			cell = strings.TrimSpace(got[i])
		}
		if cell != name {
			if cell == "" {
				return &LayoutError{Row: 1, Column: name, Reason: "missing column"}
			}
			return &LayoutError{Row: 1, Column: name, Reason: fmt.Sprintf("unexpected header %q", cell)}
		}
	}
	if len(got) > len(want) {
		return &LayoutError{Row: 1, Reason: fmt.Sprintf("unexpected extra column %q", strings.TrimSpace(got[len(want)]))}
	}
	return nil
}

func decodeRow(row []string, rowNum int) (entity.Record, error) {
	if extra := trimTrailingBlank(row); len(extra) > len(columns) {
		return entity.Record{}, &LayoutError{Row: rowNum, Reason: "value beyond the last column"}
	}
	cell := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	var rec entity.Record

	idCell := strings.TrimSpace(cell(0))
	if idCell == "" {
		return rec, &LayoutError{Row: rowNum, Column: "id", Reason: "empty id"}
	}
	id, ok := parseInteger(idCell)
	if !ok {
		return rec, &LayoutError{Row: rowNum, Column: "id", Reason: fmt.Sprintf("%q is not an integer", idCell)}
	}
	if id < 1 {
		return rec, &LayoutError{Row: rowNum, Column: "id", Reason: fmt.Sprintf("id %d is not positive", id)}
	}
	rec.ID = id
	rec.Name = cell(1)
	rec.Category = cell(2)

	if q := strings.TrimSpace(cell(3)); q != "" {
		n, ok := parseInteger(q)
		if !ok {
			return rec, &LayoutError{Row: rowNum, Column: "quantity", Reason: fmt.Sprintf("%q is not an integer", q)}
		}
		if n < 0 {
			return rec, &LayoutError{Row: rowNum, Column: "quantity", Reason: fmt.Sprintf("negative quantity %d", n)}
		}
		rec.Quantity = n
	}

	ts, err := parseTime(strings.TrimSpace(cell(4)))
	if err != nil {
		return rec, &LayoutError{Row: rowNum, Column: "updated_at", Reason: err.Error()}
	}
	rec.UpdatedAt = ts
	return rec, nil
}

// parseInteger accepts base-10 integers and floats without a fractional part,
// which is how spreadsheet software often stores whole numbers.
func parseInteger(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date serial %q: %w", s, err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%q is not a timestamp", s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func isBlank(row []string) bool {
	return len(trimTrailingBlank(row)) == 0
}

func trimTrailingBlank(row []string) []string {
	n := len(row)
	for n > 0 && strings.TrimSpace(row[n-1]) == "" {
		n--
	}
	return row[:n]
}

// encode builds a workbook holding only the items sheet.
func encode(records []entity.Record) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	hdr := make([]any, len(columns))
	for i, c := range columns {
		hdr[i] = c.Name
	}
	if err := f.SetSheetRow(SheetName, "A1", &hdr); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	for i := range records {
		r := &records[i]
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		row := []any{r.ID, r.Name, r.Category, r.Quantity, formatTime(r.UpdatedAt)}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", r.ID, err)
		}
	}
	if err := f.SetColWidth(SheetName, "B", "C", 24); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.SetColWidth(SheetName, "E", "E", 32); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func encodeBytes(records []entity.Record) ([]byte, error) {
	f, err := encode(records)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// checkRecords rejects rows that would produce a file Load refuses.
func checkRecords(records []entity.Record) error {
	seen := make(map[int64]struct{}, len(records))
	for i := range records {
		r := &records[i]
		if r.ID < 1 {
			return fmt.Errorf("record %d: id must be positive", r.ID)
		}
		if _, ok := seen[r.ID]; ok {
			return fmt.Errorf("duplicate id %d", r.ID)
		}
		seen[r.ID] = struct{}{}
		if r.Quantity < 0 {
			return fmt.Errorf("record %d: negative quantity %d", r.ID, r.Quantity)
		}
	}
	return nil
}
