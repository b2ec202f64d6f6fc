// Package export turns report payloads into flat spreadsheet records.
package export

import (
	"fmt"
	"io"
	"math"
	"regexp"

	"github.com/xuri/excelize/v2"

	"treasury/internal/report"
)

// ContentType is the MIME type of an xlsx workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Record is one exported row. Numeric columns hold float64, text columns
// hold string.
type Record map[string]any

// Flatten concatenates every line item of p, groups in API order, keeping
// only the projected columns. Group keys are dropped.
func Flatten(p report.Payload, columns []report.Column) []Record {
	items := p.All()
	out := make([]Record, 0, len(items))
	for _, item := range items {
		rec := make(Record, len(columns))
		for _, col := range columns {
			if col.Numeric() {
				rec[col.Field] = item.Number(col.Field)
			} else {
				rec[col.Field] = item.Text(col.Field)
			}
		}
		out = append(out, rec)
	}
	return out
}

// Regroup groups records by keyOf, keeping first-seen key order.
func Regroup(records []Record, keyOf func(Record) string) []report.Group {
	var groups []report.Group
	index := make(map[string]int)
	for _, rec := range records {
		key := keyOf(rec)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, report.Group{Key: key})
		}
		groups[i].Items = append(groups[i].Items, report.LineItem(rec))
	}
	return groups
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName returns "<kind>-<date>.xlsx" with unsafe characters replaced.
func FileName(kind, date string) string {
	return unsafeFileChars.ReplaceAllString(kind+"-"+date, "_") + ".xlsx"
}

// Table is the header row and data rows of an export.
type Table struct {
	Headers []string
	Rows    [][]any
	// Warnings lists cells left empty because their value was not a
	// finite number.
	Warnings []string
}

// Tabulate lays records out in column order. A non-finite number becomes
// an empty (nil) cell and a warning.
func Tabulate(records []Record, columns []report.Column) Table {
	t := Table{Headers: make([]string, len(columns)), Rows: make([][]any, 0, len(records))}
	for i, col := range columns {
		t.Headers[i] = col.Header
	}
	for r, rec := range records {
		row := make([]any, len(columns))
		for i, col := range columns {
			v := rec[col.Field]
			if n, ok := v.(float64); ok && (math.IsNaN(n) || math.IsInf(n, 0)) {
				t.Warnings = append(t.Warnings, fmt.Sprintf("row %d, %s: not a finite number", r+1, col.Header))
				v = nil
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// ForReport flattens p with the kind's export projection.
func ForReport(def report.Definition, p report.Payload) Table {
	return Tabulate(Flatten(p, def.Export), def.Export)
}

// SheetFor returns the worksheet name used for def.
func SheetFor(def report.Definition) string {
	if def.Sheet != "" {
		return def.Sheet
	}
	return def.Title
}

// WriteXLSX writes t as a single-sheet workbook.
func WriteXLSX(w io.Writer, sheet string, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Report"
	}
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}

	header := make([]any, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
