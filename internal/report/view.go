package report

import (
	"fmt"

	"treasury/internal/format"
)

// Cell is one rendered table cell.
type Cell struct {
	Text    string
	Numeric bool
	Invalid bool
}

// Row is one rendered table row.
type Row struct {
	Cells []Cell
}

// Section is a run of rows with an optional total row. Flat reports have a
// single section with an empty key.
type Section struct {
	Key   string
	Rows  []Row
	Total *Row
}

// View is a report ready for display.
type View struct {
	Kind       Definition
	Date       string
	Columns    []Column
	Sections   []Section
	GrandTotal *Row
	Payload    Payload
	Warnings   []string
	// Notice replaces the table when the report could not be loaded.
	Notice string
}

// Empty reports whether the view has nothing to show.
func (v *View) Empty() bool {
	return v == nil || v.Payload.Empty()
}

// Build normalizes, totals and formats a decoded payload.
func Build(def Definition, date string, p Payload, cur *format.Currency) *View {
	v := &View{
		Kind:    def,
		Date:    date,
		Columns: def.Columns,
		Payload: p,
	}
	if p.Empty() {
		return v
	}

	if !p.Grouped {
		totals, err := Sum(p.Items, def.Totals)
		v.warn(err)
		v.Sections = []Section{{
			Rows:  v.rows(p.Items, cur),
			Total: v.totalRow("Total", totals, cur),
		}}
		return v
	}

	groupTotals, grand, err := SumGroups(p.Groups, def.Totals)
	for i, g := range p.Groups {
		gt := groupTotals[i]
		v.warn(gt.Err)
		v.Sections = append(v.Sections, Section{
			Key:   g.Key,
			Rows:  v.rows(g.Items, cur),
			Total: v.totalRow("Group Total", gt.Totals, cur),
		})
	}
	v.warn(err)
	v.GrandTotal = v.totalRow("Grand Total", grand, cur)
	return v
}

func (v *View) rows(items []LineItem, cur *format.Currency) []Row {
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		cells := make([]Cell, len(v.Columns))
		for i, col := range v.Columns {
			cells[i] = v.cell(col, item[col.Field], cur)
		}
		rows = append(rows, Row{Cells: cells})
	}
	return rows
}

func (v *View) cell(col Column, raw any, cur *format.Currency) Cell {
	switch col.Format {
	case FormatCurrency:
		return v.numberCell(col, Number(raw), cur.Format)
	case FormatPercent:
		return v.numberCell(col, Number(raw), format.Percent)
	case FormatRate:
		return Cell{Text: format.Rate(Text(raw)), Numeric: true}
	default:
		return Cell{Text: Text(raw)}
	}
}

func (v *View) numberCell(col Column, n float64, render func(float64) (string, error)) Cell {
	s, err := render(n)
	if err != nil {
		v.warn(fmt.Errorf("field %s: %w", col.Field, err))
		return Cell{Text: "—", Numeric: true, Invalid: true}
	}
	return Cell{Text: s, Numeric: true}
}

func (v *View) totalRow(label string, totals Totals, cur *format.Currency) *Row {
	cells := make([]Cell, len(v.Columns))
	for i, col := range v.Columns {
		if i == 0 {
			cells[i] = Cell{Text: label}
			continue
		}
		if !v.Kind.IsTotal(col.Field) {
			continue
		}
		n := totals.Get(col.Field)
		switch col.Format {
		case FormatPercent:
			cells[i] = v.numberCell(col, n, format.Percent)
		default:
			cells[i] = v.numberCell(col, n, cur.Format)
		}
	}
	return &Row{Cells: cells}
}

func (v *View) warn(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	for _, w := range v.Warnings {
		if w == msg {
			return
		}
	}
	v.Warnings = append(v.Warnings, msg)
}
