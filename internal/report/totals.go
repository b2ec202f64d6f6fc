package report

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonFinite is returned when a summed field is NaN or infinite.
var ErrNonFinite = errors.New("non-finite total")

// Totals maps a field name to the sum of that field.
type Totals map[string]float64

// Get returns the total for field, 0 when absent.
func (t Totals) Get(field string) float64 {
	return t[field]
}

// Sum folds items into totals for the given fields, starting from zero.
// An empty sequence yields zero for every field.
func Sum(items []LineItem, fields []string) (Totals, error) {
	totals := make(Totals, len(fields))
	for _, f := range fields {
		totals[f] = 0
	}
	for _, item := range items {
		for _, f := range fields {
			totals[f] += item.Number(f)
		}
	}

	for _, f := range fields {
		if v := totals[f]; math.IsNaN(v) || math.IsInf(v, 0) {
			return totals, fmt.Errorf("field %s: %w", f, ErrNonFinite)
		}
	}
	return totals, nil
}

// GroupTotals is the total of one group.
type GroupTotals struct {
	Key    string
	Totals Totals
	Err    error
}

// SumGroups computes totals per group independently, plus a grand total
// over every group.
func SumGroups(groups []Group, fields []string) ([]GroupTotals, Totals, error) {
	out := make([]GroupTotals, 0, len(groups))
	for _, g := range groups {
		t, err := Sum(g.Items, fields)
		out = append(out, GroupTotals{Key: g.Key, Totals: t, Err: err})
	}

	var all []LineItem
	for _, g := range groups {
		all = append(all, g.Items...)
	}
	grand, err := Sum(all, fields)
	return out, grand, err
}
