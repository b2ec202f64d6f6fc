// Package report decodes treasury report payloads, normalizes their mixed
// string and number fields and folds them into totals.
package report

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// LineItem is one row of a report as the API sent it.
type LineItem map[string]any

// Group is a named run of line items. Keys are assigned by the API.
type Group struct {
	Key   string
	Items []LineItem
}

// Payload is a decoded report, either flat or grouped.
type Payload struct {
	Grouped bool
	Items   []LineItem
	Groups  []Group
}

// Len returns the number of line items across all groups.
func (p Payload) Len() int {
	if !p.Grouped {
		return len(p.Items)
	}
	n := 0
	for _, g := range p.Groups {
		n += len(g.Items)
	}
	return n
}

// Empty reports whether the payload has no line items.
func (p Payload) Empty() bool {
	return p.Len() == 0
}

// All returns every line item in API order, groups concatenated.
func (p Payload) All() []LineItem {
	if !p.Grouped {
		return p.Items
	}
	all := make([]LineItem, 0, p.Len())
	for _, g := range p.Groups {
		all = append(all, g.Items...)
	}
	return all
}

// Number returns the numeric value of a raw field.
// Absent and null fields are 0. Strings that do not parse are NaN.
func Number(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}

// Text returns the display text of a raw field.
func Text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Number returns the normalized value of field.
func (li LineItem) Number(field string) float64 {
	return Number(li[field])
}

// Text returns the display text of field.
func (li LineItem) Text(field string) string {
	return Text(li[field])
}
