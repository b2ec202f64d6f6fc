// Package format renders report figures for display: currency amounts,
// percentages and Indian-style magnitude abbreviations.
package format

import (
	"errors"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// ErrNonFinite is returned when a NaN or infinite value reaches a formatter.
var ErrNonFinite = errors.New("non-finite number")

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// toFixed rounds v to places decimals, half away from zero, using the
// exact binary value of v (1.005 rounds to "1.00").
func toFixed(v float64, places int32) string {
	d, err := decimal.NewFromString(strconv.FormatFloat(v, 'f', 40, 64))
	if err != nil {
		return strconv.FormatFloat(v, 'f', int(places), 64)
	}
	return d.StringFixed(places)
}

// Percent renders v with two decimals followed by a percent sign.
func Percent(v float64) (string, error) {
	if !finite(v) {
		return "", ErrNonFinite
	}
	return toFixed(v, 2) + "%", nil
}

// Rate renders an interest rate exactly as the API sent it, with a percent sign.
func Rate(raw string) string {
	if raw == "" {
		return ""
	}
	return raw + "%"
}
