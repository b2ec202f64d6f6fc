package format

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// South Asian regions group digits as 12,34,567.
var lakhGroupingRegions = map[string]bool{
	"BD": true,
	"IN": true,
	"NP": true,
	"PK": true,
	"LK": true,
}

// Currency formats amounts for one (locale, currency code) pair.
type Currency struct {
	locale    language.Tag
	unit      currency.Unit
	lakhStyle bool
}

// NewCurrency validates the locale and ISO 4217 code and returns a formatter.
func NewCurrency(locale, code string) (*Currency, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("invalid currency code %q: %w", code, err)
	}

	region, _ := tag.Region()
	return &Currency{
		locale:    tag,
		unit:      unit,
		lakhStyle: lakhGroupingRegions[region.String()],
	}, nil
}

// MustCurrency is like NewCurrency but panics on invalid input.
func MustCurrency(locale, code string) *Currency {
	c, err := NewCurrency(locale, code)
	if err != nil {
		panic(err)
	}
	return c
}

// Code returns the ISO 4217 code.
func (c *Currency) Code() string {
	return c.unit.String()
}

// Locale returns the BCP 47 locale tag.
func (c *Currency) Locale() string {
	return c.locale.String()
}

// Format renders v as "<CODE> 1,234.50", with a leading minus for negatives.
func (c *Currency) Format(v float64) (string, error) {
	if !finite(v) {
		return "", ErrNonFinite
	}

	fixed := toFixed(v, 2)
	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, frac, _ := strings.Cut(fixed, ".")
	grouped := groupDigits(intPart, c.lakhStyle)

	// -0.001 rounds to zero and should not carry a sign
	if negative && strings.Trim(intPart+frac, "0") == "" {
		negative = false
	}

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	b.WriteString(c.unit.String())
	b.WriteByte(' ')
	b.WriteString(grouped)
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String(), nil
}

func groupDigits(digits string, lakhStyle bool) string {
	if len(digits) <= 3 {
		return digits
	}

	head := digits[:len(digits)-3]
	tail := digits[len(digits)-3:]

	size := 3
	if lakhStyle {
		size = 2
	}

	var groups []string
	for len(head) > size {
		groups = append([]string{head[len(head)-size:]}, groups...)
		head = head[:len(head)-size]
	}
	groups = append([]string{head}, groups...)
	return strings.Join(groups, ",") + "," + tail
}
