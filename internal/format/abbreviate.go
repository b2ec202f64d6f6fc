package format

import (
	"math"
	"strconv"
)

const (
	thousand = 1e3
	lakh     = 1e5
	crore    = 1e7
	arab     = 1e9
)

// Abbreviate renders num on the Indian magnitude ladder: K (thousand),
// L (lakh), Cr (crore) and Ar (arab). Whole quotients carry no decimals;
// otherwise K and L show one decimal and Cr and Ar show two.
func Abbreviate(num float64) (string, error) {
	if !finite(num) {
		return "", ErrNonFinite
	}

	sign := ""
	if num < 0 {
		sign = "-"
	}
	abs := math.Abs(num)

	switch {
	case abs < thousand:
		// plain decimal, never exponent form: 1e-7 is "0.0000001"
		return sign + strconv.FormatFloat(abs, 'f', -1, 64), nil
	case abs < lakh:
		return sign + scaled(abs/thousand, 1) + "K", nil
	case abs < crore:
		return sign + scaled(abs/lakh, 1) + "L", nil
	case abs < arab:
		return sign + scaled(abs/crore, 2) + "Cr", nil
	default:
		return sign + scaled(abs/arab, 2) + "Ar", nil
	}
}

func scaled(q float64, places int32) string {
	if math.Mod(q, 1) == 0 {
		return toFixed(q, 0)
	}
	return toFixed(q, places)
}
