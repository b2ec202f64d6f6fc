package format

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbbreviate(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{7, "7"},
		{999, "999"},
		{999.5, "999.5"},
		{1000, "1K"},
		{1500, "1.5K"},
		{1549, "1.5K"},
		{1550, "1.6K"},
		{99999, "100.0K"},
		{100000, "1L"},
		{1250000, "12.5L"},
		{9999999, "100.0L"},
		{10000000, "1Cr"},
		{12345678, "1.23Cr"},
		{150000000, "15Cr"},
		{1000000000, "1Ar"},
		{2500000000, "2.50Ar"},
		{1234567890123, "1234.57Ar"},
	}

	for _, tt := range tests {
		got, err := Abbreviate(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "Abbreviate(%v)", tt.in)
	}
}

func TestAbbreviate_SignSymmetry(t *testing.T) {
	values := []float64{0.25, 1, 999, 1000, 1500, 54321, 100000, 1250000, 10000000, 987654321, 1e9, 3.7e12}
	for _, v := range values {
		pos, err := Abbreviate(v)
		require.NoError(t, err)
		neg, err := Abbreviate(-v)
		require.NoError(t, err)
		assert.Equal(t, "-"+pos, neg, "value %v", v)
		assert.False(t, strings.HasPrefix(pos, "-"))
	}
}

func TestAbbreviate_SmallValuesUsePlainDecimal(t *testing.T) {
	tests := map[float64]string{
		1e-7:       "0.0000001",
		-0.5:       "-0.5",
		0.000012:   "0.000012",
		123.456789: "123.456789",
	}
	for in, want := range tests {
		got, err := Abbreviate(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "Abbreviate(%v)", in)
		assert.NotContains(t, got, "e")
	}
}

func TestAbbreviate_NonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Abbreviate(v)
		assert.ErrorIs(t, err, ErrNonFinite)
	}
}

func TestCurrency_Format(t *testing.T) {
	bdt := MustCurrency("en-BD", "BDT")
	usd := MustCurrency("en-US", "USD")

	tests := []struct {
		name string
		cur  *Currency
		in   float64
		want string
	}{
		{"zero", bdt, 0, "BDT 0.00"},
		{"small", bdt, 12.5, "BDT 12.50"},
		{"thousands", bdt, 1234.5, "BDT 1,234.50"},
		{"lakh grouping", bdt, 1234567.891, "BDT 12,34,567.89"},
		{"crore grouping", bdt, 123456789, "BDT 12,34,56,789.00"},
		{"negative", bdt, -1500, "-BDT 1,500.00"},
		{"negative rounding to zero", bdt, -0.001, "BDT 0.00"},
		{"binary half rounds down", bdt, 1.005, "BDT 1.00"},
		{"half rounds up", bdt, 0.125, "BDT 0.13"},
		{"western grouping", usd, 1234567.5, "USD 1,234,567.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cur.Format(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCurrency_NonFinite(t *testing.T) {
	bdt := MustCurrency("en-BD", "BDT")
	_, err := bdt.Format(math.NaN())
	assert.ErrorIs(t, err, ErrNonFinite)
	_, err = bdt.Format(math.Inf(-1))
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestNewCurrency_Invalid(t *testing.T) {
	_, err := NewCurrency("en-BD", "XYZQ")
	assert.Error(t, err)

	_, err = NewCurrency("not a locale!", "BDT")
	assert.Error(t, err)

	c, err := NewCurrency("en-IN", "INR")
	require.NoError(t, err)
	assert.Equal(t, "INR", c.Code())
	assert.Equal(t, "en-IN", c.Locale())
}

func TestPercent(t *testing.T) {
	got, err := Percent(37.5)
	require.NoError(t, err)
	assert.Equal(t, "37.50%", got)

	got, err = Percent(100)
	require.NoError(t, err)
	assert.Equal(t, "100.00%", got)

	_, err = Percent(math.NaN())
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestRate(t *testing.T) {
	assert.Equal(t, "9.50%", Rate("9.50"))
	assert.Equal(t, "", Rate(""))
}
