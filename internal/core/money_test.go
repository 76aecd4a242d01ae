package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"12.34", "12.34"},
		{"12,34", "12.34"},
		{"$1,234.50", "1234.5"},
		{"1,234", "1234"},
		{"1.234,56", "1234.56"},
		{"1.234.567,89", "1234567.89"},
		{"1,234,567.89", "1234567.89"},
		{"€ 1.200,5", "1200.5"},
		{"-20", "-20"},
		{"(15.00)", "-15"},
		{"€ 7", "7"},
		{"0", "0"},
		{"75.5", "75.5"},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		require.NoError(t, err, tc.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "%s -> %s", tc.in, got)
	}
}

func TestParseAmountInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "12.3.4", "$", "1,234.56.7", "1.2,3,4"} {
		_, err := ParseAmount(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, in)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "75.50", FormatAmount(decimal.RequireFromString("75.5")))
	assert.Equal(t, "0.00", FormatAmount(decimal.Zero))
}

func TestAmountsMatch(t *testing.T) {
	base := decimal.RequireFromString("100.00")
	assert.True(t, AmountsMatch(base, decimal.RequireFromString("100.01")))
	assert.True(t, AmountsMatch(base, decimal.RequireFromString("99.99")))
	assert.False(t, AmountsMatch(base, decimal.RequireFromString("100.02")))
}
