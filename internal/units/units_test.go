package units

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = ParseAmount("  12.5 ")
	require.NoError(t, err)
	assert.Equal(t, "12.5", d.String())

	_, err = ParseAmount("abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseAmount("-1")
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestToFixedWholeAmount(t *testing.T) {
	v, err := ToFixed(decimal.NewFromInt(100), 18)
	require.NoError(t, err)

	want := new(big.Int).Mul(big.NewInt(100), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	assert.Equal(t, 0, want.Cmp(v), "got %s", v)
}

func TestToFixedRoundsAtPrecision(t *testing.T) {
	v, err := ToFixed(decimal.RequireFromString("1.2345675"), 6)
	require.NoError(t, err)
	assert.Equal(t, "1234568", v.String())

	v, err = ToFixed(decimal.RequireFromString("0.0000004"), 6)
	require.NoError(t, err)
	assert.Equal(t, "0", v.String())
}

func TestToFixedRejectsNegative(t *testing.T) {
	_, err := ToFixed(decimal.NewFromInt(-3), 6)
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestFixedRoundTrip(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
	}{
		{"0", 18},
		{"100", 18},
		{"1.5", 6},
		{"123456.123456", 6},
		{"0.000000000000000001", 18},
		{"42", 0},
	}
	for _, tc := range cases {
		amount := decimal.RequireFromString(tc.in)
		fixed, err := ToFixed(amount, tc.decimals)
		require.NoError(t, err)
		back := FromFixed(fixed, tc.decimals)
		assert.True(t, amount.Equal(back), "%s at %d decimals came back as %s", tc.in, tc.decimals, back)
	}
}

func TestFromFixedNil(t *testing.T) {
	assert.True(t, FromFixed(nil, 18).IsZero())
}
