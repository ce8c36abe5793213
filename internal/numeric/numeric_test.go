package numeric

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in    string
		scale int32
		want  string
	}{
		{"101.11", PriceScale, "101.110000"},
		{"0.0000005", PriceScale, "0.000001"},
		{"0.0000004", PriceScale, "0.000000"},
		{"-0.0000005", PriceScale, "-0.000001"},
		{"2.00000000005", QuantityScale, "2.0000000001"},
		{"2.00000000004", QuantityScale, "2.0000000000"},
		{"10", QuantityScale, "10.0000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Round(decimal.RequireFromString(tt.in), tt.scale)
			assert.Equal(t, tt.want, got.StringFixed(tt.scale))
		})
	}
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "10.0000000000", FormatQuantity(decimal.NewFromInt(10)))
	assert.Equal(t, "101.110000", FormatPrice(decimal.RequireFromString("101.11")))
	assert.Nil(t, FormatNullPrice(decimal.NullDecimal{}))

	s := FormatNullPrice(decimal.NewNullDecimal(decimal.RequireFromString("50")))
	require.NotNil(t, s)
	assert.Equal(t, "50.000000", *s)
}

func TestNullPrice(t *testing.T) {
	assert.False(t, NullPrice(decimal.NullDecimal{}).Valid)

	got := NullPrice(decimal.NewNullDecimal(decimal.RequireFromString("1.2345675")))
	require.True(t, got.Valid)
	assert.True(t, got.Decimal.Equal(decimal.RequireFromString("1.234568")))
}

func TestParse(t *testing.T) {
	d, err := Parse(" 4.5 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("4.5")))

	_, err = Parse("")
	assert.Error(t, err)

	_, err = Parse("abc")
	assert.Error(t, err)

	opt, err := ParseOptional(nil)
	require.NoError(t, err)
	assert.False(t, opt.Valid)

	blank := "  "
	opt, err = ParseOptional(&blank)
	require.NoError(t, err)
	assert.False(t, opt.Valid)

	v := "-1"
	opt, err = ParseOptional(&v)
	require.NoError(t, err)
	assert.True(t, opt.Valid)
	assert.True(t, opt.Decimal.IsNegative())
}

func TestTimestamp(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	in := time.Date(2024, 3, 1, 12, 0, 0, 123456789, loc)

	got := Timestamp(in)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 123456000, got.Nanosecond())
	assert.True(t, got.Equal(in.Truncate(time.Microsecond)))
}
