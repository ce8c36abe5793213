// Package numeric holds the fixed-point rules applied to every quantity,
// price and monetary amount that crosses a service boundary.
//
// Rounding is half-up in the financial sense: ties round away from zero,
// so 0.0000005 at scale 6 becomes 0.000001 and -0.0000005 becomes -0.000001.
package numeric

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// QuantityScale is the number of fractional digits kept for quantities.
	QuantityScale int32 = 10
	// PriceScale is the number of fractional digits kept for prices, fees,
	// taxes and average costs.
	PriceScale int32 = 6
)

// Round rounds d to scale fractional digits, ties away from zero.
func Round(d decimal.Decimal, scale int32) decimal.Decimal {
	return d.Round(scale)
}

// Quantity normalizes a quantity to QuantityScale.
func Quantity(d decimal.Decimal) decimal.Decimal {
	return Round(d, QuantityScale)
}

// Price normalizes a price to PriceScale.
func Price(d decimal.Decimal) decimal.Decimal {
	return Round(d, PriceScale)
}

// Money normalizes fees, taxes and costs to PriceScale.
func Money(d decimal.Decimal) decimal.Decimal {
	return Round(d, PriceScale)
}

// NullPrice normalizes an optional price. An invalid input stays invalid.
func NullPrice(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(Price(d.Decimal))
}

// FormatQuantity renders d with exactly QuantityScale fractional digits.
func FormatQuantity(d decimal.Decimal) string {
	return Quantity(d).StringFixed(QuantityScale)
}

// FormatPrice renders d with exactly PriceScale fractional digits.
func FormatPrice(d decimal.Decimal) string {
	return Price(d).StringFixed(PriceScale)
}

// FormatNullPrice renders an optional price, nil when absent.
func FormatNullPrice(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := FormatPrice(d.Decimal)
	return &s
}

// Parse reads a decimal from its string form. Blank input is an error.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty decimal")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// ParseOptional reads an optional decimal; nil or blank yields an invalid NullDecimal.
func ParseOptional(s *string) (decimal.NullDecimal, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := Parse(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// Timestamp normalizes t to UTC at microsecond precision, the finest
// resolution both supported stores keep.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Now is Timestamp(time.Now()).
func Now() time.Time {
	return Timestamp(time.Now())
}
