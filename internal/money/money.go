// Package money converts between display amounts (decimals as entered by a
// caller) and the integer minor units an account balance is kept in.
package money

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/transfersaga/internal/apperr"
)

// ToMinor returns floor(amount * scale). The amount must be positive and
// must not collapse to zero minor units.
func ToMinor(amount decimal.Decimal, scale int64) (int64, error) {
	if scale < 1 {
		return 0, apperr.Invalid("scale must be >= 1, got %d", scale)
	}

	if !amount.IsPositive() {
		return 0, apperr.Invalid("amount must be > 0, got %s", amount)
	}

	minor := amount.Mul(decimal.NewFromInt(scale)).Floor()
	if minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, apperr.Invalid("amount %s overflows minor units", amount)
	}

	if minor.IsZero() {
		return 0, apperr.Invalid("amount %s is below one minor unit at scale %d", amount, scale)
	}

	return minor.IntPart(), nil
}

// FromMinor returns minor / scale as a display amount.
func FromMinor(minor, scale int64) decimal.Decimal {
	if scale < 1 {
		scale = 1
	}

	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(scale))
}

// Format renders minor units with the number of fractional digits the scale
// implies (2 for 100, 3 for 1000); other scales fall back to the shortest
// exact representation.
func Format(minor, scale int64) string {
	v := FromMinor(minor, scale)

	places, ok := decimalPlaces(scale)
	if !ok {
		return v.String()
	}

	return v.StringFixed(places)
}

// Parse reads a caller-supplied display amount.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, apperr.Invalid("amount required")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, apperr.ErrInvalidRequest)
	}

	if !d.IsPositive() {
		return decimal.Zero, apperr.Invalid("amount must be > 0")
	}

	return d, nil
}

func decimalPlaces(scale int64) (int32, bool) {
	var places int32

	for scale > 1 {
		if scale%10 != 0 {
			return 0, false
		}

		scale /= 10
		places++
	}

	return places, true
}
