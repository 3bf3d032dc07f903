package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ─── Money ──────────────────────────────────────────────────────────────────
// All monetary values are fixed-point with 8 fractional digits. Internally an
// Amount is an integer count of base units (1 credit = 1e8 units) so the
// store can do atomic integer arithmetic; decimal conversion happens only at
// the boundary.

// FractionalDigits is the fixed scale of every monetary field.
const FractionalDigits = 8

// UnitsPerCredit is the number of base units in one whole credit.
const UnitsPerCredit = 100_000_000

// Amount is a non-negative fixed-point credit amount in base units.
type Amount int64

// Credits builds an Amount from a whole number of credits.
func Credits(n int64) Amount {
	return Amount(n * UnitsPerCredit)
}

// ParseAmount parses a decimal string into an Amount. It rejects negative
// values, more than 8 fractional digits, and values too large for the
// fixed-point range.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q is not a decimal", ErrValidation, s)
	}
	return AmountFromDecimal(d)
}

// AmountFromDecimal converts a decimal to an Amount with the same checks as
// ParseAmount.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: amount %s is negative", ErrValidation, d)
	}
	if d.Exponent() < -FractionalDigits {
		return 0, fmt.Errorf("%w: amount %s exceeds %d fractional digits", ErrValidation, d, FractionalDigits)
	}
	units := d.Shift(FractionalDigits)
	if !units.IsInteger() || units.Cmp(decimal.NewFromInt(math.MaxInt64)) > 0 {
		return 0, fmt.Errorf("%w: amount %s out of range", ErrValidation, d)
	}
	return Amount(units.IntPart()), nil
}

// Decimal returns the amount as an exact decimal value.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -FractionalDigits)
}

// String formats the amount with exactly 8 fractional digits.
func (a Amount) String() string {
	return a.Decimal().StringFixed(FractionalDigits)
}

// MulRound multiplies the amount by a decimal factor and rounds half-up to
// 8 fractional digits. Used for stake percentages and reputation weighting.
func (a Amount) MulRound(factor decimal.Decimal) Amount {
	scaled := a.Decimal().Mul(factor).Round(FractionalDigits)
	return Amount(scaled.Shift(FractionalDigits).IntPart())
}

// MarshalJSON encodes the amount as a decimal string, never a float.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("%w: amount must be a decimal string", ErrValidation)
	}
	parsed, err := ParseAmount(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
