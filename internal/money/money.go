// Package money holds the fixed two-decimal currency amount used across the
// auction core. Amounts are stored as int64 minor units (kobo/cents).
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places carried by Amount.
const Scale = 2

// Amount is a monetary value in minor units.
type Amount int64

var ErrInvalidAmount = errors.New("invalid amount")

// FromMajor converts whole currency units to an Amount.
func FromMajor(units int64) Amount {
	return Amount(units * 100)
}

// Parse reads a decimal string such as "150", "150.5" or "150.25".
// More than two fractional digits are rejected instead of rounded.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// FromDecimal converts a decimal value, rejecting sub-minor precision.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	scaled := d.Shift(Scale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, d.String(), Scale)
	}
	if scaled.Abs().GreaterThan(decimal.NewFromInt(1 << 62)) {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d.String())
	}
	return Amount(scaled.IntPart()), nil
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// IsPositive reports a > 0.
func (a Amount) IsPositive() bool { return a > 0 }

// MarshalJSON renders the amount as a JSON number in major units.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal().StringFixed(Scale)), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*a = 0
		return nil
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Range is an inclusive price filter.
type Range struct {
	Low  Amount
	High Amount
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v Amount) bool {
	return v >= r.Low && v <= r.High
}

// ParseRange accepts "low-high" or "high"; the latter means [0, high].
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("%w: empty range", ErrInvalidAmount)
	}
	low, high, found := strings.Cut(s, "-")
	if !found {
		h, err := Parse(s)
		if err != nil {
			return Range{}, err
		}
		return Range{Low: 0, High: h}, nil
	}
	l, err := Parse(low)
	if err != nil {
		return Range{}, err
	}
	h, err := Parse(high)
	if err != nil {
		return Range{}, err
	}
	if l > h {
		return Range{}, fmt.Errorf("%w: range low %s exceeds high %s", ErrInvalidAmount, l, h)
	}
	return Range{Low: l, High: h}, nil
}
