package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is an amount in minor currency units (cents). All fare arithmetic
// stays in integers; decimal text only appears at the display boundary.
type Money int64

// Cents builds a Money from a count of minor units.
func Cents(c int64) Money { return Money(c) }

// Times multiplies m by a whole count (e.g. billed hours).
// It does not check for overflow; fare code uses TimesChecked.
func (m Money) Times(n int64) Money { return m * Money(n) }

// TimesChecked multiplies a non-negative m by a non-negative n and reports
// false if either operand is negative or the product does not fit in int64.
func (m Money) TimesChecked(n int64) (Money, bool) {
	if m < 0 || n < 0 {
		return 0, false
	}
	if m == 0 || n == 0 {
		return 0, true
	}
	if int64(m) > math.MaxInt64/n {
		return 0, false
	}
	return m * Money(n), true
}

// String renders m as a decimal string with two fraction digits, e.g. "30.00".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// ParseMoney parses a non-negative decimal amount such as "10", "10.5" or
// "10.00" without going through floating point.
// More than two fraction digits is rejected rather than rounded.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: amount is required", ErrValidation)
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || !isDigits(whole) {
		return 0, fmt.Errorf("%w: %q is not a decimal amount", ErrValidation, s)
	}
	if hasFrac && (frac == "" || len(frac) > 2 || !isDigits(frac)) {
		return 0, fmt.Errorf("%w: %q must have one or two fraction digits", ErrValidation, s)
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrValidation, s, err)
	}
	cents := int64(0)
	if frac != "" {
		if len(frac) == 1 {
			frac += "0"
		}
		cents, _ = strconv.ParseInt(frac, 10, 64)
	}
	if units > (1<<63-1-cents)/100 {
		return 0, fmt.Errorf("%w: %q is too large", ErrValidation, s)
	}
	return Money(units*100 + cents), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
