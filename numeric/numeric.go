// Package numeric implements fixed-scale decimal arithmetic for stock quantities.
//
// Every operation takes an explicit scale (digits after the decimal point). Results
// are truncated toward zero at that scale and comparisons ignore digits past it, so a
// quantity never picks up binary rounding error on its way through the ledger.
package numeric

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// ErrInvalidNumber matches every *InvalidNumberError.
var ErrInvalidNumber = errors.New("invalid number")

// InvalidNumberError reports an input that is not a well-formed decimal string.
type InvalidNumberError struct {
	Input string
}

func (e *InvalidNumberError) Error() string {
	return fmt.Sprintf("invalid number %q", e.Input)
}

func (e *InvalidNumberError) Is(target error) bool { return target == ErrInvalidNumber }

var plainDecimal = regexp.MustCompile(`^[+-]?(\d+(\.\d+)?|\.\d+)$`)

// Parse reads a plain decimal string: an optional sign, digits and an optional
// fraction, e.g. "12", "-0.25" or ".5". Exponents, padding, thousands separators
// and a bare trailing point are rejected.
func Parse(s string) (decimal.Decimal, error) {
	if !plainDecimal.MatchString(s) {
		return decimal.Zero, &InvalidNumberError{Input: s}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &InvalidNumberError{Input: s}
	}
	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Truncate drops every digit past scale.
func Truncate(d decimal.Decimal, scale int32) decimal.Decimal {
	if scale < 0 {
		scale = 0
	}
	return d.Truncate(scale)
}

// AddAt returns a+b truncated to scale.
func AddAt(a, b decimal.Decimal, scale int32) decimal.Decimal {
	return Truncate(a.Add(b), scale)
}

// SubAt returns a-b truncated to scale.
func SubAt(a, b decimal.Decimal, scale int32) decimal.Decimal {
	return Truncate(a.Sub(b), scale)
}

// MulAt returns a*b truncated to scale.
func MulAt(a, b decimal.Decimal, scale int32) decimal.Decimal {
	return Truncate(a.Mul(b), scale)
}

// CmpAt compares a and b looking only at the first scale decimal digits.
func CmpAt(a, b decimal.Decimal, scale int32) int {
	return Truncate(a, scale).Cmp(Truncate(b, scale))
}

// Format renders d with exactly scale decimal digits.
func Format(d decimal.Decimal, scale int32) string {
	if scale < 0 {
		scale = 0
	}
	return Truncate(d, scale).StringFixed(scale)
}

// Digits is the number of digits after the decimal point in d as written.
func Digits(d decimal.Decimal) int32 {
	if exp := d.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

// DecimalDigits is the number of digits after the decimal point of a step or value
// string, e.g. "0.05" has 2 and "3" has 0.
func DecimalDigits(stepOrValue string) (int32, error) {
	d, err := Parse(stepOrValue)
	if err != nil {
		return 0, err
	}
	return Digits(d), nil
}

// Add returns a+b at scale, formatted with scale digits.
func Add(a, b string, scale int32) (string, error) {
	x, y, err := parsePair(a, b)
	if err != nil {
		return "", err
	}
	return Format(AddAt(x, y, scale), scale), nil
}

// Sub returns a-b at scale, formatted with scale digits.
func Sub(a, b string, scale int32) (string, error) {
	x, y, err := parsePair(a, b)
	if err != nil {
		return "", err
	}
	return Format(SubAt(x, y, scale), scale), nil
}

// Compare returns -1, 0 or 1 comparing a and b at scale.
func Compare(a, b string, scale int32) (int, error) {
	x, y, err := parsePair(a, b)
	if err != nil {
		return 0, err
	}
	return CmpAt(x, y, scale), nil
}

func parsePair(a, b string) (decimal.Decimal, decimal.Decimal, error) {
	x, err := Parse(a)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	y, err := Parse(b)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return x, y, nil
}
