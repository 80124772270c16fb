package dues

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDueAmount converts the stored settings value into whole currency
// units. The value is kept as a decimal string so "5", "5.0" and "5.75" are
// all accepted; fractions are floored. Empty means unset and yields 0.
func ParseDueAmount(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("parse due amount %q: %w", value, err)
	}
	d = d.Floor()
	if d.IsNegative() {
		return 0, &InvalidAmountError{Field: "due amount", Value: clampInt64(d)}
	}
	if d.GreaterThan(maxDueAmount) {
		return 0, &InvalidAmountError{Field: "due amount", Value: math.MaxInt64, Reason: "exceeds the largest storable amount"}
	}
	return d.IntPart(), nil
}

var (
	maxDueAmount = decimal.NewFromInt(math.MaxInt64)
	minDueAmount = decimal.NewFromInt(math.MinInt64)
)

// clampInt64 keeps error values readable for inputs outside int64.
func clampInt64(d decimal.Decimal) int64 {
	switch {
	case d.GreaterThan(maxDueAmount):
		return math.MaxInt64
	case d.LessThan(minDueAmount):
		return math.MinInt64
	}
	return d.IntPart()
}

// NormalizeDueAmount validates a new settings value and returns the canonical
// string to store.
func NormalizeDueAmount(value string) (string, error) {
	n, err := ParseDueAmount(value)
	if err != nil {
		return "", err
	}
	return decimal.NewFromInt(n).String(), nil
}
