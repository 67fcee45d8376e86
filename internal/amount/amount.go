// Package amount converts between zents, the integer unit stored in
// transactions, and ZLD as shown to people. One ZLD is 2^32 zents.
package amount

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const ZentsPerZLD = int64(1) << 32

var (
	zentsPerZLD = decimal.NewFromInt(ZentsPerZLD)

	ErrInvalid = errors.New("invalid amount")
)

// ToZLD is exact: 2^-32 has 32 decimal places.
func ToZLD(zents int64) decimal.Decimal {
	return decimal.NewFromInt(zents).DivRound(zentsPerZLD, 32)
}

// Format renders zents as ZLD with the given number of decimal places.
func Format(zents int64, places int32) string {
	return ToZLD(zents).StringFixed(places) + " ZLD"
}

// Parse reads a ZLD amount such as "1.5" or "0.25ZLD", or a zent count
// suffixed with "z" such as "100z". ZLD amounts round down to whole zents.
func Parse(s string) (int64, error) {
	text := strings.TrimSpace(s)
	if zents, ok := strings.CutSuffix(text, "z"); ok {
		d, err := decimal.NewFromString(zents)
		if err != nil || !d.IsInteger() {
			return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		return toInt64(d, s)
	}
	text = strings.TrimSpace(strings.TrimSuffix(text, "ZLD"))
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return toInt64(d.Mul(zentsPerZLD).Truncate(0), s)
}

func toInt64(d decimal.Decimal, s string) (int64, error) {
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || d.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalid, s)
	}
	return d.IntPart(), nil
}
