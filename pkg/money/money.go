// Package money provides decimal currency helpers shared by the valuation and
// deduction packages.  All dollar amounts in the platform are represented as
// decimal.Decimal; float64 never carries money across a package boundary.
package money

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is the canonical zero dollar amount.
var Zero = decimal.Zero

// Parse converts a currency string into a decimal amount.  It tolerates the
// formatting that upstream data sources and AI responses produce: leading
// dollar signs, thousands separators, and surrounding whitespace.
// An empty or unparseable string returns an error.
func Parse(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("money: empty amount")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse for trusted literals in tests and fixtures; it panics on error.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FormatUSD renders an amount as a whole-dollar figure with thousands
// separators, e.g. "$225,000".  Cents are rounded half-up.
func FormatUSD(d decimal.Decimal) string {
	rounded := d.Round(0)
	neg := rounded.IsNegative()
	s := rounded.Abs().String()

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	sb.WriteByte('$')
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// FormatUSDCents renders an amount with exactly two decimal places,
// e.g. "$1,550.50".
func FormatUSDCents(d decimal.Decimal) string {
	fixed := d.Round(2)
	neg := fixed.IsNegative()
	abs := fixed.Abs()

	whole := abs.Floor()
	cents := abs.Sub(whole).Mul(decimal.NewFromInt(100)).Round(0)

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	sb.WriteString(FormatUSD(whole))
	fmt.Fprintf(&sb, ".%02d", cents.IntPart())
	return sb.String()
}

// Median returns the standard median of the given amounts: the middle element
// of the sorted values for odd counts, the mean of the two middle elements for
// even counts.  The input slice is not modified.  Median of an empty slice is
// the caller's error to guard; this function returns zero for it.
func Median(values []decimal.Decimal) decimal.Decimal {
	n := len(values)
	if n == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, n)
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	if n%2 == 1 {
		return sorted[n/2]
	}
	two := decimal.NewFromInt(2)
	return sorted[n/2-1].Add(sorted[n/2]).Div(two)
}

// MinMax returns the smallest and largest of the given amounts.
// Both return values are zero for an empty slice.
func MinMax(values []decimal.Decimal) (min, max decimal.Decimal) {
	if len(values) == 0 {
		return decimal.Zero, decimal.Zero
	}
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v.LessThan(min) {
			min = v
		}
		if v.GreaterThan(max) {
			max = v
		}
	}
	return min, max
}

// Sum returns the total of the given amounts.
func Sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
