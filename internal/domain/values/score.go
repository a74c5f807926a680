package values

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Term is one weighted component of a composite score
type Term struct {
	Value  int
	Weight decimal.Decimal
}

// Weighted builds a term from an integer value and a decimal weight such as "0.4".
// It panics on a malformed weight, which is always a programming error.
func Weighted(value int, weight string) Term {
	return Term{Value: value, Weight: decimal.RequireFromString(weight)}
}

// String returns "value*weight"
func (t Term) String() string {
	return fmt.Sprintf("%d*%s", t.Value, t.Weight.String())
}

// Percent returns round(num/den*100) with half-up rounding, or 0 when den is 0
func Percent(num, den int) int {
	if den == 0 {
		return 0
	}
	return int(decimal.NewFromInt(int64(num)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(den))).
		Round(0).
		IntPart())
}

// Composite returns the rounded, unclamped sum of the weighted terms.
// Decimal arithmetic keeps 33*0.3 at exactly 9.9.
func Composite(terms ...Term) int {
	sum := decimal.Zero
	for _, t := range terms {
		sum = sum.Add(decimal.NewFromInt(int64(t.Value)).Mul(t.Weight))
	}
	return int(sum.Round(0).IntPart())
}

// Score is Composite clamped to [0,100]
func Score(terms ...Term) int {
	return Clamp(Composite(terms...), 0, 100)
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Hours converts a duration to hours rounded to two decimal places
func Hours(d time.Duration) float64 {
	return decimal.NewFromInt(int64(d)).
		Div(decimal.NewFromInt(int64(time.Hour))).
		Round(2).
		InexactFloat64()
}
