package shared

import "github.com/shopspring/decimal"

// AmountTolerance is the absolute tolerance used when comparing monetary
// amounts across ledgers. Counted-vs-expected differences smaller than this
// are treated as equal.
var AmountTolerance = decimal.NewFromFloat(0.01)

// AmountsEqual reports whether two amounts agree within AmountTolerance.
func AmountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(AmountTolerance)
}

// AmountExceeds reports whether a is greater than b by more than the tolerance.
func AmountExceeds(a, b decimal.Decimal) bool {
	return a.Sub(b).GreaterThan(AmountTolerance)
}

// IsZeroAmount reports whether the amount is zero within tolerance.
func IsZeroAmount(a decimal.Decimal) bool {
	return a.Abs().LessThanOrEqual(AmountTolerance)
}
