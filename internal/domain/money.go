package domain

import "github.com/shopspring/decimal"

// moneyScale is the fixed number of fractional digits for every balance
// and transfer amount.
const moneyScale = 2

// ValidAmount reports whether d is a positive amount at the ledger's scale.
// Values like 30.555 are rejected rather than rounded: the caller sent an
// amount the ledger cannot represent exactly.
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Round(moneyScale))
}

// ValidBalance is ValidAmount relaxed to allow zero, for initial funding.
func ValidBalance(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Equal(d.Round(moneyScale))
}
