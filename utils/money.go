package utils

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// RoundCentavos rounds a monetary amount to the smallest currency unit,
// half up. Applied exactly once per ledger row, never on sums of rows.
func RoundCentavos(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// ApplyPercentage returns amount * pct / 100, rounded to centavos.
func ApplyPercentage(amount, pct decimal.Decimal) decimal.Decimal {
	return RoundCentavos(amount.Mul(pct).Div(hundred))
}
