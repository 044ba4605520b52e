// Package decimalutil centralizes quantization of the three decimal scales
// the engine works at: money (2), share quantity (9) and allocation
// percentage (4). All rounding is half-up.
package decimalutil

import "github.com/shopspring/decimal"

const (
	MoneyScale    int32 = 2
	QuantityScale int32 = 9
	PercentScale  int32 = 4
)

func QuantizeMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

func QuantizeQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityScale)
}

func QuantizePercent(d decimal.Decimal) decimal.Decimal {
	return d.Round(PercentScale)
}

// QuantityTick is one tick at the quantity scale (10^-9), the unit used by
// the rebalance convergence bound.
func QuantityTick() decimal.Decimal {
	return decimal.New(1, -QuantityScale)
}
