package decimalutil

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

func TestProperty_QuantizeIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		units := rapid.Int64Range(-1_000_000_000_000, 1_000_000_000_000).Draw(t, "units")
		exp := rapid.Int32Range(-12, 0).Draw(t, "exp")
		d := decimal.New(units, exp)

		once := QuantizeQuantity(d)
		twice := QuantizeQuantity(once)
		if !once.Equal(twice) {
			t.Fatalf("quantize not idempotent: %s -> %s -> %s", d, once, twice)
		}
	})
}

func TestProperty_QuantizeMoneyWithinHalfTick(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		units := rapid.Int64Range(-1_000_000_000_000, 1_000_000_000_000).Draw(t, "units")
		exp := rapid.Int32Range(-9, 0).Draw(t, "exp")
		d := decimal.New(units, exp)

		q := QuantizeMoney(d)
		halfTick := decimal.New(5, -(MoneyScale + 1))
		if q.Sub(d).Abs().GreaterThan(halfTick) {
			t.Fatalf("QuantizeMoney(%s) = %s moved more than half a tick", d, q)
		}
		if q.Exponent() < -MoneyScale {
			t.Fatalf("QuantizeMoney(%s) = %s has more than %d decimal places", d, q, MoneyScale)
		}
	})
}
