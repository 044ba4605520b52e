package market

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/KotFed0t/portfolio_rebalancer/config"
	"github.com/shopspring/decimal"
)

func testConfig() *config.Config {
	return &config.Config{
		Stock: config.Stock{
			MinPrice:                  decimal.RequireFromString("0.01"),
			MaxPrice:                  decimal.NewFromInt(1_000_000),
			PriceChangeAlertThreshold: decimal.RequireFromString("0.01"),
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	mkt := New(testConfig(), nil)

	s, err := mkt.Register("AAAA", decimal.NewFromInt(250))
	if err != nil {
		t.Fatal(err)
	}

	if !mkt.Has("AAAA") {
		t.Fatal("Has(AAAA) = false")
	}
	if mkt.Has("ZZZZ") {
		t.Fatal("Has(ZZZZ) = true")
	}

	price, err := mkt.PriceOf("AAAA")
	if err != nil {
		t.Fatal(err)
	}
	if !price.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("price = %s", price)
	}

	// Re-registering a known symbol returns the existing stock.
	again, err := mkt.Register("AAAA", decimal.NewFromInt(999))
	if err != nil {
		t.Fatal(err)
	}
	if again != s {
		t.Fatal("re-register must return the existing stock")
	}
	if price, _ := mkt.PriceOf("AAAA"); !price.Equal(decimal.NewFromInt(250)) {
		t.Fatal("re-register must not change the price")
	}
}

func TestRegister_InvalidSymbol(t *testing.T) {
	mkt := New(testConfig(), nil)
	if _, err := mkt.Register("nope", decimal.NewFromInt(10)); err == nil {
		t.Fatal("invalid symbol must be rejected")
	}
}

func TestPriceOf_UnknownSymbol(t *testing.T) {
	mkt := New(testConfig(), nil)
	_, err := mkt.PriceOf("ZZZZ")
	if !errors.Is(err, ErrStockNotFound) {
		t.Fatalf("err = %v, want ErrStockNotFound", err)
	}
}

func TestSetPrice(t *testing.T) {
	mkt := New(testConfig(), nil)
	if _, err := mkt.Register("AAAA", decimal.NewFromInt(250)); err != nil {
		t.Fatal(err)
	}

	if err := mkt.SetPrice(context.Background(), "AAAA", decimal.NewFromInt(300)); err != nil {
		t.Fatal(err)
	}
	if price, _ := mkt.PriceOf("AAAA"); !price.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("price = %s", price)
	}

	if err := mkt.SetPrice(context.Background(), "ZZZZ", decimal.NewFromInt(1)); !errors.Is(err, ErrStockNotFound) {
		t.Fatalf("err = %v, want ErrStockNotFound", err)
	}
}

func TestSymbols(t *testing.T) {
	mkt := New(testConfig(), nil)
	for _, symbol := range []string{"AAAA", "BBBB"} {
		if _, err := mkt.Register(symbol, decimal.NewFromInt(10)); err != nil {
			t.Fatal(err)
		}
	}

	symbols := mkt.Symbols()
	slices.Sort(symbols)
	if !slices.Equal(symbols, []string{"AAAA", "BBBB"}) {
		t.Fatalf("symbols = %v", symbols)
	}
}
