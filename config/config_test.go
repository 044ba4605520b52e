package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMustLoad_Defaults(t *testing.T) {
	cfg := MustLoad()

	if !cfg.Stock.MinPrice.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("MinPrice = %s", cfg.Stock.MinPrice)
	}
	if !cfg.Stock.MaxPrice.Equal(decimal.NewFromInt(1_000_000)) {
		t.Fatalf("MaxPrice = %s", cfg.Stock.MaxPrice)
	}
	if !cfg.Stock.PriceChangeAlertThreshold.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("PriceChangeAlertThreshold = %s", cfg.Stock.PriceChangeAlertThreshold)
	}
	if !cfg.Portfolio.RebalanceDeviationThreshold.Equal(decimal.RequireFromString("0.02")) {
		t.Fatalf("RebalanceDeviationThreshold = %s", cfg.Portfolio.RebalanceDeviationThreshold)
	}
	if cfg.Portfolio.RebalanceLockTTL != 6*time.Hour {
		t.Fatalf("RebalanceLockTTL = %s", cfg.Portfolio.RebalanceLockTTL)
	}
	if cfg.Broker.RollbackMaxAttempts != 3 {
		t.Fatalf("RollbackMaxAttempts = %d", cfg.Broker.RollbackMaxAttempts)
	}
	if !cfg.Broker.MaxQuantity.Equal(decimal.NewFromInt(1_000_000)) {
		t.Fatalf("MaxQuantity = %s", cfg.Broker.MaxQuantity)
	}
	if !cfg.Portfolio.MinInvestment.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("MinInvestment = %s", cfg.Portfolio.MinInvestment)
	}
	if !cfg.Portfolio.MaxPortfolioValue.Equal(decimal.NewFromInt(10_000_000)) {
		t.Fatalf("MaxPortfolioValue = %s", cfg.Portfolio.MaxPortfolioValue)
	}
	if cfg.Shared.MoneyScale != 2 || cfg.Shared.QuantityScale != 9 || cfg.Shared.PercentScale != 4 {
		t.Fatalf("scales = %d/%d/%d", cfg.Shared.MoneyScale, cfg.Shared.QuantityScale, cfg.Shared.PercentScale)
	}
}

func TestMustLoad_EnvOverride(t *testing.T) {
	t.Setenv("REBALANCE_DEVIATION_THRESHOLD", "0.05")
	t.Setenv("ROLLBACK_MAX_ATTEMPTS", "5")

	cfg := MustLoad()

	if !cfg.Portfolio.RebalanceDeviationThreshold.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("RebalanceDeviationThreshold = %s", cfg.Portfolio.RebalanceDeviationThreshold)
	}
	if cfg.Broker.RollbackMaxAttempts != 5 {
		t.Fatalf("RollbackMaxAttempts = %d", cfg.Broker.RollbackMaxAttempts)
	}
}
