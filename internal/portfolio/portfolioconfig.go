package portfolio

import (
	"fmt"
	"strings"

	"github.com/KotFed0t/portfolio_rebalancer/config"
	"github.com/KotFed0t/portfolio_rebalancer/internal/decimalutil"
	"github.com/KotFed0t/portfolio_rebalancer/internal/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockAllocation pairs a stock with its intended fraction of the
// portfolio's total value, a decimal in (0, 1].
type StockAllocation struct {
	Stock   *stock.Stock
	Percent decimal.Decimal
}

// PortfolioConfig is the fully-validated construction input. Validation
// happens in New; an invalid config never reaches the engine.
type PortfolioConfig struct {
	ID                uuid.UUID
	Name              string
	InitialInvestment decimal.Decimal
	Allocations       []StockAllocation
}

func (c PortfolioConfig) validate(cfg *config.Config) error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Reason: "portfolio name must not be empty"}
	}

	if c.InitialInvestment.LessThan(cfg.Portfolio.MinInvestment) {
		return &ValidationError{Reason: fmt.Sprintf("initial investment %s is below the minimum %s", c.InitialInvestment, cfg.Portfolio.MinInvestment)}
	}
	if c.InitialInvestment.GreaterThan(cfg.Portfolio.MaxPortfolioValue) {
		return &ValidationError{Reason: fmt.Sprintf("initial investment %s exceeds the maximum %s", c.InitialInvestment, cfg.Portfolio.MaxPortfolioValue)}
	}

	if len(c.Allocations) == 0 {
		return &ValidationError{Reason: "at least one stock must be allocated"}
	}

	seen := make(map[string]bool, len(c.Allocations))
	sum := decimal.Zero
	for _, alloc := range c.Allocations {
		if alloc.Stock == nil {
			return &ValidationError{Reason: "allocation references no stock"}
		}
		symbol := alloc.Stock.Symbol()
		if seen[symbol] {
			return &ValidationError{Reason: fmt.Sprintf("duplicate symbol %s", symbol)}
		}
		seen[symbol] = true

		if !alloc.Percent.IsPositive() || alloc.Percent.GreaterThan(decimal.NewFromInt(1)) {
			return &ValidationError{Reason: fmt.Sprintf("allocation for %s must be in (0, 1], got %s", symbol, alloc.Percent)}
		}
		sum = sum.Add(alloc.Percent)
	}

	if !decimalutil.QuantizePercent(sum).Equal(decimal.NewFromInt(1)) {
		return &ValidationError{Reason: fmt.Sprintf("allocation percentages must sum to exactly 1, got %s", sum)}
	}

	return nil
}
