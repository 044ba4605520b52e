package model

import (
	"github.com/shopspring/decimal"
)

// PortfolioValue is the snapshot total the engine works from during one
// rebalance. IsRetail is informational classification only.
type PortfolioValue struct {
	TotalValue decimal.Decimal
	IsRetail   bool
}

// PositionReport is one allocated stock as it appears in a generated
// report.
type PositionReport struct {
	Symbol        string
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	TargetPercent decimal.Decimal
	ActualPercent decimal.Decimal
	TotalValue    decimal.Decimal
}

// PortfolioReport is the full read model of one portfolio consumed by the
// report generator.
type PortfolioReport struct {
	PortfolioID   string
	PortfolioName string
	TotalValue    decimal.Decimal
	IsRetail      bool
	Stale         bool
	Positions     []PositionReport
}
