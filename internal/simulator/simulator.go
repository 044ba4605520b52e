// Package simulator is the demo market driver: a bounded random walk over
// the registered symbols. A real deployment replaces it with a live feed.
package simulator

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/KotFed0t/portfolio_rebalancer/config"
	"github.com/KotFed0t/portfolio_rebalancer/utils"
	"github.com/shopspring/decimal"
)

type Market interface {
	Symbols() []string
	PriceOf(symbol string) (decimal.Decimal, error)
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error
}

type Simulator struct {
	market   Market
	cfg      *config.Config
	maxDrift float64
}

func New(market Market, cfg *config.Config) *Simulator {
	return &Simulator{market: market, cfg: cfg, maxDrift: 0.03}
}

// Tick nudges every symbol by a random factor within ±maxDrift, clamped to
// the configured price bounds.
func (s *Simulator) Tick(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	for _, symbol := range s.market.Symbols() {
		price, err := s.market.PriceOf(symbol)
		if err != nil {
			continue
		}

		drift := (rand.Float64()*2 - 1) * s.maxDrift
		newPrice := price.Mul(decimal.NewFromFloat(1 + drift))

		if newPrice.LessThan(s.cfg.Stock.MinPrice) {
			newPrice = s.cfg.Stock.MinPrice
		}
		if newPrice.GreaterThan(s.cfg.Stock.MaxPrice) {
			newPrice = s.cfg.Stock.MaxPrice
		}

		if err := s.market.SetPrice(ctx, symbol, newPrice); err != nil {
			slog.Error(
				"simulator can't set price",
				slog.String("rqID", rqID),
				slog.String("symbol", symbol),
				slog.String("err", err.Error()),
			)
		}
	}

	return nil
}
