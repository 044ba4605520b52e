// Package stock holds the named tradable asset: a validated symbol, a
// bounded current price and threshold-gated change notification.
package stock

import (
	"context"
	"log/slog"
	"regexp"
	"sync"

	"github.com/KotFed0t/portfolio_rebalancer/config"
	"github.com/KotFed0t/portfolio_rebalancer/internal/decimalutil"
	"github.com/shopspring/decimal"
)

var symbolRe = regexp.MustCompile(`^[A-Z]{4}$`)

// PriceListener receives a notification when a stock's price moves by at
// least the alert threshold. The registry is the production listener.
type PriceListener interface {
	OnPriceChange(ctx context.Context, symbol string, oldPrice, newPrice, percentChange decimal.Decimal)
}

// Stock lives for the process's duration once registered in the market.
// Price reads and writes are guarded; the listener is invoked outside the
// guard.
type Stock struct {
	symbol   string
	cfg      *config.Config
	listener PriceListener

	mu    sync.RWMutex
	price decimal.Decimal
}

// New validates the symbol and the opening price. listener may be nil for
// stocks nobody reacts to.
func New(symbol string, price decimal.Decimal, cfg *config.Config, listener PriceListener) (*Stock, error) {
	if !symbolRe.MatchString(symbol) {
		return nil, &InvalidSymbolError{Symbol: symbol}
	}
	if err := validatePrice(symbol, price, cfg); err != nil {
		return nil, err
	}
	return &Stock{
		symbol:   symbol,
		cfg:      cfg,
		listener: listener,
		price:    decimalutil.QuantizeMoney(price),
	}, nil
}

func validatePrice(symbol string, price decimal.Decimal, cfg *config.Config) error {
	if price.LessThan(cfg.Stock.MinPrice) || price.GreaterThan(cfg.Stock.MaxPrice) {
		return &InvalidPriceError{Symbol: symbol, Price: price.String()}
	}
	return nil
}

func (s *Stock) Symbol() string {
	return s.symbol
}

func (s *Stock) CurrentPrice() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price
}

// SetPrice validates the new price, stores it and notifies the listener
// when the move is at least PriceChangeAlertThreshold. Equal prices at the
// money scale are a no-op. Sub-threshold drift updates the price without
// dispatching.
func (s *Stock) SetPrice(ctx context.Context, newPrice decimal.Decimal) error {
	if err := validatePrice(s.symbol, newPrice, s.cfg); err != nil {
		return err
	}

	newPrice = decimalutil.QuantizeMoney(newPrice)

	s.mu.Lock()
	oldPrice := s.price
	if newPrice.Equal(oldPrice) {
		s.mu.Unlock()
		return nil
	}
	s.price = newPrice
	s.mu.Unlock()

	percentChange := newPrice.Sub(oldPrice).Div(oldPrice)

	slog.Debug(
		"stock price updated",
		slog.String("symbol", s.symbol),
		slog.String("old", oldPrice.String()),
		slog.String("new", newPrice.String()),
		slog.String("percentChange", percentChange.String()),
	)

	if s.listener == nil || percentChange.Abs().LessThan(s.cfg.Stock.PriceChangeAlertThreshold) {
		return nil
	}

	s.listener.OnPriceChange(ctx, s.symbol, oldPrice, newPrice, percentChange)
	return nil
}
