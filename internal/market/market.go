// Package market is the process's set of tradable stocks: the price source
// the broker executes against and the write side the quote feed and the
// demo simulator push prices into.
package market

import (
	"context"
	"errors"
	"sync"

	"github.com/KotFed0t/portfolio_rebalancer/config"
	"github.com/KotFed0t/portfolio_rebalancer/internal/stock"
	"github.com/shopspring/decimal"
)

var ErrStockNotFound = errors.New("stock not found")

type Market struct {
	cfg      *config.Config
	listener stock.PriceListener

	mu     sync.RWMutex
	stocks map[string]*stock.Stock
}

// New creates an empty market. listener (typically the portfolio registry)
// is attached to every stock registered afterwards.
func New(cfg *config.Config, listener stock.PriceListener) *Market {
	return &Market{
		cfg:      cfg,
		listener: listener,
		stocks:   make(map[string]*stock.Stock),
	}
}

// Register creates a stock and adds it to the market. Registering an
// already-known symbol returns the existing stock.
func (m *Market) Register(symbol string, price decimal.Decimal) (*stock.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stocks[symbol]; ok {
		return s, nil
	}

	s, err := stock.New(symbol, price, m.cfg, m.listener)
	if err != nil {
		return nil, err
	}
	m.stocks[symbol] = s
	return s, nil
}

func (m *Market) Get(symbol string) (*stock.Stock, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stocks[symbol]
	return s, ok
}

func (m *Market) Has(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.stocks[symbol]
	return ok
}

func (m *Market) PriceOf(symbol string) (decimal.Decimal, error) {
	m.mu.RLock()
	s, ok := m.stocks[symbol]
	m.mu.RUnlock()
	if !ok {
		return decimal.Decimal{}, ErrStockNotFound
	}
	return s.CurrentPrice(), nil
}

// SetPrice routes an external price update to the stock, which handles
// validation, the no-op check and downstream dispatch.
func (m *Market) SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	m.mu.RLock()
	s, ok := m.stocks[symbol]
	m.mu.RUnlock()
	if !ok {
		return ErrStockNotFound
	}
	return s.SetPrice(ctx, price)
}

func (m *Market) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	symbols := make([]string, 0, len(m.stocks))
	for symbol := range m.stocks {
		symbols = append(symbols, symbol)
	}
	return symbols
}
