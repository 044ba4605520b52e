// Package registry maintains the symbol → portfolios index used to fan
// out rebalancing on price changes. Membership is non-owning: the registry
// holds weak pointers and never extends a portfolio's lifetime.
package registry

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"weak"

	"github.com/KotFed0t/portfolio_rebalancer/internal/portfolio"
	"github.com/KotFed0t/portfolio_rebalancer/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Registry struct {
	mu       sync.RWMutex
	bySymbol map[string]map[uuid.UUID]weak.Pointer[portfolio.Portfolio]
}

func New() *Registry {
	return &Registry{
		bySymbol: make(map[string]map[uuid.UUID]weak.Pointer[portfolio.Portfolio]),
	}
}

var defaultRegistry = New()

// Default is the process-wide registry. A convenience only; portfolios and
// tests can always inject an isolated one.
func Default() *Registry {
	return defaultRegistry
}

type cleanupKey struct {
	id      uuid.UUID
	symbols []string
}

// Register records the portfolio under each of its allocated symbols. A
// cleanup removes the entries once the portfolio is reclaimed, so a
// portfolio dropped by all external holders disappears from the index even
// without an explicit Unregister.
func (r *Registry) Register(p *portfolio.Portfolio) {
	symbols := p.Symbols()
	id := p.ID()
	wp := weak.Make(p)

	r.mu.Lock()
	for _, symbol := range symbols {
		members, ok := r.bySymbol[symbol]
		if !ok {
			members = make(map[uuid.UUID]weak.Pointer[portfolio.Portfolio])
			r.bySymbol[symbol] = members
		}
		members[id] = wp
	}
	r.mu.Unlock()

	runtime.AddCleanup(p, func(key cleanupKey) {
		r.remove(key.id, key.symbols)
	}, cleanupKey{id: id, symbols: symbols})

	slog.Info("portfolio registered", slog.String("portfolio", p.Name()), slog.Int("symbols", len(symbols)))
}

// Unregister removes all membership entries for the portfolio.
func (r *Registry) Unregister(p *portfolio.Portfolio) {
	r.remove(p.ID(), p.Symbols())
}

func (r *Registry) remove(id uuid.UUID, symbols []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, symbol := range symbols {
		members, ok := r.bySymbol[symbol]
		if !ok {
			continue
		}
		delete(members, id)
		if len(members) == 0 {
			delete(r.bySymbol, symbol)
		}
	}
}

// GetBySymbol returns the live portfolios currently holding symbol.
// Entries whose portfolio has been reclaimed are pruned on the way.
func (r *Registry) GetBySymbol(symbol string) []*portfolio.Portfolio {
	r.mu.RLock()
	members := r.bySymbol[symbol]
	portfolios := make([]*portfolio.Portfolio, 0, len(members))
	var dead []uuid.UUID
	for id, wp := range members {
		if p := wp.Value(); p != nil {
			portfolios = append(portfolios, p)
		} else {
			dead = append(dead, id)
		}
	}
	r.mu.RUnlock()

	if len(dead) > 0 {
		r.mu.Lock()
		if members, ok := r.bySymbol[symbol]; ok {
			for _, id := range dead {
				if wp, ok := members[id]; ok && wp.Value() == nil {
					delete(members, id)
				}
			}
			if len(members) == 0 {
				delete(r.bySymbol, symbol)
			}
		}
		r.mu.Unlock()
	}

	return portfolios
}

// OnPriceChange dispatches Rebalance to every portfolio holding the
// symbol, concurrently. One portfolio's failure is logged and never
// affects another; stale portfolios surface StaleError here and are
// likewise only logged.
func (r *Registry) OnPriceChange(ctx context.Context, symbol string, oldPrice, newPrice, percentChange decimal.Decimal) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	portfolios := r.GetBySymbol(symbol)
	if len(portfolios) == 0 {
		return
	}

	slog.Info(
		"price change dispatch",
		slog.String("rqID", rqID),
		slog.String("symbol", symbol),
		slog.String("old", oldPrice.String()),
		slog.String("new", newPrice.String()),
		slog.String("percentChange", percentChange.String()),
		slog.Int("portfolios", len(portfolios)),
	)

	var wg sync.WaitGroup
	for _, p := range portfolios {
		wg.Add(1)
		go func(p *portfolio.Portfolio) {
			defer wg.Done()
			if err := p.Rebalance(ctx); err != nil {
				slog.Error(
					"rebalance dispatch failed",
					slog.String("rqID", rqID),
					slog.String("symbol", symbol),
					slog.String("portfolio", p.Name()),
					slog.String("err", err.Error()),
				)
			}
		}(p)
	}
	wg.Wait()
}
