// Package portfolio implements the per-portfolio rebalancing engine: the
// deviation-gated rebalance state machine, the TTL rebalance lock and the
// stale-state invariant.
package portfolio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/KotFed0t/portfolio_rebalancer/config"
	"github.com/KotFed0t/portfolio_rebalancer/internal/broker"
	"github.com/KotFed0t/portfolio_rebalancer/internal/decimalutil"
	"github.com/KotFed0t/portfolio_rebalancer/internal/model"
	"github.com/KotFed0t/portfolio_rebalancer/internal/stock"
	"github.com/KotFed0t/portfolio_rebalancer/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Registry is what the portfolio needs from its registry: non-owning
// membership keyed by the portfolio's symbols. Production code and tests
// may inject an isolated registry; nil disables registration.
type Registry interface {
	Register(p *Portfolio)
	Unregister(p *Portfolio)
}

type allocatedStock struct {
	stock    *stock.Stock
	percent  decimal.Decimal
	quantity decimal.Decimal
}

// Portfolio holds allocated positions and drives them back to the target
// distribution. All mutation goes through Initialize and Rebalance; both
// are rejected while the portfolio is stale.
type Portfolio struct {
	id                uuid.UUID
	name              string
	initialInvestment decimal.Decimal
	broker            broker.Broker
	registry          Registry
	cfg               *config.Config
	now               func() time.Time

	lock rebalanceLock

	mu                sync.RWMutex
	allocations       map[string]*allocatedStock
	symbols           []string
	stale             bool
	rebalanceAttempts int
}

type Option func(*Portfolio)

// WithNow overrides the clock used by the rebalance lock TTL.
func WithNow(now func() time.Time) Option {
	return func(p *Portfolio) { p.now = now }
}

// New validates the configuration and returns an inert portfolio; no
// orders are issued until Initialize.
func New(cfg *config.Config, pcfg PortfolioConfig, brk broker.Broker, registry Registry, opts ...Option) (*Portfolio, error) {
	if err := pcfg.validate(cfg); err != nil {
		return nil, err
	}

	id := pcfg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	p := &Portfolio{
		id:                id,
		name:              pcfg.Name,
		initialInvestment: decimalutil.QuantizeMoney(pcfg.InitialInvestment),
		broker:            brk,
		registry:          registry,
		cfg:               cfg,
		now:               time.Now,
		allocations:       make(map[string]*allocatedStock, len(pcfg.Allocations)),
	}

	for _, alloc := range pcfg.Allocations {
		symbol := alloc.Stock.Symbol()
		p.allocations[symbol] = &allocatedStock{
			stock:   alloc.Stock,
			percent: decimalutil.QuantizePercent(alloc.Percent),
		}
		p.symbols = append(p.symbols, symbol)
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

func (p *Portfolio) ID() uuid.UUID {
	return p.id
}

func (p *Portfolio) Name() string {
	return p.name
}

// Symbols returns the allocated symbols in construction order.
func (p *Portfolio) Symbols() []string {
	out := make([]string, len(p.symbols))
	copy(out, p.symbols)
	return out
}

func (p *Portfolio) Stale() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stale
}

// ClearStale resets the stale flag. Operator action only: holdings and
// broker state must have been reconciled externally first.
func (p *Portfolio) ClearStale() {
	p.mu.Lock()
	p.stale = false
	p.mu.Unlock()
	slog.Warn("stale state cleared by operator", slog.String("portfolio", p.name))
}

func (p *Portfolio) setStale() {
	p.mu.Lock()
	p.stale = true
	p.mu.Unlock()
	slog.Error("portfolio entered stale state", slog.String("portfolio", p.name))
}

// Quantity returns the held quantity for a symbol.
func (p *Portfolio) Quantity(symbol string) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	alloc, ok := p.allocations[symbol]
	if !ok {
		return decimal.Zero
	}
	return alloc.quantity
}

// TotalValue computes the portfolio's current worth from held quantities
// and current prices, with the informational retail classification.
func (p *Portfolio) TotalValue() model.PortfolioValue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalValueLocked()
}

func (p *Portfolio) totalValueLocked() model.PortfolioValue {
	total := decimal.Zero
	for _, alloc := range p.allocations {
		total = total.Add(alloc.quantity.Mul(alloc.stock.CurrentPrice()))
	}
	total = decimalutil.QuantizeMoney(total)
	return model.PortfolioValue{
		TotalValue: total,
		IsRetail:   total.LessThan(p.cfg.Portfolio.RetailThreshold),
	}
}

// Initialize establishes the opening positions: one buy-by-amount per
// allocation under a fresh batch id, concurrently. All-or-nothing: any
// failure triggers a batch rollback, and a failed rollback leaves the
// portfolio stale.
func (p *Portfolio) Initialize(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Portfolio.Initialize"

	if p.Stale() {
		return &StaleError{PortfolioName: p.name}
	}

	batchID := uuid.New()

	slog.Debug("Initialize start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolio", p.name), slog.String("batchID", batchID.String()))

	reqs := make([]model.OrderRequest, 0, len(p.symbols))
	for _, symbol := range p.symbols {
		alloc := p.allocations[symbol]
		targetAmount := decimalutil.QuantizeMoney(p.initialInvestment.Mul(alloc.percent))
		reqs = append(reqs, model.NewBuyByAmount(symbol, targetAmount, batchID))
	}

	results := p.executeConcurrently(ctx, reqs)

	failed := failures(batchID, results)
	if len(failed) == 0 {
		p.mu.Lock()
		for _, res := range results {
			alloc := p.allocations[res.outcome.Request.Symbol]
			alloc.quantity = res.outcome.Quantity
		}
		p.mu.Unlock()

		p.broker.DiscardBatch(batchID)

		if p.registry != nil {
			p.registry.Register(p)
		}

		slog.Debug("Initialize finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolio", p.name))
		return nil
	}

	slog.Error(
		"initialization orders failed, rolling back",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.String("portfolio", p.name),
		slog.Int("failedOps", len(failed)),
	)

	if !p.broker.RollbackBatch(ctx, batchID) {
		p.setStale()
		return &StaleError{PortfolioName: p.name, Failed: failed}
	}

	return &InitializationError{PortfolioName: p.name, Failed: failed}
}

// Rebalance drives the portfolio back to its target allocation. A held,
// unexpired lock means a rebalance is already in flight and subsumes this
// one: the call returns nil with no side effects.
func (p *Portfolio) Rebalance(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Portfolio.Rebalance"

	if p.Stale() {
		return &StaleError{PortfolioName: p.name}
	}

	if !p.lock.tryAcquire(p.now(), p.cfg.Portfolio.RebalanceLockTTL) {
		slog.Debug("rebalance already in flight, skipping", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolio", p.name))
		return nil
	}
	defer p.lock.release()

	// Snapshot prices and holdings. Prices arriving after this point do
	// not reenter the calculation; the next price change retriggers.
	type position struct {
		symbol   string
		price    decimal.Decimal
		percent  decimal.Decimal
		quantity decimal.Decimal
	}

	p.mu.RLock()
	positions := make([]position, 0, len(p.symbols))
	for _, symbol := range p.symbols {
		alloc := p.allocations[symbol]
		positions = append(positions, position{
			symbol:   symbol,
			price:    alloc.stock.CurrentPrice(),
			percent:  alloc.percent,
			quantity: alloc.quantity,
		})
	}
	p.mu.RUnlock()

	totalValue := decimal.Zero
	for _, pos := range positions {
		totalValue = totalValue.Add(pos.quantity.Mul(pos.price))
	}

	if totalValue.IsZero() {
		return nil
	}

	maxDeviation := decimal.Zero
	for _, pos := range positions {
		currentPercent := pos.quantity.Mul(pos.price).Div(totalValue)
		deviation := currentPercent.Sub(pos.percent).Abs()
		if deviation.GreaterThan(maxDeviation) {
			maxDeviation = deviation
		}
	}

	if maxDeviation.LessThan(p.cfg.Portfolio.RebalanceDeviationThreshold) {
		slog.Debug(
			"max deviation below threshold, nothing to do",
			slog.String("rqID", rqID),
			slog.String("op", op),
			slog.String("portfolio", p.name),
			slog.String("maxDeviation", maxDeviation.String()),
		)
		return nil
	}

	batchID := uuid.New()

	var sells, buys []model.OrderRequest
	for _, pos := range positions {
		targetQuantity := decimalutil.QuantizeQuantity(totalValue.Mul(pos.percent).Div(pos.price))
		delta := targetQuantity.Sub(pos.quantity)
		switch {
		case delta.IsZero():
		case delta.IsNegative():
			sells = append(sells, model.NewSellByQuantity(pos.symbol, delta.Abs(), batchID))
		default:
			buys = append(buys, model.NewBuyByQuantity(pos.symbol, delta, batchID))
		}
	}

	if len(sells) == 0 && len(buys) == 0 {
		return nil
	}

	slog.Info(
		"rebalancing",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.String("portfolio", p.name),
		slog.String("totalValue", totalValue.String()),
		slog.String("maxDeviation", maxDeviation.String()),
		slog.Int("sells", len(sells)),
		slog.Int("buys", len(buys)),
		slog.String("batchID", batchID.String()),
	)

	// Sells before buys so freed cash funds the buys; concurrent within
	// each phase.
	results := p.executeConcurrently(ctx, sells)
	results = append(results, p.executeConcurrently(ctx, buys)...)

	failed := failures(batchID, results)
	if len(failed) == 0 {
		p.mu.Lock()
		for _, res := range results {
			alloc := p.allocations[res.outcome.Request.Symbol]
			if res.outcome.Request.Side == model.SideBuy {
				alloc.quantity = decimalutil.QuantizeQuantity(alloc.quantity.Add(res.outcome.Quantity))
			} else {
				alloc.quantity = decimalutil.QuantizeQuantity(alloc.quantity.Sub(res.outcome.Quantity))
			}
		}
		p.rebalanceAttempts = 0
		p.mu.Unlock()

		p.broker.DiscardBatch(batchID)

		slog.Info("rebalance committed", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolio", p.name))
		return nil
	}

	slog.Error(
		"rebalance orders failed, rolling back",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.String("portfolio", p.name),
		slog.Int("failedOps", len(failed)),
		slog.String("batchID", batchID.String()),
	)

	if !p.broker.RollbackBatch(ctx, batchID) {
		p.setStale()
		return &StaleError{PortfolioName: p.name, Failed: failed}
	}

	p.mu.Lock()
	p.rebalanceAttempts++
	attempt := p.rebalanceAttempts
	p.mu.Unlock()

	return &RetryError{PortfolioName: p.name, Failed: failed, Attempt: attempt}
}

type orderResult struct {
	outcome model.OrderOutcome
	err     error
}

func (p *Portfolio) executeConcurrently(ctx context.Context, reqs []model.OrderRequest) []orderResult {
	results := make([]orderResult, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req model.OrderRequest) {
			defer wg.Done()
			outcome, err := p.dispatch(ctx, req)
			results[i] = orderResult{outcome: outcome, err: err}
		}(i, req)
	}
	wg.Wait()

	return results
}

func (p *Portfolio) dispatch(ctx context.Context, req model.OrderRequest) (model.OrderOutcome, error) {
	switch {
	case req.Side == model.SideBuy && req.ByAmount:
		return p.broker.BuyByAmount(ctx, req)
	case req.Side == model.SideBuy:
		return p.broker.BuyByQuantity(ctx, req)
	case req.Side == model.SideSell && req.ByAmount:
		return p.broker.SellByAmount(ctx, req)
	default:
		return p.broker.SellByQuantity(ctx, req)
	}
}

func failures(batchID uuid.UUID, results []orderResult) []model.OperationFailure {
	var failed []model.OperationFailure
	for _, res := range results {
		if res.err == nil {
			continue
		}
		failed = append(failed, model.OperationFailure{
			OperationID: res.outcome.Request.OperationID,
			BatchID:     batchID,
			Symbol:      res.outcome.Request.Symbol,
			Side:        res.outcome.Request.Side,
			Reason:      res.err.Error(),
		})
	}
	return failed
}

// Report builds the read model consumed by the report generator.
func (p *Portfolio) Report() model.PortfolioReport {
	p.mu.RLock()
	defer p.mu.RUnlock()

	value := p.totalValueLocked()

	report := model.PortfolioReport{
		PortfolioID:   p.id.String(),
		PortfolioName: p.name,
		TotalValue:    value.TotalValue,
		IsRetail:      value.IsRetail,
		Stale:         p.stale,
	}

	for _, symbol := range p.symbols {
		alloc := p.allocations[symbol]
		price := alloc.stock.CurrentPrice()
		positionValue := decimalutil.QuantizeMoney(alloc.quantity.Mul(price))

		actualPercent := decimal.Zero
		if !value.TotalValue.IsZero() {
			actualPercent = decimalutil.QuantizePercent(alloc.quantity.Mul(price).Div(value.TotalValue))
		}

		report.Positions = append(report.Positions, model.PositionReport{
			Symbol:        symbol,
			Price:         price,
			Quantity:      alloc.quantity,
			TargetPercent: alloc.percent,
			ActualPercent: actualPercent,
			TotalValue:    positionValue,
		})
	}

	return report
}

// IsRetriable reports whether err allows a later rebalance to proceed
// (RetryError) as opposed to requiring operator intervention (StaleError).
func IsRetriable(err error) bool {
	var retry *RetryError
	return errors.As(err, &retry)
}
