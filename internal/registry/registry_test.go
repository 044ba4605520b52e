package registry

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/KotFed0t/portfolio_rebalancer/config"
	"github.com/KotFed0t/portfolio_rebalancer/internal/broker"
	"github.com/KotFed0t/portfolio_rebalancer/internal/market"
	"github.com/KotFed0t/portfolio_rebalancer/internal/model"
	"github.com/KotFed0t/portfolio_rebalancer/internal/portfolio"
	"github.com/shopspring/decimal"
)

func testConfig() *config.Config {
	return &config.Config{
		Stock: config.Stock{
			MinPrice:                  decimal.RequireFromString("0.01"),
			MaxPrice:                  decimal.NewFromInt(1_000_000),
			PriceChangeAlertThreshold: decimal.RequireFromString("0.01"),
		},
		Broker: config.Broker{
			MaxQuantity:         decimal.NewFromInt(1_000_000),
			RollbackMaxAttempts: 3,
			RollbackRetryDelay:  time.Millisecond,
			BatchMaxAge:         24 * time.Hour,
		},
		Portfolio: config.Portfolio{
			MinInvestment:               decimal.NewFromInt(1),
			MaxPortfolioValue:           decimal.NewFromInt(10_000_000),
			RebalanceDeviationThreshold: decimal.RequireFromString("0.02"),
			RebalanceLockTTL:            6 * time.Hour,
			RetailThreshold:             decimal.NewFromInt(25_000),
		},
	}
}

type fixture struct {
	cfg    *config.Config
	reg    *Registry
	market *market.Market
	broker *broker.BatchBroker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testConfig()
	reg := New()
	mkt := market.New(cfg, reg)
	for symbol, price := range map[string]string{
		"AAAA": "250",
		"BBBB": "150",
		"CCCC": "600",
	} {
		if _, err := mkt.Register(symbol, decimal.RequireFromString(price)); err != nil {
			t.Fatalf("register %s: %v", symbol, err)
		}
	}
	brk := broker.New(mkt, cfg)

	return &fixture{cfg: cfg, reg: reg, market: mkt, broker: brk}
}

func (f *fixture) newPortfolio(t *testing.T, name string, symbols ...string) *portfolio.Portfolio {
	t.Helper()

	percent := decimal.NewFromInt(1).DivRound(decimal.NewFromInt(int64(len(symbols))), 4)
	allocations := make([]portfolio.StockAllocation, 0, len(symbols))
	remainder := decimal.NewFromInt(1)
	for i, symbol := range symbols {
		s, ok := f.market.Get(symbol)
		if !ok {
			t.Fatalf("unknown symbol %s", symbol)
		}
		share := percent
		if i == len(symbols)-1 {
			share = remainder
		}
		remainder = remainder.Sub(share)
		allocations = append(allocations, portfolio.StockAllocation{Stock: s, Percent: share})
	}

	p, err := portfolio.New(f.cfg, portfolio.PortfolioConfig{
		Name:              name,
		InitialInvestment: decimal.NewFromInt(10_000),
		Allocations:       allocations,
	}, f.broker, f.reg)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestGetBySymbol(t *testing.T) {
	f := newFixture(t)

	p1 := f.newPortfolio(t, "p1", "AAAA", "BBBB")
	p2 := f.newPortfolio(t, "p2", "BBBB", "CCCC")

	holders := f.reg.GetBySymbol("BBBB")
	if len(holders) != 2 {
		t.Fatalf("BBBB holders = %d, want 2", len(holders))
	}

	holders = f.reg.GetBySymbol("AAAA")
	if len(holders) != 1 || holders[0] != p1 {
		t.Fatalf("AAAA holders = %v", holders)
	}

	if got := f.reg.GetBySymbol("ZZZZ"); len(got) != 0 {
		t.Fatalf("unknown symbol holders = %d", len(got))
	}

	f.reg.Unregister(p2)
	holders = f.reg.GetBySymbol("CCCC")
	if len(holders) != 0 {
		t.Fatalf("CCCC holders after unregister = %d", len(holders))
	}
}

// Symbol-indexed dispatch: a price change on one symbol rebalances exactly
// the portfolios holding it.
func TestOnPriceChange_DispatchesToHoldersOnly(t *testing.T) {
	f := newFixture(t)

	p1 := f.newPortfolio(t, "p1", "AAAA", "BBBB")
	p2 := f.newPortfolio(t, "p2", "BBBB", "CCCC")
	p3 := f.newPortfolio(t, "p3", "CCCC", "AAAA")

	p1Before := p1.Quantity("BBBB")
	p2Before := p2.Quantity("BBBB")
	p3Before := map[string]decimal.Decimal{
		"AAAA": p3.Quantity("AAAA"),
		"CCCC": p3.Quantity("CCCC"),
	}

	// A big move on BBBB: p1 and p2 rebalance, p3 is not touched. The
	// stock notifies the registry itself.
	if err := f.market.SetPrice(context.Background(), "BBBB", decimal.NewFromInt(300)); err != nil {
		t.Fatal(err)
	}

	if p1.Quantity("BBBB").Equal(p1Before) {
		t.Fatal("p1 holds BBBB and should have rebalanced")
	}
	if p2.Quantity("BBBB").Equal(p2Before) {
		t.Fatal("p2 holds BBBB and should have rebalanced")
	}
	for symbol, before := range p3Before {
		if !p3.Quantity(symbol).Equal(before) {
			t.Fatalf("p3 does not hold BBBB and must not be touched, %s changed", symbol)
		}
	}

	// A move on CCCC reaches p2 and p3 but not p1.
	p1AAAABefore := p1.Quantity("AAAA")
	p1BBBBBefore := p1.Quantity("BBBB")
	if err := f.market.SetPrice(context.Background(), "CCCC", decimal.NewFromInt(1200)); err != nil {
		t.Fatal(err)
	}

	if p3.Quantity("CCCC").Equal(p3Before["CCCC"]) {
		t.Fatal("p3 holds CCCC and should have rebalanced")
	}
	if !p1.Quantity("AAAA").Equal(p1AAAABefore) || !p1.Quantity("BBBB").Equal(p1BBBBBefore) {
		t.Fatal("p1 does not hold CCCC and must not be touched")
	}
}

func TestOnPriceChange_SubThresholdMoveDoesNotDispatch(t *testing.T) {
	f := newFixture(t)

	p1 := f.newPortfolio(t, "p1", "AAAA", "BBBB")
	before := p1.Quantity("AAAA")

	// 0.8% move is under the 1% alert threshold: no dispatch at all.
	if err := f.market.SetPrice(context.Background(), "AAAA", decimal.NewFromInt(252)); err != nil {
		t.Fatal(err)
	}

	if !p1.Quantity("AAAA").Equal(before) {
		t.Fatal("sub-threshold move must not trigger a rebalance")
	}
}

// One portfolio's failure does not affect another: the portfolio whose
// broker rejects buys and compensating trades goes stale and is logged,
// while its sibling on a healthy broker still rebalances on the same
// dispatch.
func TestOnPriceChange_FailingPortfolioIsIsolated(t *testing.T) {
	f := newFixture(t)

	hook := &toggleHook{}
	failingBroker := broker.New(f.market, f.cfg, broker.WithExecHook(hook.exec))

	bbbb, _ := f.market.Get("BBBB")
	cccc, _ := f.market.Get("CCCC")
	p1, err := portfolio.New(f.cfg, portfolio.PortfolioConfig{
		Name:              "p1",
		InitialInvestment: decimal.NewFromInt(10_000),
		Allocations: []portfolio.StockAllocation{
			{Stock: bbbb, Percent: decimal.RequireFromString("0.5")},
			{Stock: cccc, Percent: decimal.RequireFromString("0.5")},
		},
	}, failingBroker, f.reg)
	if err != nil {
		t.Fatal(err)
	}
	if err := p1.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	p2 := f.newPortfolio(t, "p2", "BBBB", "AAAA")
	p2Before := p2.Quantity("BBBB")

	// p1's broker now rejects every buy and every compensating trade: its
	// sell of BBBB executes, its buy of CCCC fails, and the reversal of the
	// sell fails too, so the dispatch drives it stale. p2 is unaffected.
	hook.setFail(true)

	if err := f.market.SetPrice(context.Background(), "BBBB", decimal.NewFromInt(300)); err != nil {
		t.Fatal(err)
	}

	if p2.Quantity("BBBB").Equal(p2Before) {
		t.Fatal("healthy portfolio must still rebalance")
	}
	if !p1.Stale() {
		t.Fatal("failing portfolio must be stale")
	}

	// Subsequent dispatches skip the stale portfolio without disturbing
	// the healthy one.
	if err := f.market.SetPrice(context.Background(), "BBBB", decimal.NewFromInt(450)); err != nil {
		t.Fatal(err)
	}
	if !p1.Stale() {
		t.Fatal("stale portfolio must stay stale")
	}
}

// toggleHook, once set to fail, rejects buys and compensating trades;
// sells still execute.
type toggleHook struct {
	mu   sync.Mutex
	fail bool
}

func (h *toggleHook) setFail(fail bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fail = fail
}

func (h *toggleHook) exec(_ context.Context, req model.OrderRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail && (req.Rollback || req.Side == model.SideBuy) {
		return errors.New("transport down")
	}
	return nil
}

func TestRegistry_WeakMembershipReclaimed(t *testing.T) {
	f := newFixture(t)

	create := func() {
		p := f.newPortfolio(t, "ephemeral", "AAAA")
		_ = p
	}
	create()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		if len(f.reg.GetBySymbol("AAAA")) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatal("dropped portfolio still reachable through the registry")
}
