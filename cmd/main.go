package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KotFed0t/portfolio_rebalancer/config"
	"github.com/KotFed0t/portfolio_rebalancer/data"
	"github.com/KotFed0t/portfolio_rebalancer/data/cache"
	"github.com/KotFed0t/portfolio_rebalancer/internal/broker"
	"github.com/KotFed0t/portfolio_rebalancer/internal/externalApi/quotesApi"
	"github.com/KotFed0t/portfolio_rebalancer/internal/market"
	"github.com/KotFed0t/portfolio_rebalancer/internal/model"
	"github.com/KotFed0t/portfolio_rebalancer/internal/portfolio"
	"github.com/KotFed0t/portfolio_rebalancer/internal/registry"
	"github.com/KotFed0t/portfolio_rebalancer/internal/reportGenerator/xlsxGenerator"
	"github.com/KotFed0t/portfolio_rebalancer/internal/scheduler"
	"github.com/KotFed0t/portfolio_rebalancer/internal/service/rebalancerService"
	"github.com/KotFed0t/portfolio_rebalancer/internal/simulator"
	"github.com/KotFed0t/portfolio_rebalancer/utils"
	"github.com/shopspring/decimal"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New()

	mkt := market.New(cfg, reg)
	seedDemoMarket(mkt)

	brk := broker.New(mkt, cfg, broker.WithExecHook(simulatedLatency))

	redisClient := data.NewRedisClient(cfg)
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, cfg)

	quotesApiClient := quotesApi.New(cfg)

	reportGenerator := xlsxGenerator.New()

	rebalancerSrv := rebalancerService.New(cfg, mkt, redisCache, quotesApiClient, reportGenerator, brk, reg)

	createDemoPortfolios(ctx, mkt, rebalancerSrv)

	sim := simulator.New(mkt, cfg)

	sched := scheduler.New()
	sched.NewIntervalJob("poll quotes", rebalancerSrv.PollQuotes, cfg.Jobs.PollQuotesInterval, false)
	sched.NewIntervalJob("simulate prices", sim.Tick, cfg.Jobs.SimulatorInterval, true)
	sched.NewIntervalJob("sweep stale batches", func(ctx context.Context) error {
		removed := brk.SweepBatches(cfg.Broker.BatchMaxAge)
		if removed > 0 {
			slog.Info("swept abandoned batches", slog.Int("removed", removed))
		}
		return nil
	}, cfg.Jobs.BatchSweepInterval, false)
	sched.Start()
	defer sched.Stop()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt

	writeFinalReport(ctx, rebalancerSrv)
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}

func simulatedLatency(ctx context.Context, _ model.OrderRequest) error {
	delay := time.Duration(50+rand.IntN(100)) * time.Millisecond
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func seedDemoMarket(mkt *market.Market) {
	seed := map[string]string{
		"AAAA": "250",
		"BBBB": "150",
		"CCCC": "600",
		"DDDD": "100",
	}
	for symbol, price := range seed {
		if _, err := mkt.Register(symbol, decimal.RequireFromString(price)); err != nil {
			slog.Error("can't register stock", slog.String("symbol", symbol), slog.String("err", err.Error()))
		}
	}
}

func createDemoPortfolios(ctx context.Context, mkt *market.Market, srv *rebalancerService.RebalancerService) {
	ctx = utils.CreateCtxWithRqID(ctx)

	aaaa, _ := mkt.Get("AAAA")
	bbbb, _ := mkt.Get("BBBB")
	cccc, _ := mkt.Get("CCCC")
	dddd, _ := mkt.Get("DDDD")

	configs := []portfolio.PortfolioConfig{
		{
			Name:              "balanced growth",
			InitialInvestment: decimal.NewFromInt(10000),
			Allocations: []portfolio.StockAllocation{
				{Stock: aaaa, Percent: decimal.RequireFromString("0.4")},
				{Stock: bbbb, Percent: decimal.RequireFromString("0.2")},
				{Stock: cccc, Percent: decimal.RequireFromString("0.4")},
			},
		},
		{
			Name:              "two stock split",
			InitialInvestment: decimal.NewFromInt(50000),
			Allocations: []portfolio.StockAllocation{
				{Stock: cccc, Percent: decimal.RequireFromString("0.5")},
				{Stock: dddd, Percent: decimal.RequireFromString("0.5")},
			},
		},
	}

	for _, pcfg := range configs {
		if _, err := srv.CreatePortfolio(ctx, pcfg); err != nil {
			slog.Error("can't create portfolio", slog.String("portfolioName", pcfg.Name), slog.String("err", err.Error()))
		}
	}
}

func writeFinalReport(ctx context.Context, srv *rebalancerService.RebalancerService) {
	ctx = utils.CreateCtxWithRqID(context.WithoutCancel(ctx))

	fileBytes, ext, err := srv.GenerateReport(ctx)
	if err != nil {
		slog.Error("can't generate final report", slog.String("err", err.Error()))
		return
	}

	fileName := "portfolio_report" + ext
	if err := os.WriteFile(fileName, fileBytes, 0o644); err != nil {
		slog.Error("can't write final report", slog.String("err", err.Error()))
		return
	}
	slog.Info("final report written", slog.String("file", fileName))
}
