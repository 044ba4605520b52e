package rebalancerService

import (
	"context"
	"log/slog"
	"sync"

	"github.com/KotFed0t/portfolio_rebalancer/config"
	"github.com/KotFed0t/portfolio_rebalancer/internal/broker"
	"github.com/KotFed0t/portfolio_rebalancer/internal/model"
	"github.com/KotFed0t/portfolio_rebalancer/internal/model/quoteModel"
	"github.com/KotFed0t/portfolio_rebalancer/internal/portfolio"
	"github.com/KotFed0t/portfolio_rebalancer/internal/service"
	"github.com/KotFed0t/portfolio_rebalancer/utils"
	"github.com/shopspring/decimal"
)

type QuotesApi interface {
	GetQuotes(ctx context.Context, symbols []string) ([]quoteModel.Quote, error)
}

type Cache interface {
	SetQuotes(ctx context.Context, quotes []quoteModel.Quote) error
	GetQuotes(ctx context.Context, symbols []string) ([]quoteModel.Quote, error)
}

type Market interface {
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error
	Symbols() []string
}

type ReportGenerator interface {
	Generate(ctx context.Context, portfolios []model.PortfolioReport) (fileBytes []byte, fileExtension string, err error)
}

// RebalancerService is the orchestration facade: it creates and
// initializes portfolios, feeds external quotes into the market (which
// drives rebalance dispatch) and produces reports.
type RebalancerService struct {
	cfg             *config.Config
	market          Market
	cache           Cache
	quotesApi       QuotesApi
	reportGenerator ReportGenerator
	broker          broker.Broker
	registry        portfolio.Registry

	mu         sync.RWMutex
	portfolios []*portfolio.Portfolio
}

func New(
	cfg *config.Config,
	market Market,
	cache Cache,
	quotesApi QuotesApi,
	reportGenerator ReportGenerator,
	brk broker.Broker,
	registry portfolio.Registry,
) *RebalancerService {
	return &RebalancerService{
		cfg:             cfg,
		market:          market,
		cache:           cache,
		quotesApi:       quotesApi,
		reportGenerator: reportGenerator,
		broker:          brk,
		registry:        registry,
	}
}

// CreatePortfolio validates the config, executes the opening batch and
// tracks the portfolio for reporting.
func (s *RebalancerService) CreatePortfolio(ctx context.Context, pcfg portfolio.PortfolioConfig) (*portfolio.Portfolio, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RebalancerService.CreatePortfolio"

	slog.Debug("CreatePortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioName", pcfg.Name))
	defer func() {
		slog.Debug("CreatePortfolio finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioName", pcfg.Name))
	}()

	p, err := portfolio.New(s.cfg, pcfg, s.broker, s.registry)
	if err != nil {
		slog.Error("got error from portfolio.New", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	if err := p.Initialize(ctx); err != nil {
		slog.Error("got error from portfolio.Initialize", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	s.mu.Lock()
	s.portfolios = append(s.portfolios, p)
	s.mu.Unlock()

	return p, nil
}

// PollQuotes is the feed job body: fetch current prices, fall back to the
// cache when the feed is unreachable, and apply them to the market. Price
// application triggers registry dispatch downstream.
func (s *RebalancerService) PollQuotes(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RebalancerService.PollQuotes"

	symbols := s.market.Symbols()
	if len(symbols) == 0 {
		return nil
	}

	quotes, err := s.quotesApi.GetQuotes(ctx, symbols)
	if err != nil {
		slog.Warn("can't get quotes from feed, falling back to cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))

		quotes, err = s.cache.GetQuotes(ctx, symbols)
		if err != nil {
			slog.Error("can't get quotes from cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return service.ErrNoQuotes
		}
	} else {
		go s.cache.SetQuotes(context.WithoutCancel(ctx), quotes)
	}

	for _, quote := range quotes {
		if err := s.market.SetPrice(ctx, quote.Symbol, quote.Price); err != nil {
			slog.Error(
				"can't apply quote",
				slog.String("rqID", rqID),
				slog.String("op", op),
				slog.String("symbol", quote.Symbol),
				slog.String("err", err.Error()),
			)
		}
	}

	return nil
}

// GenerateReport renders the current state of every tracked portfolio.
func (s *RebalancerService) GenerateReport(ctx context.Context) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RebalancerService.GenerateReport"

	slog.Debug("GenerateReport start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("GenerateReport finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	s.mu.RLock()
	reports := make([]model.PortfolioReport, 0, len(s.portfolios))
	for _, p := range s.portfolios {
		reports = append(reports, p.Report())
	}
	s.mu.RUnlock()

	if len(reports) == 0 {
		return nil, "", service.ErrNoPortfolios
	}

	return s.reportGenerator.Generate(ctx, reports)
}

// Portfolios returns the tracked portfolios.
func (s *RebalancerService) Portfolios() []*portfolio.Portfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*portfolio.Portfolio, len(s.portfolios))
	copy(out, s.portfolios)
	return out
}
