// Package quotesApi is the client for the external quote feed. The feed
// serves current prices for a set of symbols; the poller applies them to
// the market, which drives rebalance dispatch.
package quotesApi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/KotFed0t/portfolio_rebalancer/config"
	"github.com/KotFed0t/portfolio_rebalancer/internal/externalApi"
	"github.com/KotFed0t/portfolio_rebalancer/internal/model/quoteModel"
	"github.com/KotFed0t/portfolio_rebalancer/utils"
	"github.com/go-resty/resty/v2"
)

type QuotesApi struct {
	client *resty.Client
}

func New(cfg *config.Config) *QuotesApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.QuotesAPI.Url)
	return &QuotesApi{client: client}
}

// GetQuotes fetches current prices for the given symbols.
func (a *QuotesApi) GetQuotes(ctx context.Context, symbols []string) ([]quoteModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	url := "/v1/quotes"

	slog.Debug("start QuotesApi.GetQuotes request", slog.String("rqID", rqID))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParam("symbols", strings.Join(symbols, ",")).
		Get(url)

	if err != nil {
		slog.Error("error while dialing QuotesApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, externalApi.ErrNotFound
	}

	rawQuotes := quoteModel.RawQuotesResponse{}
	err = json.Unmarshal(resp.Body(), &rawQuotes)
	if err != nil {
		slog.Error("can't unmarshall response into quoteModel.RawQuotesResponse", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	slog.Debug("QuotesApi.GetQuotes request complete", slog.String("rqID", rqID))

	return rawQuotes.Quotes, nil
}
