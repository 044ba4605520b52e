package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/KotFed0t/portfolio_rebalancer/config"
	"github.com/KotFed0t/portfolio_rebalancer/internal/model/quoteModel"
	"github.com/KotFed0t/portfolio_rebalancer/utils"
	"github.com/redis/go-redis/v9"
)

// RedisCache caches market quotes only. Portfolio and batch state never
// touch it; the engine is in-memory by contract.
type RedisCache struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisCache(redisClient *redis.Client, cfg *config.Config) *RedisCache {
	return &RedisCache{redis: redisClient, cfg: cfg}
}

func (r *RedisCache) SetQuotes(ctx context.Context, quotes []quoteModel.Quote) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("start SetQuotes", slog.String("rqID", rqID))

	pipe := r.redis.Pipeline()
	for _, quote := range quotes {
		quoteJson, err := json.Marshal(quote)
		if err != nil {
			slog.Error(
				"can't marshall quote in SetQuotes",
				slog.String("rqID", rqID),
				slog.String("err", err.Error()),
				slog.Any("quote", quote),
			)
			return errors.New("can't marshall quote")
		}

		pipe.Set(ctx, quote.Symbol, quoteJson, r.cfg.Redis.QuotesExpiration)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("failed on pipe.Exec", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetQuotes completed", slog.String("rqID", rqID))

	return nil
}

func (r *RedisCache) GetQuotes(ctx context.Context, symbols []string) ([]quoteModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("start GetQuotes", slog.String("rqID", rqID))

	res, err := r.redis.MGet(ctx, symbols...).Result()
	if err != nil {
		slog.Error("failed on MGet", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return nil, err
	}

	quotes := make([]quoteModel.Quote, 0, len(symbols))
	for i, raw := range res {
		rawStr, ok := raw.(string)
		if !ok {
			slog.Warn("quote not found in cache", slog.String("rqID", rqID), slog.String("symbol", symbols[i]))
			continue
		}

		quote := quoteModel.Quote{}
		if err := json.Unmarshal([]byte(rawStr), &quote); err != nil {
			slog.Error("can't unmarshall cached quote", slog.String("rqID", rqID), slog.String("err", err.Error()))
			continue
		}
		quotes = append(quotes, quote)
	}

	slog.Debug("GetQuotes completed", slog.String("rqID", rqID), slog.Int("found", len(quotes)))

	return quotes, nil
}
