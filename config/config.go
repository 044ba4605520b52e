package config

import (
	"log"
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	Shared    Shared
	Stock     Stock
	Broker    Broker
	Portfolio Portfolio
	Redis     Redis
	API       API
	Jobs      Jobs
}

// Shared holds the decimal scales loaded from MONEY_SCALE, QUANTITY_SCALE
// and PERCENT_SCALE. Quantization does not read these fields: it uses the
// fixed scales of internal/decimalutil (2, 9 and 4), so overriding them
// does not change rounding.
type Shared struct {
	MoneyScale    int32 `env:"MONEY_SCALE" envDefault:"2"`
	QuantityScale int32 `env:"QUANTITY_SCALE" envDefault:"9"`
	PercentScale  int32 `env:"PERCENT_SCALE" envDefault:"4"`
}

type Stock struct {
	MinPrice                  decimal.Decimal `env:"MIN_PRICE" envDefault:"0.01"`
	MaxPrice                  decimal.Decimal `env:"MAX_PRICE" envDefault:"1000000"`
	PriceChangeAlertThreshold decimal.Decimal `env:"PRICE_CHANGE_ALERT_THRESHOLD" envDefault:"0.01"`
}

type Broker struct {
	MaxQuantity         decimal.Decimal `env:"MAX_QUANTITY" envDefault:"1000000"`
	RollbackMaxAttempts int             `env:"ROLLBACK_MAX_ATTEMPTS" envDefault:"3"`
	RollbackRetryDelay  time.Duration   `env:"ROLLBACK_RETRY_DELAY" envDefault:"1s"`
	BatchMaxAge         time.Duration   `env:"BATCH_MAX_AGE" envDefault:"24h"`
}

type Portfolio struct {
	MinInvestment               decimal.Decimal `env:"MIN_INVESTMENT" envDefault:"1"`
	MaxPortfolioValue           decimal.Decimal `env:"MAX_PORTFOLIO_VALUE" envDefault:"10000000"`
	RebalanceDeviationThreshold decimal.Decimal `env:"REBALANCE_DEVIATION_THRESHOLD" envDefault:"0.02"`
	RebalanceLockTTL            time.Duration   `env:"REBALANCE_LOCK_TTL" envDefault:"6h"`
	RetailThreshold             decimal.Decimal `env:"RETAIL_THRESHOLD" envDefault:"25000"`
}

type Redis struct {
	Host             string        `env:"REDIS_HOST" envDefault:"localhost"`
	Port             int           `env:"REDIS_PORT" envDefault:"6379"`
	Password         string        `env:"REDIS_PASSWORD" envDefault:""`
	DB               int           `env:"REDIS_DB" envDefault:"0"`
	QuotesExpiration time.Duration `env:"CACHE_QUOTES_EXPIRATION" envDefault:"15m"`
}

type API struct {
	Debug     bool          `env:"API_DEBUG" envDefault:"false"`
	Timeout   time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	QuotesAPI QuotesAPI
}

type QuotesAPI struct {
	Url string `env:"QUOTES_API_URL" envDefault:"http://localhost:8085"`
}

type Jobs struct {
	PollQuotesInterval time.Duration `env:"POLL_QUOTES_JOB_INTERVAL" envDefault:"1m"`
	BatchSweepInterval time.Duration `env:"BATCH_SWEEP_JOB_INTERVAL" envDefault:"1h"`
	SimulatorInterval  time.Duration `env:"SIMULATOR_JOB_INTERVAL" envDefault:"5s"`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(decimal.Decimal{}): func(v string) (any, error) {
				return decimal.NewFromString(v)
			},
		},
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
