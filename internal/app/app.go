package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kline-pager/internal/alerting"
	"kline-pager/internal/config"
	"kline-pager/internal/fetcher"
	"kline-pager/internal/metrics"
	"kline-pager/internal/paging"
	"kline-pager/internal/storage"
	"kline-pager/internal/ticker"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newFetcher returns the Binance client, fronted by the redis page cache when enabled.
// The returned closer is never nil.
func (a *App) newFetcher() (fetcher.KlineFetcher, func()) {
	bin := fetcher.NewBinance(fetcher.BinanceOptions{
		BaseURL:           a.Config.Binance.BaseURL,
		Timeout:           a.Config.Binance.RequestTimeout,
		RequestsPerSecond: a.Config.Binance.RequestsPerSecond,
		Burst:             a.Config.Binance.Burst,
	}, a.Logger)

	if !a.Config.Cache.Enabled {
		return bin, func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.Config.Cache.Addr,
		Password: a.Config.Cache.Password,
		DB:       a.Config.Cache.DB,
	})
	closer := func() {
		if err := rdb.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	return fetcher.NewCached(bin, rdb, a.Config.Cache.TTL, a.Logger), closer
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) newTicker() *ticker.Ticker {
	return ticker.New(ticker.Options{Interval: a.Config.Loader.Tick}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) serveMetrics(ctx context.Context) {
	metrics.Serve(ctx, a.Config.Metrics.Addr, a.Logger)
}

// interval resolves a CLI override against the configured default.
func (a *App) interval(override string) (paging.Interval, error) {
	if override == "" {
		override = a.Config.Loader.Interval
	}
	return paging.ParseInterval(override)
}

// LoadOptions configure a headless load.
type LoadOptions struct {
	Symbols  []string
	From     *time.Time
	To       *time.Time
	Interval string
	Limit    int
	CSVPath  string
	PNGPath  string
	DryRun   bool
}

// ExportOptions hold parameters for exporting stored candles.
type ExportOptions struct {
	Symbol    string
	Interval  string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Symbol   string
	Interval string
	Limit    int
}

// ViewOptions configure the terminal UI.
type ViewOptions struct {
	Symbols  []string
	Interval string
	Limit    int
	LogFile  string
}
