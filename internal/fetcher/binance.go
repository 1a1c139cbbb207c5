package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"kline-pager/internal/loader"
	"kline-pager/internal/market"
	"kline-pager/internal/metrics"
	"kline-pager/internal/paging"
)

// MaxPageLimit is the largest limit accepted by the spot klines endpoint.
const MaxPageLimit = 1000

// BinanceOptions parameterise the spot klines fetcher.
type BinanceOptions struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Binance fetches klines from the Binance spot REST API.
type Binance struct {
	opts    BinanceOptions
	logger  zerolog.Logger
	client  *binance.Client
	limiter *rate.Limiter
}

// NewBinance constructs a kline fetcher.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := binance.NewClient("", "")
	if baseURL := strings.TrimRight(opts.BaseURL, "/"); baseURL != "" {
		client.BaseURL = baseURL
	}
	client.HTTPClient = &http.Client{Timeout: timeout}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Binance{
		opts:    opts,
		logger:  logger.With().Str("component", "binance_fetcher").Logger(),
		client:  client,
		limiter: limiter,
	}
}

// FetchPage requests up to limit klines opening at or after start.
func (b *Binance) FetchPage(ctx context.Context, symbol string, interval paging.Interval, start time.Time, limit int) ([]market.Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.New("symbol is required")
	}
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: %q", paging.ErrUnsupportedInterval, string(interval))
	}
	if limit <= 0 || limit > MaxPageLimit {
		return nil, fmt.Errorf("limit must be within 1..%d, got %d", MaxPageLimit, limit)
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	began := time.Now()
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval.String()).
		StartTime(start.UnixMilli()).
		Limit(limit).
		Do(ctx)
	if err != nil {
		metrics.FetchDuration.WithLabelValues("binance", "error").Observe(time.Since(began).Seconds())
		return nil, wrapAPIError(err)
	}
	metrics.FetchDuration.WithLabelValues("binance", "ok").Observe(time.Since(began).Seconds())

	out := make([]market.Candle, 0, len(klines))
	for _, kl := range klines {
		if kl == nil {
			continue
		}
		candle, err := toCandle(symbol, interval, kl)
		if err != nil {
			return nil, err
		}
		out = append(out, candle)
	}

	b.logger.Debug().
		Str("symbol", symbol).
		Str("interval", interval.String()).
		Time("start", start).
		Int("limit", limit).
		Int("received", len(out)).
		Dur("took", time.Since(began)).
		Msg("klines fetched")
	return out, nil
}

type decimalField struct {
	name string
	raw  string
	dst  *decimal.Decimal
}

func toCandle(symbol string, interval paging.Interval, kl *binance.Kline) (market.Candle, error) {
	candle := market.Candle{
		Symbol:    symbol,
		Interval:  interval.String(),
		OpenTime:  time.UnixMilli(kl.OpenTime).UTC(),
		CloseTime: time.UnixMilli(kl.CloseTime).UTC(),
		Trades:    kl.TradeNum,
	}
	fields := []decimalField{
		{"open", kl.Open, &candle.Open},
		{"high", kl.High, &candle.High},
		{"low", kl.Low, &candle.Low},
		{"close", kl.Close, &candle.Close},
		{"volume", kl.Volume, &candle.Volume},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return market.Candle{}, fmt.Errorf("parse kline %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return candle, nil
}

func wrapAPIError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("binance api error (%d): %s: %w", apiErr.Code, apiErr.Message, err)
	}
	return err
}

var (
	_ KlineFetcher                      = (*Binance)(nil)
	_ loader.PageFetcher[market.Candle] = (*Binance)(nil)
)
