package app

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"kline-pager/internal/loader"
	"kline-pager/internal/paging"
	"kline-pager/internal/service"
	"kline-pager/internal/storage"
)

// Load fetches every requested symbol over the window and optionally exports each series.
func (a *App) Load(ctx context.Context, opts LoadOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reqs, err := a.buildRequests(opts, time.Now())
	if err != nil {
		return err
	}

	var candleStore storage.CandleStore
	var loadStore storage.LoadStore
	if opts.DryRun {
		a.Logger.Warn().Msg("dry-run: nothing will be written to the database")
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
		} else {
			defer closeStore()
			candleStore = store
			loadStore = store
		}
	}

	a.serveMetrics(ctx)

	fetch, closeFetch := a.newFetcher()
	defer closeFetch()

	svc := service.New(a.Config, a.newTicker(), fetch, candleStore, loadStore, a.newNotifier(), a.Logger)

	results, loadErr := svc.LoadAll(ctx, reqs)
	if errors.Is(loadErr, context.Canceled) {
		a.Logger.Info().Msg("load interrupted")
		return loadErr
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			a.Logger.Error().Err(res.Err).Str("symbol", res.Request.Symbol).Msg("load failed")
			continue
		}
		a.Logger.Info().
			Str("symbol", res.Request.Symbol).
			Int("candles", len(res.Candles)).
			Int("pages", res.Pages).
			Dur("took", res.Took).
			Msg("load finished")

		if err := a.exportSeries(res.Request.Symbol, len(reqs) > 1, opts, res); err != nil {
			return err
		}
	}

	a.Logger.Info().Int("loaded", len(results)-failed).Int("failed", failed).Msg("all loads finished")
	if failed > 0 {
		return errors.New("some symbols failed to load; check the logs")
	}
	return loadErr
}

func (a *App) exportSeries(symbol string, multi bool, opts LoadOptions, res service.Result) error {
	if opts.CSVPath != "" {
		if err := writeCandlesCSV(perSymbolPath(opts.CSVPath, symbol, multi), res.Candles); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		points := downsampleCandles(res.Candles, a.Config.Export.MaxDataPoints)
		if err := writeCandlesPNG(perSymbolPath(opts.PNGPath, symbol, multi), symbol, points); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) buildRequests(opts LoadOptions, now time.Time) ([]loader.Request, error) {
	symbols := opts.Symbols
	if len(symbols) == 0 {
		symbols = a.Config.Loader.Symbols
	}
	if len(symbols) == 0 {
		return nil, loader.ErrMissingSymbol
	}

	interval, err := a.interval(opts.Interval)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit == 0 {
		limit = a.Config.Loader.PageLimit
	}

	window := a.Config.DefaultWindow(now)
	if opts.From != nil {
		window.Start = opts.From.UTC()
	}
	if opts.To != nil {
		window.End = opts.To.UTC()
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	reqs := make([]loader.Request, 0, len(symbols))
	for _, sym := range symbols {
		reqs = append(reqs, loader.Request{
			Symbol:   strings.ToUpper(strings.TrimSpace(sym)),
			Window:   paging.Window{Start: window.Start, End: window.End},
			Interval: interval,
			Limit:    limit,
		})
	}
	return reqs, nil
}
