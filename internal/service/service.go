package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kline-pager/internal/alerting"
	"kline-pager/internal/config"
	"kline-pager/internal/loader"
	"kline-pager/internal/market"
	"kline-pager/internal/storage"
	"kline-pager/internal/ticker"
)

// Result is the outcome of one symbol's load.
type Result struct {
	RunID   string
	Request loader.Request
	Candles []market.Candle
	Pages   int
	Took    time.Duration
	Err     error
}

// Service drives loads to completion on the tick cadence, then persists and reports them.
type Service struct {
	ticker   *ticker.Ticker
	fetcher  loader.PageFetcher[market.Candle]
	candles  storage.CandleStore
	loads    storage.LoadStore
	notifier alerting.Notifier
	logger   zerolog.Logger

	alertsOn  bool
	onSuccess bool
	now       func() time.Time
}

// New constructs the load service. Stores and notifier may be nil.
func New(cfg *config.Config, tk *ticker.Ticker, fetcher loader.PageFetcher[market.Candle], candles storage.CandleStore, loads storage.LoadStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		ticker:    tk,
		fetcher:   fetcher,
		candles:   candles,
		loads:     loads,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		alertsOn:  cfg.Alerting.Enabled,
		onSuccess: cfg.Alerting.OnSuccess,
		now:       time.Now,
	}
}

// Load runs a single request and returns its candles.
func (s *Service) Load(ctx context.Context, req loader.Request) ([]market.Candle, error) {
	results, err := s.LoadAll(ctx, []loader.Request{req})
	if err != nil {
		return nil, err
	}
	return results[0].Candles, nil
}

// LoadAll runs the requests one after another on a single loader.
// A failed symbol does not stop the remaining ones; the joined failures are returned.
func (s *Service) LoadAll(ctx context.Context, reqs []loader.Request) ([]Result, error) {
	if s.ticker == nil {
		return nil, fmt.Errorf("ticker not configured")
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no symbols to load")
	}

	runID := uuid.NewString()
	logger := s.logger.With().Str("run_id", runID).Logger()
	ld := loader.New(ctx, s.fetcher, logger)
	results := make([]Result, 0, len(reqs))
	var errs []error

	for _, req := range reqs {
		res, err := s.run(ctx, ld, runID, req)
		if err != nil && ctx.Err() != nil {
			return results, err
		}
		results = append(results, res)
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return results, errors.Join(errs...)
}

func (s *Service) run(ctx context.Context, ld *loader.Loader[market.Candle], runID string, req loader.Request) (Result, error) {
	res := Result{RunID: runID, Request: req}
	if err := ld.Trigger(req); err != nil {
		res.Err = fmt.Errorf("%s: %w", req.Symbol, err)
		return res, res.Err
	}

	started := s.now()
	var out loader.Outcome[market.Candle]
	lastProgress := -1.0

	err := s.ticker.Run(ctx, func(ctx context.Context, tick int) error {
		out = ld.Poll()
		if out.Progress != lastProgress {
			lastProgress = out.Progress
			s.logger.Debug().
				Str("symbol", req.Symbol).
				Float64("progress", out.Progress).
				Msg("load progress")
		}
		if out.Done() {
			return ticker.ErrStop
		}
		return nil
	})
	if err != nil {
		res.Err = err
		return res, err
	}

	res.Took = s.now().Sub(started)
	res.Pages, _ = ld.Pages()
	if out.Status == loader.StatusFailed {
		res.Err = out.Err
	} else {
		res.Candles = out.Samples
	}

	s.persist(ctx, ld, res)
	s.notify(ctx, ld, res)
	return res, res.Err
}

func (s *Service) persist(ctx context.Context, ld *loader.Loader[market.Candle], res Result) {
	if res.Err == nil && s.candles != nil {
		if err := s.candles.UpsertCandles(ctx, res.Candles); err != nil {
			s.logger.Error().Err(err).Str("symbol", res.Request.Symbol).Msg("failed to upsert candles")
		}
	}

	if s.loads == nil {
		return
	}
	_, totalPages := ld.Pages()
	rec := storage.LoadRecord{
		RunID:       res.RunID,
		Symbol:      res.Request.Symbol,
		Interval:    res.Request.Interval.String(),
		WindowStart: res.Request.Window.Start,
		WindowEnd:   res.Request.Window.End,
		PageLimit:   res.Request.Limit,
		Pages:       totalPages,
		Samples:     len(res.Candles),
		Status:      storage.LoadComplete,
		Took:        res.Took,
	}
	if res.Err != nil {
		msg := res.Err.Error()
		rec.Status = storage.LoadFailed
		rec.Error = &msg
	}
	if _, err := s.loads.InsertLoad(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("symbol", res.Request.Symbol).Msg("failed to persist load record")
	}
}

func (s *Service) notify(ctx context.Context, ld *loader.Loader[market.Candle], res Result) {
	if !s.alertsOn || s.notifier == nil {
		return
	}
	if res.Err == nil && !s.onSuccess {
		return
	}

	_, totalPages := ld.Pages()
	note := alerting.Notification{
		Symbol:      res.Request.Symbol,
		Interval:    res.Request.Interval.String(),
		WindowStart: res.Request.Window.Start,
		WindowEnd:   res.Request.Window.End,
		Samples:     len(res.Candles),
		Pages:       res.Pages,
		TotalPages:  totalPages,
		Took:        res.Took,
		Err:         res.Err,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("symbol", res.Request.Symbol).Msg("failed to dispatch load summary")
	}
}
