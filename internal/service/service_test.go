package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kline-pager/internal/alerting"
	"kline-pager/internal/config"
	"kline-pager/internal/loader"
	"kline-pager/internal/market"
	"kline-pager/internal/paging"
	"kline-pager/internal/storage"
	"kline-pager/internal/ticker"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func syntheticFetcher(failSymbol string) loader.FetchFunc[market.Candle] {
	return func(ctx context.Context, symbol string, interval paging.Interval, start time.Time, limit int) ([]market.Candle, error) {
		if symbol == failSymbol {
			return nil, errors.New("upstream unavailable")
		}
		step := interval.Duration()
		out := make([]market.Candle, limit)
		for i := range out {
			open := start.Add(time.Duration(i) * step)
			out[i] = market.Candle{
				Symbol:    symbol,
				Interval:  interval.String(),
				OpenTime:  open,
				CloseTime: open.Add(step - time.Millisecond),
				Close:     decimal.NewFromInt(int64(i)),
			}
		}
		return out, nil
	}
}

type fakeCandleStore struct {
	storage.CandleStore
	upserted [][]market.Candle
}

func (f *fakeCandleStore) UpsertCandles(_ context.Context, candles []market.Candle) error {
	f.upserted = append(f.upserted, candles)
	return nil
}

type fakeLoadStore struct {
	storage.LoadStore
	records []storage.LoadRecord
}

func (f *fakeLoadStore) InsertLoad(_ context.Context, rec storage.LoadRecord) (storage.LoadRecord, error) {
	rec.ID = int64(len(f.records) + 1)
	f.records = append(f.records, rec)
	return rec, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, note alerting.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, note)
	return nil
}

func newService(t *testing.T, cfg *config.Config, failSymbol string) (*Service, *fakeCandleStore, *fakeLoadStore, *fakeNotifier) {
	t.Helper()
	candles := &fakeCandleStore{}
	loads := &fakeLoadStore{}
	notifier := &fakeNotifier{}
	tk := ticker.New(ticker.Options{Interval: time.Millisecond}, zerolog.Nop())
	svc := New(cfg, tk, syntheticFetcher(failSymbol), candles, loads, notifier, zerolog.Nop())
	return svc, candles, loads, notifier
}

func request(symbol string) loader.Request {
	return loader.Request{
		Symbol:   symbol,
		Window:   paging.Window{Start: base, End: base.Add(150 * time.Minute)},
		Interval: paging.Minute,
		Limit:    100,
	}
}

func TestLoadPersistsCompleteSeries(t *testing.T) {
	cfg := &config.Config{}
	svc, candles, loads, notifier := newService(t, cfg, "")

	got, err := svc.Load(context.Background(), request("BTCUSDT"))
	require.NoError(t, err)
	require.Len(t, got, 150)
	assert.Equal(t, base, got[0].OpenTime)
	assert.Equal(t, base.Add(149*time.Minute), got[149].OpenTime)

	require.Len(t, candles.upserted, 1)
	assert.Len(t, candles.upserted[0], 150)

	require.Len(t, loads.records, 1)
	rec := loads.records[0]
	assert.Equal(t, storage.LoadComplete, rec.Status)
	assert.Equal(t, 2, rec.Pages)
	assert.Equal(t, 150, rec.Samples)
	assert.Nil(t, rec.Error)

	assert.Empty(t, notifier.notes, "alerting disabled")
}

func TestLoadFailureIsRecordedAndReported(t *testing.T) {
	cfg := &config.Config{Alerting: config.AlertingConfig{Enabled: true}}
	svc, candles, loads, notifier := newService(t, cfg, "ETHUSDT")

	_, err := svc.Load(context.Background(), request("ETHUSDT"))
	require.Error(t, err)

	var fetchErr *loader.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 0, fetchErr.Page)

	assert.Empty(t, candles.upserted)
	require.Len(t, loads.records, 1)
	assert.Equal(t, storage.LoadFailed, loads.records[0].Status)
	require.NotNil(t, loads.records[0].Error)

	require.Len(t, notifier.notes, 1)
	assert.True(t, notifier.notes[0].Failed())
	assert.Equal(t, 0, notifier.notes[0].Pages)
	assert.Equal(t, 2, notifier.notes[0].TotalPages)
}

func TestLoadAllContinuesAfterFailure(t *testing.T) {
	cfg := &config.Config{Alerting: config.AlertingConfig{Enabled: true, OnSuccess: true}}
	svc, candles, loads, notifier := newService(t, cfg, "ETHUSDT")

	results, err := svc.LoadAll(context.Background(), []loader.Request{
		request("BTCUSDT"), request("ETHUSDT"), request("BNBUSDT"),
	})
	require.Error(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "BNBUSDT", results[2].Candles[0].Symbol)

	assert.Len(t, candles.upserted, 2)
	require.Len(t, loads.records, 3)
	assert.Len(t, notifier.notes, 3)

	runID := results[0].RunID
	assert.Len(t, runID, 36)
	for i, rec := range loads.records {
		assert.Equal(t, runID, rec.RunID, "record %d", i)
	}
}

func TestLoadRejectsInvalidRequest(t *testing.T) {
	svc, _, loads, _ := newService(t, &config.Config{}, "")

	req := request("BTCUSDT")
	req.Window.End = req.Window.Start

	_, err := svc.Load(context.Background(), req)
	require.ErrorIs(t, err, paging.ErrInvalidWindow)
	assert.Empty(t, loads.records)

	_, err = svc.Load(context.Background(), request(""))
	require.ErrorIs(t, err, loader.ErrMissingSymbol)
}

func TestLoadHonoursContext(t *testing.T) {
	block := loader.FetchFunc[market.Candle](func(ctx context.Context, symbol string, interval paging.Interval, start time.Time, limit int) ([]market.Candle, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	tk := ticker.New(ticker.Options{Interval: time.Millisecond}, zerolog.Nop())
	svc := New(&config.Config{}, tk, block, nil, nil, nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Load(ctx, request("BTCUSDT"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
