package app

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kline-pager/internal/config"
	"kline-pager/internal/loader"
	"kline-pager/internal/market"
	"kline-pager/internal/paging"
)

func testApp() *App {
	return NewApp(&config.Config{
		Loader: config.LoaderConfig{
			Symbols:   []string{"BTCUSDT", "ETHUSDT"},
			Interval:  "1m",
			PageLimit: 1000,
			Tick:      100 * time.Millisecond,
		},
		Export: config.ExportConfig{MaxDataPoints: 100},
	}, zerolog.Nop())
}

func series(n int) []market.Candle {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	for i := range out {
		open := t0.Add(time.Duration(i) * time.Minute)
		price := decimal.NewFromInt(int64(100 + i))
		out[i] = market.Candle{
			Symbol:    "BTCUSDT",
			Interval:  "1m",
			OpenTime:  open,
			CloseTime: open.Add(time.Minute - time.Millisecond),
			Open:      price,
			High:      price.Add(decimal.NewFromInt(1)),
			Low:       price.Sub(decimal.NewFromInt(1)),
			Close:     price,
			Volume:    decimal.RequireFromString("0.5"),
			Trades:    int64(i),
		}
	}
	return out
}

func TestBuildRequestsDefaults(t *testing.T) {
	a := testApp()
	now := time.Date(2024, 5, 2, 13, 0, 0, 0, time.UTC)

	reqs, err := a.buildRequests(LoadOptions{}, now)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, "BTCUSDT", reqs[0].Symbol)
	assert.Equal(t, paging.Minute, reqs[0].Interval)
	assert.Equal(t, 1000, reqs[0].Limit)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), reqs[0].Window.Start)
	assert.Equal(t, now, reqs[0].Window.End)
}

func TestBuildRequestsOverrides(t *testing.T) {
	a := testApp()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(6 * time.Hour)

	reqs, err := a.buildRequests(LoadOptions{
		Symbols:  []string{" solusdt "},
		From:     &from,
		To:       &to,
		Interval: "1h",
		Limit:    3,
	}, time.Now())
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, loader.Request{
		Symbol:   "SOLUSDT",
		Window:   paging.Window{Start: from, End: to},
		Interval: paging.Hour,
		Limit:    3,
	}, reqs[0])
}

func TestBuildRequestsRejectsBadInput(t *testing.T) {
	a := testApp()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := a.buildRequests(LoadOptions{From: &from, To: &from}, time.Now())
	assert.ErrorIs(t, err, paging.ErrInvalidWindow)

	_, err = a.buildRequests(LoadOptions{Interval: "2m"}, time.Now())
	assert.ErrorIs(t, err, paging.ErrUnsupportedInterval)

	a.Config.Loader.Symbols = nil
	_, err = a.buildRequests(LoadOptions{}, time.Now())
	assert.ErrorIs(t, err, loader.ErrMissingSymbol)
}

func TestDownsampleCandlesKeepsEnds(t *testing.T) {
	in := series(1000)
	out := downsampleCandles(in, 10)
	require.Len(t, out, 10)
	assert.Equal(t, in[0].OpenTime, out[0].OpenTime)
	assert.Equal(t, in[999].OpenTime, out[9].OpenTime)

	assert.Len(t, downsampleCandles(in[:5], 10), 5)
}

func TestPerSymbolPath(t *testing.T) {
	assert.Equal(t, "out/klines.csv", perSymbolPath("out/klines.csv", "BTCUSDT", false))
	assert.Equal(t, filepath.Join("out", "BTCUSDT-klines.csv"), perSymbolPath("out/klines.csv", "BTCUSDT", true))
}

func TestWriteCandlesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "klines.csv")
	require.NoError(t, writeCandlesCSV(path, series(3)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "open_time", rows[0][2])
	assert.Equal(t, []string{"BTCUSDT", "1m", "2024-01-01T00:02:00Z"}, rows[3][:3])
	assert.Equal(t, "102", rows[3][7])
	assert.Equal(t, "2", rows[3][9])
}

func TestWriteCandlesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, writeCandlesPNG(path, "BTCUSDT", series(50)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, writeCandlesPNG(path, "BTCUSDT", series(1)))
}
