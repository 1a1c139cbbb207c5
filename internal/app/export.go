package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"kline-pager/internal/market"
)

// Export renders stored candles of one series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Symbol == "" {
		return errors.New("--symbol is required")
	}
	symbol := strings.ToUpper(opts.Symbol)

	interval, err := a.interval(opts.Interval)
	if err != nil {
		return err
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * interval.Duration())
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	candles, err := store.ListCandlesBetween(ctx, symbol, interval.String(), from, to)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		a.Logger.Info().Str("symbol", symbol).Msg("no candles found for export window")
		return nil
	}

	a.Logger.Info().Str("symbol", symbol).Int("total", len(candles)).Msg("exporting candles")

	if opts.CSVPath != "" {
		if err := writeCandlesCSV(opts.CSVPath, candles); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		points := downsampleCandles(candles, opts.MaxPoints)
		if err := writeCandlesPNG(opts.PNGPath, symbol, points); err != nil {
			return err
		}
	}

	return nil
}

func downsampleCandles(candles []market.Candle, max int) []market.Candle {
	if max <= 1 || len(candles) <= max {
		return candles
	}

	result := make([]market.Candle, 0, max)
	step := float64(len(candles)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(candles) {
			idx = len(candles) - 1
		}
		result = append(result, candles[idx])
	}
	return result
}

// perSymbolPath derives "out/BTCUSDT-klines.csv" from "out/klines.csv" when several series are exported.
func perSymbolPath(path, symbol string, multi bool) string {
	if !multi {
		return path
	}
	dir, file := filepath.Split(path)
	return filepath.Join(dir, symbol+"-"+file)
}

func writeCandlesCSV(path string, candles []market.Candle) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"symbol", "interval", "open_time", "close_time", "open", "high", "low", "close", "volume", "trades"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, c := range candles {
		record := []string{
			c.Symbol,
			c.Interval,
			c.OpenTime.UTC().Format(time.RFC3339),
			c.CloseTime.UTC().Format(time.RFC3339Nano),
			c.Open.String(),
			c.High.String(),
			c.Low.String(),
			c.Close.String(),
			c.Volume.String(),
			strconv.FormatInt(c.Trades, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeCandlesPNG(path, symbol string, candles []market.Candle) error {
	if len(candles) < 2 {
		return fmt.Errorf("need at least two candles to draw %s", symbol)
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(candles))
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volume := make([]float64, len(candles))

	for i, c := range candles {
		x[i] = c.OpenTime
		closes[i] = c.Close.InexactFloat64()
		highs[i] = c.High.InexactFloat64()
		lows[i] = c.Low.InexactFloat64()
		volume[i] = c.Volume.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Title:  symbol,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Volume",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Close",
				XValues: x,
				YValues: closes,
			},
			chart.TimeSeries{
				Name:    "High",
				XValues: x,
				YValues: highs,
			},
			chart.TimeSeries{
				Name:    "Low",
				XValues: x,
				YValues: lows,
			},
			chart.TimeSeries{
				Name:    "Volume",
				XValues: x,
				YValues: volume,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
