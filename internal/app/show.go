package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"kline-pager/internal/market"
	"kline-pager/internal/storage"
)

// Show prints the most recent candles of one series and the latest load records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show candles")
	}
	defer closeStore()

	if opts.Symbol != "" {
		interval, err := a.interval(opts.Interval)
		if err != nil {
			return err
		}
		symbol := strings.ToUpper(opts.Symbol)
		candles, err := store.ListRecentCandles(ctx, symbol, interval.String(), opts.Limit)
		if err != nil {
			return err
		}
		count, err := store.CountCandles(ctx, symbol, interval.String())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s %s: %d stored candles\n", symbol, interval, count)
		printCandles(os.Stdout, candles)
		fmt.Fprintln(os.Stdout)
	}

	loads, err := store.ListRecentLoads(ctx, opts.Limit)
	if err != nil {
		return err
	}
	printLoads(os.Stdout, loads)
	return nil
}

func printCandles(w io.Writer, candles []market.Candle) {
	if len(candles) == 0 {
		fmt.Fprintln(w, "no candles found")
		return
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Open (UTC)\tOpen\tHigh\tLow\tClose\tVolume\tTrades\tChange%")
	for _, c := range candles {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			c.OpenTime.UTC().Format(time.RFC3339),
			c.Open,
			c.High,
			c.Low,
			c.Close,
			c.Volume.StringFixed(4),
			c.Trades,
			c.Change().StringFixed(3),
		)
	}
	writer.Flush()
}

func printLoads(w io.Writer, loads []storage.LoadRecord) {
	if len(loads) == 0 {
		fmt.Fprintln(w, "no loads recorded")
		return
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tRun\tWhen (UTC)\tSymbol\tInterval\tWindow\tPages\tSamples\tTook\tStatus\tError")
	for _, rec := range loads {
		errMsg := ""
		if rec.Error != nil {
			errMsg = sanitizeInline(*rec.Error)
		}
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%s..%s\t%d\t%d\t%s\t%s\t%s\n",
			rec.ID,
			shortRunID(rec.RunID),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Symbol,
			rec.Interval,
			rec.WindowStart.UTC().Format(time.RFC3339),
			rec.WindowEnd.UTC().Format(time.RFC3339),
			rec.Pages,
			rec.Samples,
			rec.Took,
			rec.Status,
			errMsg,
		)
	}
	writer.Flush()
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
