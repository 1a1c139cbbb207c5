package app

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"kline-pager/internal/loader"
	"kline-pager/internal/logging"
	"kline-pager/internal/market"
	"kline-pager/internal/paging"
	"kline-pager/internal/tui"
)

// View runs the interactive terminal UI until the user quits.
func (a *App) View(ctx context.Context, opts ViewOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// stdout belongs to the UI; logs go to a file for the lifetime of the program.
	logCfg := a.Config.Logging
	logCfg.File = opts.LogFile
	logger := logging.NewLogger(logCfg)

	interval, err := a.interval(opts.Interval)
	if err != nil {
		return err
	}
	limit := opts.Limit
	if limit == 0 {
		limit = a.Config.Loader.PageLimit
	}
	source := opts.Symbols
	if len(source) == 0 {
		source = a.Config.Loader.Symbols
	}
	symbols := make([]string, 0, len(source))
	for _, s := range source {
		symbols = append(symbols, strings.ToUpper(strings.TrimSpace(s)))
	}

	viewApp := NewApp(a.Config, logger)
	viewApp.serveMetrics(ctx)
	fetch, closeFetch := viewApp.newFetcher()
	defer closeFetch()

	ld := loader.New[market.Candle](ctx, fetch, logger)
	model := tui.New(ld, tui.Options{
		Symbols:  symbols,
		Interval: interval,
		Limit:    limit,
		Tick:     a.Config.Loader.Tick,
		Window: func(now time.Time) paging.Window {
			return a.Config.DefaultWindow(now)
		},
	})

	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
