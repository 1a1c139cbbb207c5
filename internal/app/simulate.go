package app

import (
	"context"
	"errors"
	"time"

	"kline-pager/internal/alerting"
)

// SimulateAlert sends a synthetic load summary through the configured notifier.
func (a *App) SimulateAlert(ctx context.Context, symbol string, failed bool) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	window := a.Config.DefaultWindow(time.Now())
	note := alerting.Notification{
		Symbol:      symbol,
		Interval:    a.Config.Loader.Interval,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		Samples:     1500,
		Pages:       2,
		TotalPages:  2,
		Took:        1200 * time.Millisecond,
	}
	if failed {
		note.Samples = 0
		note.Pages = 1
		note.Err = errors.New("simulated page failure")
	}
	return notifier.Notify(ctx, note)
}
