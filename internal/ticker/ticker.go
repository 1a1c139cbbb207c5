package ticker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrStop ends Run without error when returned from a TickFunc.
var ErrStop = errors.New("ticker: stop")

// TickFunc is invoked once per tick. Returning ErrStop ends the loop; any other error aborts it.
type TickFunc func(ctx context.Context, tick int) error

// Options tune ticker behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Ticker drives a polling function at a fixed cadence.
type Ticker struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Ticker instance.
func New(opts Options, logger zerolog.Logger) *Ticker {
	if opts.Interval <= 0 {
		panic("ticker interval must be positive")
	}
	return &Ticker{opts: opts, logger: logger.With().Str("component", "ticker").Logger()}
}

// Run invokes tick immediately and then every Interval until tick stops it or ctx is cancelled.
func (t *Ticker) Run(ctx context.Context, tick TickFunc) error {
	if t.opts.StartupDelay > 0 {
		timer := time.NewTimer(t.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	clock := time.NewTicker(t.opts.Interval)
	defer clock.Stop()

	for n := 0; ; n++ {
		if err := tick(ctx, n); err != nil {
			if errors.Is(err, ErrStop) {
				t.logger.Debug().Int("ticks", n+1).Msg("ticker stopped")
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.C:
		}
	}
}
