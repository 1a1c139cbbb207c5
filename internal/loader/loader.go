// Package loader drives a paging.Scheduler against an asynchronous page fetcher.
//
// A Loader is polled once per UI or driver tick. Poll never blocks: it either
// observes the single outstanding page fetch, or reports the current progress.
// Loaders are not safe for concurrent use; all methods must be called from the
// polling goroutine.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"kline-pager/internal/metrics"
	"kline-pager/internal/paging"
)

// ErrMissingSymbol is returned by Trigger when no symbol is selected.
var ErrMissingSymbol = errors.New("loader: symbol required")

// PageFetcher retrieves up to limit samples starting at start.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, symbol string, interval paging.Interval, start time.Time, limit int) ([]T, error)
}

// FetchFunc adapts a function to PageFetcher.
type FetchFunc[T any] func(ctx context.Context, symbol string, interval paging.Interval, start time.Time, limit int) ([]T, error)

// FetchPage calls f.
func (f FetchFunc[T]) FetchPage(ctx context.Context, symbol string, interval paging.Interval, start time.Time, limit int) ([]T, error) {
	return f(ctx, symbol, interval, start, limit)
}

// Request holds the parameters of one load.
type Request struct {
	Symbol   string
	Window   paging.Window
	Interval paging.Interval
	Limit    int
}

// State is the loader's position in its state machine.
type State int

const (
	// StateUnset means nothing has been triggered yet.
	StateUnset State = iota
	// StateIdle means a load is triggered but its first page has not been requested.
	StateIdle
	// StateAwaitingPage means exactly one page fetch is outstanding.
	StateAwaitingPage
	// StateFinished means every page was merged.
	StateFinished
	// StateFailed means a page fetch returned an error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateIdle:
		return "idle"
	case StateAwaitingPage:
		return "awaiting_page"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FetchError wraps a collaborator failure with the page that produced it.
type FetchError struct {
	Symbol     string
	Generation uint64
	Page       int
	Start      time.Time
	Limit      int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s page %d (start %s, limit %d): %v",
		e.Symbol, e.Page, e.Start.UTC().Format(time.RFC3339), e.Limit, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type result[T any] struct {
	generation uint64
	page       paging.Page
	samples    []T
	err        error
}

// Loader merges the pages of one load at a time into a running buffer.
type Loader[T any] struct {
	ctx     context.Context
	fetcher PageFetcher[T]
	logger  zerolog.Logger

	req        Request
	sched      *paging.Scheduler
	buffer     []T
	state      State
	generation uint64
	inflight   <-chan result[T]
	failure    error
}

// New builds a Loader. ctx bounds every page fetch the loader starts.
func New[T any](ctx context.Context, fetcher PageFetcher[T], logger zerolog.Logger) *Loader[T] {
	if fetcher == nil {
		panic("loader: fetcher must not be nil")
	}
	return &Loader[T]{
		ctx:     ctx,
		fetcher: fetcher,
		logger:  logger.With().Str("component", "loader").Logger(),
	}
}

// Trigger replaces the current load with req. An invalid request leaves the loader untouched.
// The first page is requested by the next Poll, or once an outstanding fetch of the
// previous load has been observed.
func (l *Loader[T]) Trigger(req Request) error {
	if req.Symbol == "" {
		return ErrMissingSymbol
	}
	sched, err := paging.New(req.Window, req.Interval, req.Limit)
	if err != nil {
		return err
	}

	l.generation++
	l.req = req
	l.sched = sched
	l.buffer = make([]T, 0, min(sched.TotalSamples(), req.Limit))
	l.failure = nil
	l.state = StateIdle

	// A superseded fetch keeps the slot. Its result is discarded by
	// generation before page 0 of this load is requested.
	if l.inflight != nil {
		l.logger.Debug().Uint64("generation", l.generation-1).Msg("superseding outstanding page fetch")
		l.state = StateAwaitingPage
	}

	l.logger.Info().
		Uint64("generation", l.generation).
		Str("symbol", req.Symbol).
		Str("interval", req.Interval.String()).
		Time("start", req.Window.Start).
		Time("end", req.Window.End).
		Int("limit", req.Limit).
		Int("samples", sched.TotalSamples()).
		Int("pages", sched.TotalPages()).
		Msg("load triggered")
	return nil
}

// Poll advances the state machine by at most one page and reports the outcome. It never blocks.
func (l *Loader[T]) Poll() Outcome[T] {
	switch l.state {
	case StateUnset:
		return Outcome[T]{Status: StatusUnset}
	case StateIdle:
		if l.sched.IsFinished() {
			return l.finish()
		}
		l.startFetch()
		return l.pending()
	case StateAwaitingPage:
		select {
		case res := <-l.inflight:
			l.inflight = nil
			return l.merge(res)
		default:
			return l.pending()
		}
	case StateFinished:
		return l.complete()
	case StateFailed:
		return l.failed()
	default:
		panic(fmt.Sprintf("loader: unknown state %s", l.state))
	}
}

func (l *Loader[T]) startFetch() {
	page := l.sched.NextPage()
	req := l.req
	gen := l.generation
	slot := make(chan result[T], 1)

	l.logger.Debug().
		Uint64("generation", gen).
		Int("page", page.Index).
		Time("start", page.Start).
		Int("limit", page.Limit).
		Msg("requesting page")

	go func() {
		samples, err := l.fetcher.FetchPage(l.ctx, req.Symbol, req.Interval, page.Start, page.Limit)
		slot <- result[T]{generation: gen, page: page, samples: samples, err: err}
	}()

	l.inflight = slot
	l.state = StateAwaitingPage
}

func (l *Loader[T]) merge(res result[T]) Outcome[T] {
	if res.generation != l.generation {
		metrics.PagesTotal.WithLabelValues("stale").Inc()
		l.logger.Warn().
			Uint64("generation", res.generation).
			Uint64("current", l.generation).
			Msg("discarding stale page")
		if l.sched.IsFinished() {
			return l.finish()
		}
		l.startFetch()
		return l.pending()
	}

	if res.err != nil {
		metrics.PagesTotal.WithLabelValues("error").Inc()
		metrics.LoadsTotal.WithLabelValues("failed").Inc()
		l.failure = &FetchError{
			Symbol:     l.req.Symbol,
			Generation: res.generation,
			Page:       res.page.Index,
			Start:      res.page.Start,
			Limit:      res.page.Limit,
			Err:        res.err,
		}
		l.state = StateFailed
		l.logger.Error().Err(res.err).
			Uint64("generation", res.generation).
			Int("page", res.page.Index).
			Msg("page fetch failed")
		return l.failed()
	}

	metrics.PagesTotal.WithLabelValues("ok").Inc()
	metrics.SamplesTotal.Add(float64(len(res.samples)))
	l.buffer = append(l.buffer, res.samples...)
	l.sched.Advance()

	l.logger.Debug().
		Uint64("generation", res.generation).
		Int("page", res.page.Index).
		Int("received", len(res.samples)).
		Int("requested", res.page.Limit).
		Float64("progress", l.sched.Progress()).
		Msg("page merged")

	if l.sched.IsFinished() {
		return l.finish()
	}
	l.startFetch()
	return l.pending()
}

func (l *Loader[T]) finish() Outcome[T] {
	l.state = StateFinished
	metrics.LoadsTotal.WithLabelValues("complete").Inc()
	l.logger.Info().
		Uint64("generation", l.generation).
		Str("symbol", l.req.Symbol).
		Int("samples", len(l.buffer)).
		Int("pages", l.sched.TotalPages()).
		Msg("load complete")
	return l.complete()
}

func (l *Loader[T]) pending() Outcome[T] {
	return Outcome[T]{Status: StatusPending, Progress: l.sched.Progress()}
}

func (l *Loader[T]) complete() Outcome[T] {
	return Outcome[T]{Status: StatusComplete, Progress: 1, Samples: l.buffer}
}

func (l *Loader[T]) failed() Outcome[T] {
	return Outcome[T]{Status: StatusFailed, Progress: l.sched.Progress(), Err: l.failure}
}

// State returns the current state.
func (l *Loader[T]) State() State { return l.state }

// Generation returns the id of the current load; it increases on every accepted Trigger.
func (l *Loader[T]) Generation() uint64 { return l.generation }

// Request returns the parameters of the current load.
func (l *Loader[T]) Request() Request { return l.req }

// Pages reports received and total pages of the current load.
func (l *Loader[T]) Pages() (received, total int) {
	if l.sched == nil {
		return 0, 0
	}
	return l.sched.Received(), l.sched.TotalPages()
}
