// Package paging splits a time window into exchange-sized kline requests.
package paging

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidWindow is returned when a window is empty or reversed, or the page limit is not positive.
var ErrInvalidWindow = errors.New("paging: invalid window")

// MaxSpan is the widest window a Scheduler accepts; wider spans overflow time.Duration.
const MaxSpan = time.Duration(math.MaxInt64)

// Window is the half-open time range [Start, End) a load must cover.
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate checks Start < End and that the span fits in MaxSpan.
func (w Window) Validate() error {
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow,
			w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
	}
	// Sub saturates, so a span of exactly MaxSpan may be wider still.
	if w.End.Sub(w.Start) >= MaxSpan {
		return fmt.Errorf("%w: span from %s to %s is too wide", ErrInvalidWindow,
			w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
	}
	return nil
}

// Page describes a single fetch request.
type Page struct {
	Index int
	Start time.Time
	Limit int
}

// Scheduler tracks the pages of one load. Only the received counter changes after construction.
type Scheduler struct {
	window   Window
	interval Interval
	limit    int

	totalSamples  int
	totalPages    int
	lastPageLimit int
	received      int
}

// New computes the page layout for window sampled at interval with at most limit samples per page.
func New(window Window, interval Interval, limit int) (*Scheduler, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: page limit must be positive, got %d", ErrInvalidWindow, limit)
	}
	step := interval.Duration()
	if step <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedInterval, string(interval))
	}

	span := window.End.Sub(window.Start)
	totalSamples := ceilDiv(int64(span), int64(step))
	totalPages := ceilDiv(totalSamples, int64(limit))
	lastPageLimit := int64(limit)
	if totalPages > 0 {
		lastPageLimit = totalSamples - (totalPages-1)*int64(limit)
	}

	return &Scheduler{
		window:        window,
		interval:      interval,
		limit:         limit,
		totalSamples:  int(totalSamples),
		totalPages:    int(totalPages),
		lastPageLimit: int(lastPageLimit),
	}, nil
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Window returns the covered range.
func (s *Scheduler) Window() Window { return s.window }

// Interval returns the sampling interval.
func (s *Scheduler) Interval() Interval { return s.interval }

// Limit returns the per-page sample cap.
func (s *Scheduler) Limit() int { return s.limit }

// TotalSamples is ceil(window / interval).
func (s *Scheduler) TotalSamples() int { return s.totalSamples }

// TotalPages is ceil(TotalSamples / Limit).
func (s *Scheduler) TotalPages() int { return s.totalPages }

// LastPageLimit is the sample count requested by the final page.
func (s *Scheduler) LastPageLimit() int { return s.lastPageLimit }

// Received is the number of pages merged so far.
func (s *Scheduler) Received() int { return s.received }

// IsLastPage reports whether the next page to fetch is the final one.
func (s *Scheduler) IsLastPage() bool {
	return s.received == s.totalPages-1
}

// CurrentPageLimit is the limit to request for the next page.
func (s *Scheduler) CurrentPageLimit() int {
	if s.IsLastPage() {
		return s.lastPageLimit
	}
	return s.limit
}

// LeftEdge is the start timestamp of the next page. Only meaningful while !IsFinished().
func (s *Scheduler) LeftEdge() time.Time {
	// received*limit < totalSamples while unfinished, so the offset stays below the span.
	offset := time.Duration(int64(s.received)*int64(s.limit)) * s.interval.Duration()
	return s.window.Start.Add(offset)
}

// NextPage bundles the request parameters of the next page.
func (s *Scheduler) NextPage() Page {
	return Page{
		Index: s.received,
		Start: s.LeftEdge(),
		Limit: s.CurrentPageLimit(),
	}
}

// IsFinished reports whether every page has been received.
func (s *Scheduler) IsFinished() bool {
	return s.received >= s.totalPages
}

// Progress is the received fraction of pages in [0, 1].
func (s *Scheduler) Progress() float64 {
	if s.totalPages == 0 {
		return 1
	}
	return float64(s.received) / float64(s.totalPages)
}

// Advance marks the next page as received. Calling it on a finished scheduler is a bug in the caller.
func (s *Scheduler) Advance() {
	if s.IsFinished() {
		panic(fmt.Sprintf("paging: advance past final page (%d/%d)", s.received, s.totalPages))
	}
	s.received++
}
