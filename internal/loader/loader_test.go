package loader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kline-pager/internal/paging"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type reply struct {
	samples []int
	err     error
}

type call struct {
	symbol   string
	interval paging.Interval
	start    time.Time
	limit    int
	reply    chan reply
}

func (c *call) respond(samples []int, err error) {
	c.reply <- reply{samples: samples, err: err}
}

// stubFetcher parks every request until the test answers it.
type stubFetcher struct {
	calls chan *call
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{calls: make(chan *call, 8)}
}

func (f *stubFetcher) FetchPage(ctx context.Context, symbol string, interval paging.Interval, start time.Time, limit int) ([]int, error) {
	c := &call{symbol: symbol, interval: interval, start: start, limit: limit, reply: make(chan reply, 1)}
	f.calls <- c
	select {
	case r := <-c.reply:
		return r.samples, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *stubFetcher) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("expected a page request")
		return nil
	}
}

func (f *stubFetcher) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected page request starting %s", c.start)
	case <-time.After(20 * time.Millisecond):
	}
}

// pollForCall polls l until it requests a page.
func (f *stubFetcher) pollForCall(t *testing.T, l *Loader[int]) *call {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.Poll()
		select {
		case c := <-f.calls:
			return c
		case <-time.After(time.Millisecond):
		}
	}
	t.Fatal("expected a page request")
	return nil
}

func pollUntil(t *testing.T, l *Loader[int], done func(Outcome[int]) bool) Outcome[int] {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		out := l.Poll()
		if done(out) {
			return out
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("loader did not reach expected outcome")
	return Outcome[int]{}
}

func seq(from, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = from + i
	}
	return out
}

func newTestLoader(t *testing.T) (*Loader[int], *stubFetcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f := newStubFetcher()
	return New[int](ctx, f, zerolog.Nop()), f
}

func request(symbol string, span time.Duration, limit int) Request {
	return Request{
		Symbol:   symbol,
		Window:   paging.Window{Start: t0, End: t0.Add(span)},
		Interval: paging.Minute,
		Limit:    limit,
	}
}

func TestPollBeforeTrigger(t *testing.T) {
	l, f := newTestLoader(t)

	out := l.Poll()
	assert.Equal(t, StatusUnset, out.Status)
	assert.Equal(t, StateUnset, l.State())
	f.assertNoCall(t)
}

func TestLoadTwoPages(t *testing.T) {
	l, f := newTestLoader(t)
	require.NoError(t, l.Trigger(request("BTCUSDT", 2*time.Hour+30*time.Minute, 100)))
	assert.Equal(t, StateIdle, l.State())
	f.assertNoCall(t)

	out := l.Poll()
	assert.Equal(t, StatusPending, out.Status)
	assert.Equal(t, 0.0, out.Progress)
	assert.Equal(t, StateAwaitingPage, l.State())

	first := f.next(t)
	assert.Equal(t, "BTCUSDT", first.symbol)
	assert.Equal(t, paging.Minute, first.interval)
	assert.Equal(t, t0, first.start)
	assert.Equal(t, 100, first.limit)

	for i := 0; i < 5; i++ {
		again := l.Poll()
		assert.Equal(t, out, again)
	}
	f.assertNoCall(t)

	first.respond(seq(0, 100), nil)
	out = pollUntil(t, l, func(o Outcome[int]) bool { return o.Progress > 0 })
	assert.Equal(t, StatusPending, out.Status)
	assert.Equal(t, 0.5, out.Progress)

	second := f.next(t)
	assert.Equal(t, t0.Add(100*time.Minute), second.start)
	assert.Equal(t, 50, second.limit)

	second.respond(seq(100, 50), nil)
	out = pollUntil(t, l, func(o Outcome[int]) bool { return o.Done() })
	require.Equal(t, StatusComplete, out.Status)
	assert.Equal(t, 1.0, out.Progress)
	assert.Equal(t, seq(0, 150), out.Samples)
	assert.Equal(t, StateFinished, l.State())

	for i := 0; i < 3; i++ {
		again := l.Poll()
		assert.Equal(t, StatusComplete, again.Status)
		assert.Equal(t, out.Samples, again.Samples)
		assert.Same(t, &out.Samples[0], &again.Samples[0])
	}
	f.assertNoCall(t)

	received, total := l.Pages()
	assert.Equal(t, 2, received)
	assert.Equal(t, 2, total)
}

func TestSinglePageProgressJumps(t *testing.T) {
	l, f := newTestLoader(t)
	require.NoError(t, l.Trigger(request("ETHUSDT", 100*time.Minute, 100)))

	assert.Equal(t, 0.0, l.Poll().Progress)
	f.next(t).respond(seq(0, 100), nil)

	out := pollUntil(t, l, func(o Outcome[int]) bool { return o.Done() })
	assert.Equal(t, StatusComplete, out.Status)
	assert.Equal(t, 1.0, out.Progress)
}

func TestShortPagesAreKept(t *testing.T) {
	l, f := newTestLoader(t)
	require.NoError(t, l.Trigger(request("BTCUSDT", 30*time.Minute, 10)))

	l.Poll()
	f.next(t).respond(seq(0, 10), nil)
	pollUntil(t, l, func(o Outcome[int]) bool { return o.Progress > 0.3 })
	f.next(t).respond(seq(10, 4), nil)
	pollUntil(t, l, func(o Outcome[int]) bool { return o.Progress > 0.6 })
	f.next(t).respond(nil, nil)

	out := pollUntil(t, l, func(o Outcome[int]) bool { return o.Done() })
	require.Equal(t, StatusComplete, out.Status)
	assert.Equal(t, seq(0, 14), out.Samples)
}

func TestInvalidTriggerKeepsPreviousLoad(t *testing.T) {
	l, f := newTestLoader(t)
	require.NoError(t, l.Trigger(request("BTCUSDT", 5*time.Minute, 10)))
	l.Poll()
	f.next(t).respond(seq(0, 5), nil)
	done := pollUntil(t, l, func(o Outcome[int]) bool { return o.Done() })
	gen := l.Generation()

	bad := request("BTCUSDT", 0, 10)
	err := l.Trigger(bad)
	require.ErrorIs(t, err, paging.ErrInvalidWindow)

	err = l.Trigger(request("BTCUSDT", time.Hour, 0))
	require.ErrorIs(t, err, paging.ErrInvalidWindow)

	err = l.Trigger(request("", time.Hour, 10))
	require.ErrorIs(t, err, ErrMissingSymbol)

	assert.Equal(t, StateFinished, l.State())
	assert.Equal(t, gen, l.Generation())
	assert.Equal(t, done.Samples, l.Poll().Samples)
	f.assertNoCall(t)
}

func TestFirstPageFailureIsSticky(t *testing.T) {
	l, f := newTestLoader(t)
	require.NoError(t, l.Trigger(request("BTCUSDT", 3*time.Hour, 100)))
	l.Poll()

	cause := errors.New("upstream 503")
	f.next(t).respond(nil, cause)

	out := pollUntil(t, l, func(o Outcome[int]) bool { return o.Done() })
	require.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, cause)

	var fetchErr *FetchError
	require.ErrorAs(t, out.Err, &fetchErr)
	assert.Equal(t, 0, fetchErr.Page)
	assert.Equal(t, t0, fetchErr.Start)
	assert.Equal(t, 100, fetchErr.Limit)
	assert.Equal(t, "BTCUSDT", fetchErr.Symbol)

	for i := 0; i < 3; i++ {
		again := l.Poll()
		assert.Equal(t, StatusFailed, again.Status)
		assert.Same(t, out.Err, again.Err)
	}
	assert.Equal(t, StateFailed, l.State())
	f.assertNoCall(t)
}

func TestRetriggerAfterFailure(t *testing.T) {
	l, f := newTestLoader(t)
	require.NoError(t, l.Trigger(request("BTCUSDT", 20*time.Minute, 10)))
	l.Poll()
	f.next(t).respond(seq(0, 10), nil)
	pollUntil(t, l, func(o Outcome[int]) bool { return o.Progress == 0.5 })
	f.next(t).respond(nil, errors.New("boom"))
	pollUntil(t, l, func(o Outcome[int]) bool { return o.Status == StatusFailed })

	require.NoError(t, l.Trigger(request("BTCUSDT", 20*time.Minute, 10)))
	assert.Equal(t, StateIdle, l.State())
	l.Poll()
	f.next(t).respond(seq(100, 10), nil)
	pollUntil(t, l, func(o Outcome[int]) bool { return o.Progress == 0.5 })
	f.next(t).respond(seq(110, 10), nil)

	out := pollUntil(t, l, func(o Outcome[int]) bool { return o.Done() })
	require.Equal(t, StatusComplete, out.Status)
	assert.Equal(t, seq(100, 20), out.Samples)
	assert.NoError(t, out.Err)
}

func TestTriggerWaitsForOutstandingFetch(t *testing.T) {
	l, f := newTestLoader(t)
	require.NoError(t, l.Trigger(request("BTCUSDT", 10*time.Minute, 10)))
	l.Poll()
	stale := f.next(t)
	assert.Equal(t, "BTCUSDT", stale.symbol)

	require.NoError(t, l.Trigger(request("ETHUSDT", 10*time.Minute, 10)))
	assert.Equal(t, uint64(2), l.Generation())
	assert.Equal(t, StateAwaitingPage, l.State())

	for i := 0; i < 5; i++ {
		out := l.Poll()
		assert.Equal(t, StatusPending, out.Status)
		assert.Equal(t, 0.0, out.Progress)
	}
	f.assertNoCall(t)

	stale.respond(seq(900, 10), nil)
	current := f.pollForCall(t, l)
	assert.Equal(t, "ETHUSDT", current.symbol)
	assert.Equal(t, t0, current.start)
	assert.Empty(t, l.buffer)

	current.respond(seq(0, 10), nil)
	out := pollUntil(t, l, func(o Outcome[int]) bool { return o.Done() })
	require.Equal(t, StatusComplete, out.Status)
	assert.Equal(t, seq(0, 10), out.Samples)
}

func TestStaleFailureIsIgnored(t *testing.T) {
	l, f := newTestLoader(t)
	require.NoError(t, l.Trigger(request("BTCUSDT", 10*time.Minute, 10)))
	l.Poll()
	stale := f.next(t)

	require.NoError(t, l.Trigger(request("ETHUSDT", 20*time.Minute, 10)))
	stale.respond(nil, errors.New("boom"))

	first := f.pollForCall(t, l)
	assert.Equal(t, "ETHUSDT", first.symbol)
	assert.Equal(t, StateAwaitingPage, l.State())

	first.respond(seq(0, 10), nil)
	f.pollForCall(t, l).respond(seq(10, 10), nil)
	out := pollUntil(t, l, func(o Outcome[int]) bool { return o.Done() })
	require.Equal(t, StatusComplete, out.Status)
	assert.Equal(t, seq(0, 20), out.Samples)
}

func TestTriggerBoundsInitialBuffer(t *testing.T) {
	l, _ := newTestLoader(t)
	req := Request{
		Symbol:   "BTCUSDT",
		Window:   paging.Window{Start: t0.AddDate(-9, 0, 0), End: t0},
		Interval: paging.Minute,
		Limit:    1000,
	}
	require.NoError(t, l.Trigger(req))

	_, total := l.Pages()
	assert.Greater(t, total, 4000)
	assert.LessOrEqual(t, cap(l.buffer), req.Limit)
}

func TestFetchFuncAdapter(t *testing.T) {
	var got time.Time
	fn := FetchFunc[int](func(ctx context.Context, symbol string, interval paging.Interval, start time.Time, limit int) ([]int, error) {
		got = start
		return seq(0, limit), nil
	})
	l := New[int](context.Background(), fn, zerolog.Nop())
	require.NoError(t, l.Trigger(request("BTCUSDT", 3*time.Minute, 2)))

	out := pollUntil(t, l, func(o Outcome[int]) bool { return o.Done() })
	require.Equal(t, StatusComplete, out.Status)
	assert.Equal(t, []int{0, 1, 0}, out.Samples)
	assert.Equal(t, t0.Add(2*time.Minute), got)
}
