// Package tui is the interactive front end: pick a symbol, trigger a load and
// watch the loader fill one page per frame.
package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kline-pager/internal/loader"
	"kline-pager/internal/market"
	"kline-pager/internal/paging"
)

// Styles.
var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4")).Padding(0, 1)
	symbolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	activeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	colHeadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	gainStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

const (
	defaultWidth  = 100
	tableRows     = 15
	dayStep       = 24 * time.Hour
	timeLayout    = "2006-01-02 15:04"
	invalidWindow = "invalid time range"
)

type tickMsg time.Time

// Options configure the initial screen.
type Options struct {
	Symbols  []string
	Interval paging.Interval
	Limit    int
	Tick     time.Duration
	// Window returns the default window for the given instant.
	Window func(now time.Time) paging.Window
}

// Model is the bubbletea model. The loader is polled exactly once per tick.
type Model struct {
	loader *loader.Loader[market.Candle]
	opts   Options
	now    func() time.Time

	cursor   int
	interval paging.Interval
	start    time.Time
	active   string

	outcome loader.Outcome[market.Candle]
	notice  string

	bar    progress.Model
	series viewport.Model
	width  int
}

// New builds the model around an existing loader.
func New(ld *loader.Loader[market.Candle], opts Options) Model {
	return newModel(ld, opts, time.Now)
}

func newModel(ld *loader.Loader[market.Candle], opts Options, now func() time.Time) Model {
	if opts.Tick <= 0 {
		opts.Tick = 100 * time.Millisecond
	}
	if !opts.Interval.Valid() {
		opts.Interval = paging.Minute
	}
	m := Model{
		loader:   ld,
		opts:     opts,
		now:      now,
		interval: opts.Interval,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(defaultWidth/2)),
		series:   viewport.New(defaultWidth, tableRows+2),
		width:    defaultWidth,
	}
	m.start = m.defaultWindow().Start
	return m
}

func (m Model) defaultWindow() paging.Window {
	now := m.now().UTC()
	if m.opts.Window != nil {
		return m.opts.Window(now)
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return paging.Window{Start: midnight.AddDate(0, 0, -1), End: now}
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.opts.Tick, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the frame clock.
func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

// Update handles keys, window resizes and frame ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(10, msg.Width/2)
		m.series.Width = msg.Width
		return m, nil

	case tickMsg:
		prev := m.outcome.Status
		m.outcome = m.loader.Poll()
		if m.outcome.Status == loader.StatusComplete && prev != loader.StatusComplete {
			m.series.SetContent(renderSeries(m.outcome.Samples))
			m.series.GotoTop()
		}
		return m, m.tickCmd()
	}

	var cmd tea.Cmd
	m.series, cmd = m.series.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.opts.Symbols)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.opts.Symbols) > 0 {
			m.apply(m.opts.Symbols[m.cursor])
		}
	case "i":
		m.interval = nextInterval(m.interval)
		m.reapply()
	case "[":
		m.start = m.start.Add(-dayStep)
		m.reapply()
	case "]":
		m.start = m.start.Add(dayStep)
		m.reapply()
	case "d":
		m.start = m.defaultWindow().Start
		m.reapply()
	case "r":
		m.reapply()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.series, cmd = m.series.Update(msg)
		return m, cmd
	}
	return m, nil
}

// reapply retriggers the active symbol with the current settings.
func (m *Model) reapply() {
	if m.active != "" {
		m.apply(m.active)
	}
}

// apply triggers a load; a rejected request leaves the current load on screen.
func (m *Model) apply(symbol string) {
	req := loader.Request{
		Symbol:   symbol,
		Window:   paging.Window{Start: m.start, End: m.now().UTC()},
		Interval: m.interval,
		Limit:    m.opts.Limit,
	}
	if err := m.loader.Trigger(req); err != nil {
		if errors.Is(err, paging.ErrInvalidWindow) {
			m.notice = invalidWindow
		} else {
			m.notice = err.Error()
		}
		return
	}
	m.active = symbol
	m.notice = ""
	m.outcome = loader.Outcome[market.Candle]{Status: loader.StatusPending}
	m.series.SetContent("")
}

func nextInterval(cur paging.Interval) paging.Interval {
	all := paging.SupportedIntervals()
	for i, iv := range all {
		if iv == cur {
			return all[(i+1)%len(all)]
		}
	}
	return all[0]
}

// View renders the screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("klinepager"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  interval %s  from %s UTC  limit %d",
		m.interval, m.start.UTC().Format(timeLayout), m.opts.Limit)))
	b.WriteString("\n\n")

	for i, sym := range m.opts.Symbols {
		cursor := "  "
		style := symbolStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedStyle
		}
		if sym == m.active {
			style = activeStyle
		}
		b.WriteString(cursor + style.Render(sym) + "\n")
	}
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice) + "\n\n")
	}

	b.WriteString(m.statusView())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("↑/↓ select · enter load · i interval · [/] start ±1d · d default window · r reload · q quit"))
	return b.String()
}

func (m Model) statusView() string {
	switch m.outcome.Status {
	case loader.StatusUnset:
		return dimStyle.Render("select a symbol and press enter") + "\n"
	case loader.StatusPending:
		received, total := m.loader.Pages()
		return fmt.Sprintf("loading %s %s  %s  page %d/%d\n",
			m.active, m.interval, m.bar.ViewAs(m.outcome.Progress), received, total)
	case loader.StatusFailed:
		return errorStyle.Render("load failed: "+m.outcome.Err.Error()) + "\n"
	case loader.StatusComplete:
		return renderSummary(m.active, m.outcome.Samples) + "\n" + m.series.View() + "\n"
	default:
		return ""
	}
}

func renderSummary(symbol string, candles []market.Candle) string {
	s := market.Summarize(candles)
	if s.Count == 0 {
		return dimStyle.Render(symbol + ": no candles in window")
	}
	change := s.Change()
	changeStr := change.StringFixed(2) + "%"
	if change.IsNegative() {
		changeStr = lossStyle.Render(changeStr)
	} else {
		changeStr = gainStyle.Render("+" + changeStr)
	}
	return fmt.Sprintf("%s  %d candles  %s → %s  O %s  H %s  L %s  C %s  %s  vol %s",
		activeStyle.Render(symbol), s.Count,
		s.From.UTC().Format(timeLayout), s.To.UTC().Format(timeLayout),
		s.Open, s.High, s.Low, s.Close, changeStr, s.Volume.StringFixed(2))
}

// renderSeries lists the most recent candles, newest first.
func renderSeries(candles []market.Candle) string {
	var b strings.Builder
	b.WriteString(colHeadStyle.Render(fmt.Sprintf("%-17s %14s %14s %14s %14s %16s %8s",
		"open (UTC)", "open", "high", "low", "close", "volume", "chg%")))
	b.WriteString("\n")

	n := 0
	for i := len(candles) - 1; i >= 0 && n < tableRows; i-- {
		c := candles[i]
		chg := c.Change()
		chgStr := fmt.Sprintf("%8s", chg.StringFixed(2))
		if chg.IsNegative() {
			chgStr = lossStyle.Render(chgStr)
		} else {
			chgStr = gainStyle.Render(chgStr)
		}
		fmt.Fprintf(&b, "%-17s %14s %14s %14s %14s %16s %s\n",
			c.OpenTime.UTC().Format(timeLayout),
			c.Open, c.High, c.Low, c.Close, c.Volume.StringFixed(4), chgStr)
		n++
	}
	return b.String()
}
