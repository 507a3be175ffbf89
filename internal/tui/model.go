// Package tui hosts the interactive log viewer: a scrollable history pane
// backed by the viewport controller and a live pane fed through the
// playback buffer.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ernie/hostlog/internal/address"
	"github.com/ernie/hostlog/internal/domain"
	"github.com/ernie/hostlog/internal/playback"
	"github.com/ernie/hostlog/internal/viewer"
)

// DelaySteps are the delays the d key cycles through
var DelaySteps = []time.Duration{0, 10 * time.Second, 30 * time.Second, 60 * time.Second, playback.MaxDelay}

const (
	defaultViewportLines = 20
	liveHistoryLimit     = 1000
)

// Options configure a viewer session
type Options struct {
	Fetcher       viewer.Fetcher
	Server        domain.Server
	Delay         time.Duration
	HighlightOnly bool
	Query         string
}

// LinesMsg carries live lines into the program
type LinesMsg struct {
	Lines []domain.LiveLine
}

// ConnMsg reports a live channel connection change
type ConnMsg struct {
	Connected bool
	Reconnect bool
	Err       error
}

type loadDoneMsg struct{ err error }

type settleMsg struct{ seq uint64 }

type playbackTickMsg struct{}

// Model is the bubbletea model of the viewer
type Model struct {
	ctx    context.Context
	server domain.Server
	query  string

	ctrl    *viewer.Controller
	history *historyPane
	snap    historySnapshot

	buf        *playback.Buffer
	live       *livePane
	playStatus playback.Status

	width, height int
	top           int // first visible position in the addressable line space
	scrollSeq     uint64

	searching bool
	input     textinput.Model

	connected bool
	connErr   error
}

// NewModel creates the model; the first load starts in Init
func NewModel(ctx context.Context, opts Options) *Model {
	history := &historyPane{}
	live := newLivePane(liveHistoryLimit)

	buf := playback.New(live, domain.IsHighlight)
	buf.SetDelay(opts.Delay)
	buf.SetHighlightOnly(opts.HighlightOnly)

	ti := textinput.New()
	ti.Placeholder = "Search..."
	ti.CharLimit = 200

	m := &Model{
		ctx:     ctx,
		server:  opts.Server,
		query:   strings.TrimSpace(opts.Query),
		ctrl:    viewer.NewController(opts.Fetcher, history, opts.Server.ID, defaultViewportLines),
		history: history,
		buf:     buf,
		live:    live,
		input:   ti,
	}
	m.playStatus = buf.Status()
	return m
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	first := m.loadCmd(func(ctx context.Context) error {
		return m.ctrl.LoadAtPercent(ctx, 100, viewer.LoadOptions{})
	})
	if m.query != "" {
		q := m.query
		first = m.loadCmd(func(ctx context.Context) error {
			return m.ctrl.SetQuery(ctx, q)
		})
	}
	return tea.Batch(first, playbackTick())
}

func playbackTick() tea.Cmd {
	return tea.Tick(playback.TickInterval, func(time.Time) tea.Msg {
		return playbackTickMsg{}
	})
}

func (m *Model) loadCmd(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return loadDoneMsg{err: fn(ctx)}
	}
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(10, msg.Width-4)
		m.ctrl.SetViewportLines(m.historyHeight())
		m.clampTop()
		return m, m.settleCmd()

	case loadDoneMsg:
		m.sync()
		return m, nil

	case settleMsg:
		if msg.seq != m.scrollSeq {
			return m, nil
		}
		top, total, h := float64(m.top), float64(m.snap.state.EffectiveTotal()), float64(m.historyHeight())
		return m, m.loadCmd(func(ctx context.Context) error {
			return m.ctrl.SettleScroll(ctx, top, total, h)
		})

	case playbackTickMsg:
		m.playStatus = m.buf.Tick()
		return m, playbackTick()

	case LinesMsg:
		for _, l := range msg.Lines {
			m.buf.Push(l.Content, l.EventType)
		}
		// With a delay the buffer owns what is shown live
		if m.buf.Delay() == 0 {
			stale := m.ctrl.AppendLive(msg.Lines)
			m.sync()
			if stale {
				return m, m.loadCmd(m.ctrl.Resync)
			}
		}
		return m, nil

	case ConnMsg:
		m.connected = msg.Connected
		m.connErr = msg.Err
		if msg.Connected && msg.Reconnect {
			delayed := m.buf.Delay() > 0
			return m, m.loadCmd(func(ctx context.Context) error {
				return m.ctrl.OnReconnect(ctx, delayed)
			})
		}
		return m, nil
	}

	if m.searching {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.handleSearchKey(msg)
	}

	h := m.historyHeight()
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "j", "down":
		return m, m.scrollBy(1)
	case "k", "up":
		return m, m.scrollBy(-1)
	case "f", "pgdown", " ":
		return m, m.scrollBy(h)
	case "b", "pgup":
		return m, m.scrollBy(-h)

	case "g", "home":
		return m, m.loadCmd(func(ctx context.Context) error {
			return m.ctrl.LoadAtPercent(ctx, 0, viewer.LoadOptions{})
		})
	case "G", "end":
		return m, m.loadCmd(func(ctx context.Context) error {
			return m.ctrl.LoadAtPercent(ctx, 100, viewer.LoadOptions{})
		})

	case "/":
		m.searching = true
		m.input.SetValue(m.snap.state.Query)
		m.input.CursorEnd()
		m.input.Focus()
		return m, textinput.Blink
	case "c":
		return m, m.setQuery("")

	case "d":
		return m, m.cycleDelay(1)
	case "D":
		return m, m.cycleDelay(-1)
	case "h":
		m.buf.SetHighlightOnly(!m.buf.HighlightOnly())
		m.playStatus = m.buf.Status()
		return m, nil

	case "r":
		return m, m.loadCmd(m.ctrl.Retry)
	}
	return m, nil
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searching = false
		m.input.Blur()
		return m, m.setQuery(m.input.Value())
	case "esc":
		m.searching = false
		m.input.Blur()
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setQuery(q string) tea.Cmd {
	return m.loadCmd(func(ctx context.Context) error {
		return m.ctrl.SetQuery(ctx, q)
	})
}

// cycleDelay steps through DelaySteps. Returning to live reloads the tail
// the history pane missed while the buffer held lines back.
func (m *Model) cycleDelay(dir int) tea.Cmd {
	cur := m.buf.Delay()
	i := 0
	for j, d := range DelaySteps {
		if d == cur {
			i = j
			break
		}
	}
	i = (i + dir + len(DelaySteps)) % len(DelaySteps)
	m.buf.SetDelay(DelaySteps[i])
	m.playStatus = m.buf.Status()

	if cur > 0 && DelaySteps[i] == 0 {
		return m.loadCmd(func(ctx context.Context) error {
			return m.ctrl.OnReconnect(ctx, false)
		})
	}
	return nil
}

// scrollBy moves the history pane and schedules a settle once scrolling
// pauses
func (m *Model) scrollBy(delta int) tea.Cmd {
	m.top += delta
	m.clampTop()
	h := m.historyHeight()
	m.ctrl.HandleScroll(float64(m.top), float64(m.snap.state.EffectiveTotal()), float64(h), 1)
	return m.settleCmd()
}

func (m *Model) settleCmd() tea.Cmd {
	m.scrollSeq++
	seq := m.scrollSeq
	return tea.Tick(viewer.ScrollDebounce, func(time.Time) tea.Msg {
		return settleMsg{seq: seq}
	})
}

// sync copies the controller's latest output into the model
func (m *Model) sync() {
	m.snap = m.history.take()
	if m.snap.hasJump {
		m.top, _ = address.Window(m.snap.jump, m.historyHeight(), m.snap.state.EffectiveTotal())
	}
	m.clampTop()
}

func (m *Model) clampTop() {
	maxTop := max(0, m.snap.state.EffectiveTotal()-m.historyHeight())
	m.top = min(max(m.top, 0), maxTop)
}

// Layout: header, history, divider, live, status, help
func (m *Model) paneHeights() (history, live int) {
	if m.height == 0 {
		return defaultViewportLines, defaultViewportLines / 2
	}
	avail := max(2, m.height-4)
	history = max(1, avail*3/5)
	return history, max(1, avail-history)
}

func (m *Model) historyHeight() int {
	h, _ := m.paneHeights()
	return h
}

// View implements tea.Model
func (m *Model) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}
	historyH, liveH := m.paneHeights()
	clip := lipgloss.NewStyle().MaxWidth(width)

	var b strings.Builder
	b.WriteString(headerStyle.Width(width).Render(clip.Render(m.headerText())))
	b.WriteString("\n")

	st := m.snap.state
	for i := range historyH {
		pos := m.top + i
		idx := pos - st.LoadedStart
		switch {
		case pos >= st.EffectiveTotal():
		case idx < 0 || idx >= len(m.snap.rows):
			b.WriteString(faintStyle.Render("  ..."))
		default:
			row := m.snap.rows[idx]
			b.WriteString(clip.Render(lineNoStyle.Render(fmt.Sprintf("%7d ", row.Line+1)) + row.Text))
		}
		b.WriteString("\n")
	}

	b.WriteString(dividerStyle.Render(clip.Render("── live · " + m.playStatus.String() + " " + strings.Repeat("─", width))))
	b.WriteString("\n")

	shown := m.live.tail(liveH)
	for i := range liveH {
		if pad := liveH - len(shown); i >= pad {
			l := shown[i-pad]
			b.WriteString(clip.Render(eventStyle(l.ev.EventType).Render(l.ev.Content)))
		}
		b.WriteString("\n")
	}

	b.WriteString(statusStyle.Width(width).Render(clip.Render(m.statusText())))
	b.WriteString("\n")
	if m.searching {
		b.WriteString("/" + m.input.View())
	} else if m.snap.err != nil {
		b.WriteString(errorStyle.Render(clip.Render("error: " + m.snap.err.Error() + "  (r to retry)")))
	} else {
		b.WriteString(faintStyle.Render(clip.Render("j/k:scroll  f/b:page  g/G:top/live  /:search  c:clear  d/D:delay  h:highlights  r:retry  q:quit")))
	}
	return b.String()
}

func (m *Model) headerText() string {
	conn := onlineStyle.Render("● live")
	if !m.connected {
		conn = offlineStyle.Render("○ offline")
		if m.connErr != nil {
			conn = offlineStyle.Render("○ offline: " + m.connErr.Error())
		}
	}
	text := fmt.Sprintf(" %s  %s  %s", m.server.Name, m.server.Address, conn)
	if m.buf.HighlightOnly() {
		text += "  highlights only"
	}
	return text
}

func (m *Model) statusText() string {
	st := m.snap.state
	total := st.EffectiveTotal()
	pos := 0
	if total > 0 {
		pos = min(m.top+m.historyHeight(), total)
	}
	mode := "paused"
	if st.Tailing {
		mode = "following"
	}
	text := fmt.Sprintf(" L%d/%d  %.0f%%  %s", pos, total, st.Percent, mode)
	if st.Searching {
		text += fmt.Sprintf("  search %q: %d of %d lines", st.Query, st.Matches, st.TotalLines)
	}
	if st.Phase == viewer.PhaseLoading {
		text += "  loading..."
	}
	return text
}
