// Package viewer keeps a client-side window onto a server log: which lines
// are loaded, where the user is scrolled to, and whether the view follows
// the live edge.
package viewer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ernie/hostlog/internal/address"
	"github.com/ernie/hostlog/internal/domain"
	"github.com/ernie/hostlog/internal/logquery"
)

const (
	// DefaultWindowFactor is how many viewports of lines one fetch asks for
	DefaultWindowFactor = 3
	// DefaultWaitTimeout bounds WaitForLoad
	DefaultWaitTimeout = 5 * time.Second
	// ScrollDebounce is how long scrolling must pause before it settles
	ScrollDebounce = 150 * time.Millisecond
	// tailLines is how close to the bottom still counts as following
	tailLines = 3
)

// Fetcher loads a window of log lines
type Fetcher interface {
	FetchWindow(ctx context.Context, serverID int64, req logquery.PercentRequest) (*logquery.Window, error)
}

// Row is one displayed log line keyed by its absolute line number
type Row struct {
	Line int
	Text string
}

// View is implemented by the host UI. The controller calls it from the
// goroutine that finished a load; implementations must not call back into
// the controller synchronously.
type View interface {
	RenderWindow(rows []Row)
	ScrollToPercent(percent float64)
	SetStatus(state State)
	// ShowError reports a failed load; nil clears a previous error
	ShowError(err error)
}

// Phase is the load state of the controller
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLoaded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	}
	return "unknown"
}

// State is a snapshot of the viewport
type State struct {
	Phase       Phase
	LoadedStart int
	LoadedEnd   int
	Percent     float64
	Tailing     bool
	Query       string
	TotalLines  int
	Matches     int
	Searching   bool
}

// EffectiveTotal is the size of the addressable line space
func (s State) EffectiveTotal() int {
	return address.EffectiveTotal(s.TotalLines, s.Matches, s.Searching)
}

// CurrentLine is the line the current percent points at
func (s State) CurrentLine() int {
	return address.PercentToLine(s.Percent, s.EffectiveTotal())
}

// LoadOptions tune a single load
type LoadOptions struct {
	// KeepScroll leaves the scroll position and tailing flag alone, for
	// loads triggered by the user's own scrolling
	KeepScroll bool
}

// Controller drives one log view. At most one fetch is outstanding; a new
// load cancels the previous one and the superseded result is dropped.
type Controller struct {
	fetcher       Fetcher
	view          View
	serverID      int64
	viewportLines int
	windowFactor  int

	renderMu sync.Mutex // orders state updates with their rendering

	mu     sync.Mutex
	state  State
	rows   []Row
	seq    uint64
	cancel context.CancelFunc
	done   chan struct{}

	// the most recent load request, repeated by Retry
	lastPercent float64
	lastOpts    LoadOptions
}

// NewController creates a controller for one server's log
func NewController(fetcher Fetcher, view View, serverID int64, viewportLines int) *Controller {
	if viewportLines <= 0 {
		viewportLines = 1
	}
	return &Controller{
		fetcher:       fetcher,
		view:          view,
		serverID:      serverID,
		viewportLines: viewportLines,
		windowFactor:  DefaultWindowFactor,
		state:         State{Percent: 100, Tailing: true},
	}
}

// State returns a snapshot of the viewport
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Rows returns a copy of the loaded rows
func (c *Controller) Rows() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Row(nil), c.rows...)
}

// SetViewportLines changes how many lines fit on screen
func (c *Controller) SetViewportLines(n int) {
	if n <= 0 {
		n = 1
	}
	c.mu.Lock()
	c.viewportLines = n
	c.mu.Unlock()
}

func (c *Controller) windowSize() int {
	return c.viewportLines * c.windowFactor
}

// LoadAtPercent fetches the window around percent and renders it. A load
// superseded by a newer one returns nil without touching state. On failure
// the previous window is kept and the error is shown and returned.
func (c *Controller) LoadAtPercent(ctx context.Context, percent float64, opts LoadOptions) error {
	percent = address.ClampPercent(percent)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	seq := c.seq
	c.lastPercent, c.lastOpts = percent, opts
	loadCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	prevPhase := c.state.Phase
	c.state.Phase = PhaseLoading
	req := logquery.PercentRequest{Percent: percent, Count: c.windowSize(), Query: c.state.Query}
	c.mu.Unlock()

	defer close(done)
	defer cancel()

	win, err := c.fetcher.FetchWindow(loadCtx, c.serverID, req)

	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return nil
	}
	c.cancel = nil
	if err != nil {
		if prevPhase == PhaseLoading {
			prevPhase = PhaseIdle
			if len(c.rows) > 0 {
				prevPhase = PhaseLoaded
			}
		}
		c.state.Phase = prevPhase
		st := c.state
		c.mu.Unlock()

		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return err
		}
		c.view.ShowError(err)
		c.view.SetStatus(st)
		return err
	}

	rows := make([]Row, len(win.Lines))
	for i, line := range win.Lines {
		n := win.StartIndex + i
		if i < len(win.LineNumbers) {
			n = win.LineNumbers[i]
		}
		rows[i] = Row{Line: n, Text: strings.TrimRight(line, "\r\n")}
	}
	c.rows = rows
	c.state.Phase = PhaseLoaded
	c.state.LoadedStart = win.StartIndex
	c.state.LoadedEnd = win.EndIndex
	c.state.TotalLines = win.Total
	c.state.Matches = win.TotalMatches
	c.state.Searching = win.IsSearch
	c.state.Percent = percent
	if !opts.KeepScroll {
		c.state.Tailing = percent >= 100
	}
	st := c.state
	c.mu.Unlock()

	c.view.ShowError(nil)
	c.view.RenderWindow(rows)
	if !opts.KeepScroll {
		c.view.ScrollToPercent(percent)
	}
	c.view.SetStatus(st)
	return nil
}

// Retry repeats the most recent load, typically after it failed
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	p, opts := c.lastPercent, c.lastOpts
	if c.seq == 0 {
		p, opts = c.state.Percent, LoadOptions{}
	}
	c.mu.Unlock()
	return c.LoadAtPercent(ctx, p, opts)
}

// Resync reloads after AppendLive reported missed or restarted lines. A
// view following the live edge reloads the tail, any other view its
// current percent.
func (c *Controller) Resync(ctx context.Context) error {
	c.mu.Lock()
	p := c.state.Percent
	if c.state.Tailing {
		p = 100
	}
	c.mu.Unlock()
	return c.LoadAtPercent(ctx, p, LoadOptions{})
}

// HandleScroll records a raw scroll event. Positions are in the host's
// units (pixels or rows); the view follows the live edge while it is within
// a few lines of the bottom.
func (c *Controller) HandleScroll(top, contentHeight, viewHeight, lineHeight float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Tailing = contentHeight-(top+viewHeight) <= tailLines*lineHeight
}

// SettleScroll handles a scroll position after scrolling paused. Status is
// updated at once; a fetch is only issued when the visible lines come within
// a quarter viewport of either edge of the loaded window.
func (c *Controller) SettleScroll(ctx context.Context, top, contentHeight, viewHeight float64) error {
	percent := address.ScrollPercent(top, contentHeight, viewHeight)

	c.mu.Lock()
	c.state.Percent = percent
	st := c.state
	refetch := c.needsRefetchLocked(percent)
	c.mu.Unlock()

	c.view.SetStatus(st)
	if !refetch {
		return nil
	}
	return c.LoadAtPercent(ctx, percent, LoadOptions{KeepScroll: true})
}

func (c *Controller) needsRefetchLocked(percent float64) bool {
	if c.state.Phase == PhaseIdle {
		return true
	}
	total := c.state.EffectiveTotal()
	visStart, visEnd := address.Window(percent, c.viewportLines, total)
	margin := c.viewportLines / 4
	start, end := c.state.LoadedStart, c.state.LoadedEnd

	if visStart < start || visEnd > end {
		return true
	}
	if start > 0 && visStart-start < margin {
		return true
	}
	if end < total && end-visEnd < margin {
		return true
	}
	return false
}

// AppendLive accounts for lines appended to the log since the last load.
// Lines numbered below the known total were already loaded and are
// skipped. When following the live edge of an unfiltered view the new lines
// join the window, which is trimmed from the top to its maximum size.
//
// It returns true when the numbering shows lines were missed or the file
// started over; the view is then stale and Resync should be called.
func (c *Controller) AppendLive(lines []domain.LiveLine) bool {
	if len(lines) == 0 {
		return false
	}

	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	if c.state.Phase != PhaseLoaded {
		// the load in flight decides the totals
		c.mu.Unlock()
		return false
	}

	next := c.state.TotalLines
	var fresh []domain.LiveLine
	stale := false
	for _, l := range lines {
		if l.Line == 0 && next > 0 {
			stale = true
			break
		}
		if l.Line < next {
			continue
		}
		if l.Line > next {
			stale = true
			break
		}
		fresh = append(fresh, l)
		next++
	}
	if stale {
		c.state.TotalLines = lines[len(lines)-1].Line + 1
		if !c.state.Searching {
			c.state.Matches = c.state.TotalLines
		}
		st := c.state
		c.mu.Unlock()
		c.view.SetStatus(st)
		return true
	}
	if len(fresh) == 0 {
		c.mu.Unlock()
		return false
	}

	if c.state.Searching {
		q := strings.ToLower(c.state.Query)
		for _, l := range fresh {
			if strings.Contains(strings.ToLower(l.Content), q) {
				c.state.Matches++
			}
		}
		c.state.TotalLines = next
		st := c.state
		c.mu.Unlock()
		c.view.SetStatus(st)
		return false
	}

	follow := c.state.Tailing && c.state.LoadedEnd == c.state.TotalLines
	c.state.TotalLines = next
	c.state.Matches = next
	if !follow {
		st := c.state
		c.mu.Unlock()
		c.view.SetStatus(st)
		return false
	}

	for _, l := range fresh {
		c.rows = append(c.rows, Row{Line: l.Line, Text: strings.TrimRight(l.Content, "\r\n")})
	}
	if over := len(c.rows) - c.windowSize(); over > 0 {
		c.rows = append([]Row(nil), c.rows[over:]...)
	}
	c.state.LoadedEnd = next
	if len(c.rows) > 0 {
		c.state.LoadedStart = c.rows[0].Line
	}
	c.state.Percent = 100
	rows := append([]Row(nil), c.rows...)
	st := c.state
	c.mu.Unlock()

	c.view.RenderWindow(rows)
	c.view.ScrollToPercent(100)
	c.view.SetStatus(st)
	return false
}

// SetQuery changes the active search (empty clears it) and reloads. A
// following view stays at the live edge; otherwise the current percent is
// kept.
func (c *Controller) SetQuery(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)

	c.mu.Lock()
	if query == c.state.Query {
		c.mu.Unlock()
		return nil
	}
	c.state.Query = query
	percent := c.state.Percent
	if c.state.Tailing {
		percent = 100
	}
	c.mu.Unlock()

	return c.LoadAtPercent(ctx, percent, LoadOptions{})
}

// OnReconnect applies the reconnect policy: a view following the live edge
// without a playback delay reloads the tail to close the gap. With a delay
// the playback buffer owns what is shown, so nothing is reloaded.
func (c *Controller) OnReconnect(ctx context.Context, delayActive bool) error {
	c.mu.Lock()
	tailing := c.state.Tailing
	c.mu.Unlock()

	if !tailing || delayActive {
		return nil
	}
	return c.LoadAtPercent(ctx, 100, LoadOptions{})
}

// WaitForLoad blocks until no load is in flight or timeout passes,
// whichever comes first. It never fails; callers continue with whatever
// state exists.
func (c *Controller) WaitForLoad(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		loading := c.state.Phase == PhaseLoading
		done := c.done
		c.mu.Unlock()

		if !loading || done == nil {
			return
		}
		select {
		case <-done:
		case <-timer.C:
			return
		}
	}
}
