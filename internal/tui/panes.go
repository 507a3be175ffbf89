package tui

import (
	"sync"

	"github.com/ernie/hostlog/internal/playback"
	"github.com/ernie/hostlog/internal/viewer"
)

// historyPane receives the controller's output. Loads finish on command
// goroutines, so it is guarded and the model copies it out after each one.
type historyPane struct {
	mu      sync.Mutex
	rows    []viewer.Row
	state   viewer.State
	err     error
	jump    float64
	hasJump bool
}

var _ viewer.View = (*historyPane)(nil)

func (p *historyPane) RenderWindow(rows []viewer.Row) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows = rows
}

func (p *historyPane) ScrollToPercent(percent float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jump, p.hasJump = percent, true
}

func (p *historyPane) SetStatus(state viewer.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

func (p *historyPane) ShowError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type historySnapshot struct {
	rows    []viewer.Row
	state   viewer.State
	err     error
	jump    float64
	hasJump bool
}

// take copies the pane and consumes any pending scroll jump
func (p *historyPane) take() historySnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := historySnapshot{rows: p.rows, state: p.state, err: p.err, jump: p.jump, hasJump: p.hasJump}
	p.hasJump = false
	return s
}

// liveLine is one released line in the live pane
type liveLine struct {
	id uint64
	ev playback.Event
}

// livePane shows what the playback buffer releases. The buffer calls it
// from Tick and SetDelay, which the model only invokes inside Update.
type livePane struct {
	lines  []liveLine
	nextID uint64
	limit  int
}

var _ playback.Renderer = (*livePane)(nil)

func newLivePane(limit int) *livePane {
	return &livePane{limit: limit}
}

func (p *livePane) Render(ev playback.Event) playback.Handle {
	p.nextID++
	p.lines = append(p.lines, liveLine{id: p.nextID, ev: ev})
	if over := len(p.lines) - p.limit; p.limit > 0 && over > 0 {
		p.lines = append([]liveLine(nil), p.lines[over:]...)
	}
	return p.nextID
}

func (p *livePane) Unrender(h playback.Handle) {
	id, ok := h.(uint64)
	if !ok {
		return
	}
	for i, l := range p.lines {
		if l.id == id {
			p.lines = append(p.lines[:i], p.lines[i+1:]...)
			return
		}
	}
}

func (p *livePane) Reset() {
	p.lines = nil
}

// tail returns the last n lines
func (p *livePane) tail(n int) []liveLine {
	if n <= 0 {
		return nil
	}
	if len(p.lines) <= n {
		return p.lines
	}
	return p.lines[len(p.lines)-n:]
}
