// Package playback holds live log lines for a configurable delay before
// handing them to a renderer.
//
// Lines arrive through Push, which only appends to a pending list. All
// release, filtering and eviction work happens in Tick and in the
// reconfiguration calls, which share one lock so a replay is never observed
// half done.
package playback

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// Retention is how long an event is kept after it was received. No
	// delay setting may exceed it.
	Retention = 90 * time.Second
	// MaxDelay is the longest supported delay
	MaxDelay = Retention
	// TickInterval is the cadence Run uses
	TickInterval = 100 * time.Millisecond
)

// Event is one live log line
type Event struct {
	Content    string
	EventType  string
	ReceivedAt time.Time
}

// Handle is whatever the renderer needs to remove a line it displayed
type Handle any

// Renderer displays released events. The buffer owns the returned handles
// and gives each back through Unrender at most once.
type Renderer interface {
	Render(ev Event) Handle
	Unrender(h Handle)
	// Reset is called after the buffer unrenders what it holds and before
	// it replays. The host drops every remaining live line, including lines
	// whose events were already evicted.
	Reset()
}

// Mode is the user-facing state of the buffer
type Mode int

const (
	ModeLive Mode = iota
	ModeBuffering
	ModeReady
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeBuffering:
		return "buffering"
	case ModeReady:
		return "ready"
	}
	return "unknown"
}

// Status describes the buffer for a status line
type Status struct {
	Mode    Mode
	Delay   time.Duration
	Elapsed time.Duration // time spent filling, while buffering
	Held    int           // events waiting for release, when ready
	Ahead   time.Duration // Retention minus Delay, when ready
}

func (s Status) String() string {
	switch s.Mode {
	case ModeBuffering:
		return fmt.Sprintf("buffering %.0fs / %.0fs", s.Elapsed.Seconds(), s.Delay.Seconds())
	case ModeReady:
		return fmt.Sprintf("delayed %.0fs · %d held · %.0fs ahead", s.Delay.Seconds(), s.Held, s.Ahead.Seconds())
	}
	return "live"
}

type entry struct {
	ev       Event
	released bool
	handle   Handle
	shown    bool
}

// Buffer is a delayed playback queue for one viewer
type Buffer struct {
	renderer  Renderer
	highlight func(eventType string) bool
	now       func() time.Time

	pendingMu sync.Mutex
	pending   []Event
	lastStamp time.Time

	mu            sync.Mutex
	queue         []*entry
	delay         time.Duration
	highlightOnly bool
	primed        bool
	delaySetAt    time.Time
}

// New creates a live (zero delay) buffer. highlight decides which event
// types remain visible while highlight-only mode is on; nil allows all.
func New(r Renderer, highlight func(eventType string) bool) *Buffer {
	b := &Buffer{
		renderer:  r,
		highlight: highlight,
		now:       time.Now,
	}
	b.delaySetAt = b.now()
	return b
}

// Push queues a line received now. It never renders.
func (b *Buffer) Push(content, eventType string) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	at := b.now()
	if at.Before(b.lastStamp) {
		at = b.lastStamp
	}
	b.lastStamp = at
	b.pending = append(b.pending, Event{Content: content, EventType: eventType, ReceivedAt: at})
}

// Tick releases due events, evicts expired ones and reports status
func (b *Buffer) Tick() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.drainLocked()
	b.releaseLocked(now)
	b.evictLocked(now)
	return b.statusLocked(now)
}

// Run ticks until ctx is done, passing every status to onStatus
func (b *Buffer) Run(ctx context.Context, onStatus func(Status)) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := b.Tick()
			if onStatus != nil {
				onStatus(st)
			}
		}
	}
}

// SetDelay changes the delay, clamped to [0, MaxDelay]. Dropping to zero
// flushes everything held; raising it clears the output and replays the
// retained events under the new delay; lowering it to a non-zero value
// leaves release to the next tick.
func (b *Buffer) SetDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if d > MaxDelay {
		d = MaxDelay
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if d == b.delay {
		return
	}
	now := b.now()
	b.drainLocked()
	old := b.delay
	b.delay = d

	switch {
	case d == 0:
		b.flushLocked()
		b.delaySetAt = now
	case d > old:
		b.clearLocked()
		b.primed = false
		b.delaySetAt = now
		b.releaseLocked(now)
	}
}

// Delay returns the current delay
func (b *Buffer) Delay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delay
}

// SetHighlightOnly toggles the highlight filter and replays under the
// current delay
func (b *Buffer) SetHighlightOnly(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if on == b.highlightOnly {
		return
	}
	b.highlightOnly = on
	b.drainLocked()
	b.clearLocked()
	b.releaseLocked(b.now())
}

// HighlightOnly reports whether the highlight filter is on
func (b *Buffer) HighlightOnly() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.highlightOnly
}

// Status reports the buffer state without releasing anything
func (b *Buffer) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusLocked(b.now())
}

// Len returns the number of retained events, including pending ones
func (b *Buffer) Len() int {
	b.mu.Lock()
	n := len(b.queue)
	b.mu.Unlock()

	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return n + len(b.pending)
}

func (b *Buffer) drainLocked() {
	b.pendingMu.Lock()
	pending := b.pending
	b.pending = nil
	b.pendingMu.Unlock()

	for _, ev := range pending {
		b.queue = append(b.queue, &entry{ev: ev})
	}
}

func (b *Buffer) visible(ev Event) bool {
	return !b.highlightOnly || b.highlight == nil || b.highlight(ev.EventType)
}

func (b *Buffer) release(e *entry) {
	e.released = true
	if b.visible(e.ev) {
		e.handle = b.renderer.Render(e.ev)
		e.shown = true
	}
}

// releaseLocked releases, in order, every event at least delay old. The
// queue is chronological so the first young event ends the scan.
func (b *Buffer) releaseLocked(now time.Time) {
	for _, e := range b.queue {
		if e.released {
			continue
		}
		if now.Sub(e.ev.ReceivedAt) < b.delay {
			break
		}
		b.release(e)
		b.primed = true
	}
}

func (b *Buffer) flushLocked() {
	for _, e := range b.queue {
		if !e.released {
			b.release(e)
		}
	}
}

// clearLocked removes every displayed line and marks all events unreleased
func (b *Buffer) clearLocked() {
	for _, e := range b.queue {
		if e.shown {
			b.renderer.Unrender(e.handle)
		}
		e.released, e.shown, e.handle = false, false, nil
	}
	b.renderer.Reset()
}

// evictLocked drops events older than Retention. Displayed lines stay on
// screen; only the buffer's claim on them goes away.
func (b *Buffer) evictLocked(now time.Time) {
	n := 0
	for n < len(b.queue) && now.Sub(b.queue[n].ev.ReceivedAt) > Retention {
		n++
	}
	if n == 0 {
		return
	}
	clear(b.queue[:n])
	b.queue = b.queue[n:]
}

func (b *Buffer) statusLocked(now time.Time) Status {
	st := Status{Delay: b.delay}
	switch {
	case b.delay == 0:
		st.Mode = ModeLive
	case !b.primed:
		st.Mode = ModeBuffering
		st.Elapsed = min(now.Sub(b.delaySetAt), b.delay)
	default:
		st.Mode = ModeReady
		st.Ahead = Retention - b.delay
		for _, e := range b.queue {
			if !e.released {
				st.Held++
			}
		}
	}
	return st
}
