package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ernie/hostlog/internal/domain"
	"github.com/ernie/hostlog/internal/live"
	"github.com/ernie/hostlog/internal/playback"
)

// Run shows the interactive viewer until the user quits or ctx is done.
// liveURL is the server's live channel, see live.URLFor.
func Run(ctx context.Context, opts Options, liveURL string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewModel(ctx, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	client := live.NewClient(live.Options{
		URL:      liveURL,
		ServerID: opts.Server.ID,
		OnLines: func(lines []domain.LiveLine) {
			p.Send(LinesMsg{Lines: lines})
		},
		OnConnect: func(reconnect bool) {
			p.Send(ConnMsg{Connected: true, Reconnect: reconnect})
		},
		OnDisconnect: func(err error) {
			p.Send(ConnMsg{Err: err})
		},
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		client.Run(ctx)
	}()

	_, err := p.Run()
	cancel()
	wg.Wait()
	if errors.Is(err, tea.ErrProgramKilled) && errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return err
}

// lineWriter prints released lines. Printed lines cannot be taken back, so
// unrendering and resets are no-ops.
type lineWriter struct {
	w    io.Writer
	tags bool
}

func (lw *lineWriter) Render(ev playback.Event) playback.Handle {
	if lw.tags {
		fmt.Fprintf(lw.w, "[%s] %s\n", ev.EventType, ev.Content)
	} else {
		fmt.Fprintln(lw.w, ev.Content)
	}
	return nil
}

func (lw *lineWriter) Unrender(playback.Handle) {}

func (lw *lineWriter) Reset() {}

// PlainOptions configure RunPlain
type PlainOptions struct {
	ServerID      int64
	Delay         time.Duration
	HighlightOnly bool
	ShowTypes     bool // prefix each line with its event category
}

// RunPlain prints live lines to w through the playback buffer until ctx is
// done. It is used when output is not a terminal.
func RunPlain(ctx context.Context, w io.Writer, liveURL string, opts PlainOptions) error {
	buf := playback.New(&lineWriter{w: w, tags: opts.ShowTypes}, domain.IsHighlight)
	buf.SetDelay(opts.Delay)
	buf.SetHighlightOnly(opts.HighlightOnly)

	client := live.NewClient(live.Options{
		URL:      liveURL,
		ServerID: opts.ServerID,
		OnLines: func(lines []domain.LiveLine) {
			for _, l := range lines {
				buf.Push(l.Content, l.EventType)
			}
		},
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf.Run(ctx, nil)
	}()

	err := client.Run(ctx)
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
