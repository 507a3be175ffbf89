package collector

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is how often a tailer checks the file when no
// filesystem notification arrives
const DefaultPollInterval = 100 * time.Millisecond

// maxBatchLines caps how many lines go out in one batch
const maxBatchLines = 500

// Line is one complete log line and its 0-based line number in the file
type Line struct {
	Number int
	Text   string
}

// Tailer follows a log file from its end and emits complete lines in
// batches. It survives copytruncate, replacement by rename and the file
// not existing yet; numbering restarts at 0 when either happens.
type Tailer struct {
	path     string
	interval time.Duration

	file     *os.File
	position int64
	lineNo   int // lines before position

	Lines  chan []Line
	Errors chan error

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTailer creates a tailer; nothing is read until Start
func NewTailer(path string, interval time.Duration) *Tailer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Tailer{
		path:     filepath.Clean(path),
		interval: interval,
		Lines:    make(chan []Line, 64),
		Errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}
}

// Path returns the followed file
func (t *Tailer) Path() string {
	return t.path
}

// Start begins tailing after the last complete line of the file. A missing
// file is not an error; it is picked up from the start once it appears.
func (t *Tailer) Start() error {
	file, err := os.Open(t.path)
	switch {
	case err == nil:
		pos, lines, err := countLines(file)
		if err != nil {
			file.Close()
			return fmt.Errorf("counting lines: %w", err)
		}
		t.file = file
		t.position = pos
		t.lineNo = lines
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("opening log file: %w", err)
	}

	// fsnotify only shortens latency; the poll ticker still runs
	var events <-chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("File notifications unavailable for %s, polling only: %v", t.path, err)
	} else if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		log.Printf("Cannot watch %s, polling only: %v", filepath.Dir(t.path), err)
		watcher.Close()
		watcher = nil
	} else {
		events = watcher.Events
	}

	t.wg.Add(1)
	go t.tailLoop(watcher, events)
	return nil
}

// Stop ends tailing and closes Lines once the loop has exited
func (t *Tailer) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.wg.Wait()
		if t.file != nil {
			t.file.Close()
			t.file = nil
		}
		close(t.Lines)
	})
}

func (t *Tailer) tailLoop(watcher *fsnotify.Watcher, events <-chan fsnotify.Event) {
	defer t.wg.Done()
	if watcher != nil {
		defer watcher.Close()
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != t.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
		case <-ticker.C:
		}
		if err := t.readNewContent(); err != nil {
			select {
			case t.Errors <- err:
			default:
			}
		}
	}
}

// reopen switches to the file currently at path when the open handle was
// replaced or never existed
func (t *Tailer) reopen() error {
	info, err := os.Stat(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat log file: %w", err)
	}
	if t.file != nil {
		current, err := t.file.Stat()
		if err == nil && os.SameFile(current, info) {
			return nil
		}
		t.file.Close()
		t.file = nil
	}
	file, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	t.file = file
	t.position = 0
	t.lineNo = 0
	return nil
}

// countLines returns the offset just past the last newline in f and the
// number of newlines before it
func countLines(f *os.File) (int64, int, error) {
	buf := make([]byte, 64*1024)
	var offset, end int64
	lines := 0
	for {
		n, err := f.ReadAt(buf, offset)
		if n > 0 {
			chunk := buf[:n]
			lines += bytes.Count(chunk, []byte{'\n'})
			if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
				end = offset + int64(i) + 1
			}
			offset += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return end, lines, nil
		}
		if err != nil {
			return 0, 0, err
		}
	}
}

// readNewContent emits the complete lines written since the last read
func (t *Tailer) readNewContent() error {
	if err := t.reopen(); err != nil {
		return err
	}
	if t.file == nil {
		return nil
	}

	stat, err := t.file.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	// Handle copytruncate: file size smaller than position
	if stat.Size() < t.position {
		t.position = 0
		t.lineNo = 0
	}
	if stat.Size() == t.position {
		return nil
	}

	data := make([]byte, stat.Size()-t.position)
	n, err := t.file.ReadAt(data, t.position)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading log file: %w", err)
	}
	data = data[:n]

	// Partial line - don't advance position past it
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil
	}
	t.position += int64(end + 1)

	var batch []Line
	for _, raw := range bytes.Split(data[:end], []byte{'\n'}) {
		batch = append(batch, Line{Number: t.lineNo, Text: string(bytes.TrimRight(raw, "\r"))})
		t.lineNo++
		if len(batch) == maxBatchLines {
			t.emit(batch)
			batch = nil
		}
	}
	if len(batch) > 0 {
		t.emit(batch)
	}
	return nil
}

func (t *Tailer) emit(batch []Line) {
	select {
	case t.Lines <- batch:
	case <-t.done:
	default:
		// Channel full, drop batch
	}
}
