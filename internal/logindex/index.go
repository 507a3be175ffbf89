package logindex

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// scanChunkSize is how much of the file is read per step while indexing
const scanChunkSize = 64 * 1024

// Index stores the byte offset of every line start in an append-only file.
// Offsets are discovered incrementally: each call only scans the bytes
// appended since the previous scan, so a byte is visited once over the
// lifetime of the file.
type Index struct {
	path string

	mu      sync.Mutex
	offsets []int64     // offsets[i] is the first byte of line i, offsets[0] == 0
	indexed int64       // high-water mark of bytes scanned
	info    os.FileInfo // identity of the file the offsets describe
}

// New creates an empty index for the file at path. Nothing is read until
// the first query.
func New(path string) *Index {
	return &Index{
		path:    path,
		offsets: []int64{0},
	}
}

// Path returns the indexed file path
func (x *Index) Path() string {
	return x.path
}

// LineOffset returns the byte at which line n begins. The boolean is false
// when the file has fewer than n lines.
func (x *Index) LineOffset(n int) (int64, bool, error) {
	if n < 0 {
		return 0, false, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.extendLocked(n); err != nil {
		return 0, false, err
	}
	if n >= len(x.offsets) {
		return 0, false, nil
	}
	return x.offsets[n], true, nil
}

// TotalLines indexes through end-of-file and returns the number of
// newline-terminated lines. A trailing line without a terminator is not
// counted until it is completed.
func (x *Index) TotalLines() (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.extendLocked(-1); err != nil {
		return 0, err
	}
	return x.countLocked(), nil
}

// HasMoreAfter reports whether the file holds more than end lines
func (x *Index) HasMoreAfter(end int) (bool, error) {
	total, err := x.TotalLines()
	if err != nil {
		return false, err
	}
	return total > end, nil
}

// ReadRange returns lines [start, end) including their terminators. Fewer
// lines come back when the file ends early, none when start is past the
// indexed range.
func (x *Index) ReadRange(start, end int) ([]string, error) {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return nil, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.extendLocked(end); err != nil {
		return nil, err
	}
	if total := x.countLocked(); end > total {
		end = total
	}
	if start >= end {
		return nil, nil
	}

	from, to := x.offsets[start], x.offsets[end]
	file, err := os.Open(x.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	defer file.Close()

	buf := make([]byte, to-from)
	n, err := file.ReadAt(buf, from)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading lines %d-%d: %w", start, end, err)
	}

	return splitLines(buf[:n], end-start), nil
}

func (x *Index) countLocked() int {
	if n := len(x.offsets) - 1; n > 0 {
		return n
	}
	return 0
}

// extendLocked scans newly appended bytes. target < 0 scans to end-of-file,
// otherwise scanning stops once line target has a known offset.
func (x *Index) extendLocked(target int) error {
	info, err := os.Stat(x.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			x.resetLocked(nil)
			return nil
		}
		return fmt.Errorf("stat log file: %w", err)
	}

	// Rotated (new inode) or copytruncated: previous offsets are meaningless
	if x.info != nil && (!os.SameFile(x.info, info) || info.Size() < x.indexed) {
		log.Printf("Log file %s was rotated or truncated, resetting line index", x.path)
		x.resetLocked(nil)
	}
	x.info = info

	if info.Size() == x.indexed {
		return nil
	}
	if target >= 0 && len(x.offsets) > target {
		return nil
	}

	file, err := os.Open(x.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			x.resetLocked(nil)
			return nil
		}
		return fmt.Errorf("opening log file: %w", err)
	}
	defer file.Close()

	buf := make([]byte, scanChunkSize)
	pos := x.indexed
	for {
		n, readErr := file.ReadAt(buf, pos)
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("scanning log file: %w", readErr)
		}

		chunk := buf[:n]
		off := 0
		for {
			i := bytes.IndexByte(chunk[off:], '\n')
			if i < 0 {
				break
			}
			off += i + 1
			x.offsets = append(x.offsets, pos+int64(off))
			if target >= 0 && len(x.offsets) > target {
				x.indexed = pos + int64(off)
				return nil
			}
		}

		pos += int64(n)
		if readErr == io.EOF || n == 0 {
			break
		}
	}

	x.indexed = pos
	return nil
}

func (x *Index) resetLocked(info os.FileInfo) {
	x.offsets = x.offsets[:1]
	x.offsets[0] = 0
	x.indexed = 0
	x.info = info
}

// splitLines cuts data after every newline, keeping the terminator
func splitLines(data []byte, capacity int) []string {
	lines := make([]string, 0, capacity)
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			lines = append(lines, string(data))
			break
		}
		lines = append(lines, string(data[:i+1]))
		data = data[i+1:]
	}
	return lines
}
