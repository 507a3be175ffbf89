// Package logquery answers paged and percent-addressed reads of game server
// logs, optionally filtered by a substring search.
package logquery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ernie/hostlog/internal/address"
	"github.com/ernie/hostlog/internal/logindex"
)

// Defaults used when Options leaves a field zero
const (
	DefaultChunkSize      = 500
	DefaultMaxChunkSize   = 5000
	DefaultMaxQueryLength = 200
	defaultCacheEntries   = 32
)

// Options tune the engine's paging limits
type Options struct {
	DefaultChunkSize int
	MaxChunkSize     int
	MaxQueryLength   int
	CacheEntries     int
}

// ChunkRequest asks for one page. In reverse mode Offset counts back from
// the newest line and lines come back newest first.
type ChunkRequest struct {
	Offset    int
	ChunkSize int
	Query     string
	Reverse   bool
}

// Result is one page of a chunked read
type Result struct {
	Lines        []string `json:"lines"`
	LineNumbers  []int    `json:"line_numbers"`
	TotalLines   int      `json:"total_lines"`
	MatchedLines int      `json:"matched_lines"`
	HasMore      bool     `json:"has_more"`
	LoadedLines  int      `json:"loaded_lines"`
	NextOffset   int      `json:"next_offset"`
}

// PercentRequest asks for Count lines centered on Percent of the file, or
// of the match list when Query is set.
type PercentRequest struct {
	Percent float64
	Count   int
	Query   string
}

// Window is the answer to a PercentRequest. StartIndex and EndIndex address
// the effective line space: file lines when unfiltered, match positions
// while searching.
type Window struct {
	Lines        []string `json:"lines"`
	LineNumbers  []int    `json:"line_numbers"`
	Total        int      `json:"total"`
	StartIndex   int      `json:"start_index"`
	EndIndex     int      `json:"end_index"`
	IsSearch     bool     `json:"is_search"`
	TotalMatches int      `json:"total_matches"`
}

type cacheKey struct {
	path  string
	query string
	size  int64
}

// Engine serves queries against line indexes
type Engine struct {
	searcher Searcher
	opts     Options

	group singleflight.Group

	mu    sync.Mutex
	cache map[cacheKey][]Match
	order []cacheKey
}

// NewEngine creates an engine backed by searcher
func NewEngine(searcher Searcher, opts Options) *Engine {
	if opts.DefaultChunkSize <= 0 {
		opts.DefaultChunkSize = DefaultChunkSize
	}
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = DefaultMaxChunkSize
	}
	if opts.DefaultChunkSize > opts.MaxChunkSize {
		opts.DefaultChunkSize = opts.MaxChunkSize
	}
	if opts.MaxQueryLength <= 0 {
		opts.MaxQueryLength = DefaultMaxQueryLength
	}
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = defaultCacheEntries
	}
	return &Engine{
		searcher: searcher,
		opts:     opts,
		cache:    make(map[cacheKey][]Match),
	}
}

func (e *Engine) chunkSize(n int) int {
	if n <= 0 {
		return e.opts.DefaultChunkSize
	}
	if n > e.opts.MaxChunkSize {
		return e.opts.MaxChunkSize
	}
	return n
}

// Chunk returns one page of the file behind idx
func (e *Engine) Chunk(ctx context.Context, idx *logindex.Index, req ChunkRequest) (*Result, error) {
	if req.Offset < 0 {
		req.Offset = 0
	}
	chunk := e.chunkSize(req.ChunkSize)
	query := SanitizeQuery(req.Query, e.opts.MaxQueryLength)

	total, err := idx.TotalLines()
	if err != nil {
		return nil, fmt.Errorf("counting lines: %w", err)
	}

	if query != "" {
		matches, err := e.matches(ctx, idx.Path(), query)
		if err != nil {
			return nil, err
		}
		res := pageMatches(matches, req.Offset, chunk, req.Reverse)
		res.TotalLines = total
		return res, nil
	}

	res := &Result{Lines: []string{}, LineNumbers: []int{}, TotalLines: total, MatchedLines: total}
	var start, end int
	if req.Reverse {
		end = total - req.Offset
		start = max(0, end-chunk)
	} else {
		start = req.Offset
		end = min(total, start+chunk)
	}
	if start >= end {
		res.LoadedLines = min(req.Offset, total)
		res.NextOffset = res.LoadedLines
		return res, nil
	}

	lines, err := idx.ReadRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("reading lines: %w", err)
	}
	end = start + len(lines)
	for i := range lines {
		lines[i] = Sanitize(lines[i])
		res.LineNumbers = append(res.LineNumbers, start+i)
	}

	if req.Reverse {
		slices.Reverse(lines)
		slices.Reverse(res.LineNumbers)
		res.HasMore = start > 0
		res.NextOffset = req.Offset + len(lines)
	} else {
		res.HasMore = total > end
		res.NextOffset = end
	}
	res.Lines = lines
	res.LoadedLines = res.NextOffset
	return res, nil
}

func pageMatches(matches []Match, offset, chunk int, rev bool) *Result {
	n := len(matches)
	res := &Result{Lines: []string{}, LineNumbers: []int{}, MatchedLines: n}

	var start, end int
	if rev {
		end = n - offset
		start = max(0, end-chunk)
	} else {
		start = offset
		end = min(n, start+chunk)
	}
	if start >= end {
		res.LoadedLines = min(offset, n)
		res.NextOffset = res.LoadedLines
		return res
	}

	page := matches[start:end]
	res.Lines = make([]string, len(page))
	res.LineNumbers = make([]int, len(page))
	for i, m := range page {
		res.Lines[i] = Sanitize(m.Content)
		res.LineNumbers[i] = m.Line - 1
	}
	if rev {
		slices.Reverse(res.Lines)
		slices.Reverse(res.LineNumbers)
		res.HasMore = start > 0
		res.NextOffset = offset + len(page)
	} else {
		res.HasMore = end < n
		res.NextOffset = end
	}
	res.LoadedLines = res.NextOffset
	return res
}

// AtPercent returns the window of lines around a percentage of the file
func (e *Engine) AtPercent(ctx context.Context, idx *logindex.Index, req PercentRequest) (*Window, error) {
	count := e.chunkSize(req.Count)
	query := SanitizeQuery(req.Query, e.opts.MaxQueryLength)

	total, err := idx.TotalLines()
	if err != nil {
		return nil, fmt.Errorf("counting lines: %w", err)
	}
	win := &Window{Lines: []string{}, LineNumbers: []int{}, Total: total, TotalMatches: total}

	if query != "" {
		matches, err := e.matches(ctx, idx.Path(), query)
		if err != nil {
			return nil, err
		}
		win.IsSearch = true
		win.TotalMatches = len(matches)
		start, end := address.Window(req.Percent, count, len(matches))
		win.StartIndex, win.EndIndex = start, end
		for _, m := range matches[start:end] {
			win.Lines = append(win.Lines, Sanitize(m.Content))
			win.LineNumbers = append(win.LineNumbers, m.Line-1)
		}
		return win, nil
	}

	start, end := address.Window(req.Percent, count, total)
	lines, err := idx.ReadRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("reading lines: %w", err)
	}
	if lines == nil {
		lines = []string{}
	}
	win.StartIndex, win.EndIndex = start, start+len(lines)
	for i := range lines {
		lines[i] = Sanitize(lines[i])
		win.LineNumbers = append(win.LineNumbers, start+i)
	}
	win.Lines = lines
	return win, nil
}

// matches returns the full match list for query against the current file
// contents. Searcher failures are logged and yield no matches; the only
// error is ctx ending while the search runs.
//
// The search itself runs detached from ctx so a caller that gives up does
// not fail the others waiting on the same flight.
func (e *Engine) matches(ctx context.Context, path, query string) ([]Match, error) {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("Error checking log file %s: %v", path, err)
		}
		return nil, nil
	}
	key := cacheKey{path: path, query: query, size: info.Size()}

	e.mu.Lock()
	cached, ok := e.cache[key]
	e.mu.Unlock()
	if ok {
		return cached, nil
	}

	flightKey := fmt.Sprintf("%s\x00%s\x00%d", path, query, key.size)
	searchCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(flightKey, func() (interface{}, error) {
		found, err := e.searcher.Search(searchCtx, path, query)
		if err != nil {
			return nil, err
		}
		e.store(key, found)
		return found, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			log.Printf("Error searching %s for %q: %v", path, query, res.Err)
			return nil, nil
		}
		return res.Val.([]Match), nil
	}
}

func (e *Engine) store(key cacheKey, found []Match) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.cache[key]; ok {
		return
	}
	if len(e.order) >= e.opts.CacheEntries {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.cache, oldest)
	}
	e.cache[key] = found
	e.order = append(e.order, key)
}
