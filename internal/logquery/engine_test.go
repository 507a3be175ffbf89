package logquery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ernie/hostlog/internal/logindex"
)

func writeLog(t *testing.T, lines int, line func(i int) string) string {
	t.Helper()
	var b strings.Builder
	for i := 0; i < lines; i++ {
		b.WriteString(line(i))
		b.WriteByte('\n')
	}
	path := filepath.Join(t.TempDir(), "games.log")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("writing log: %v", err)
	}
	return path
}

func numbered(i int) string { return fmt.Sprintf("line %d", i) }

type countingSearcher struct {
	mu    sync.Mutex
	calls int
	inner Searcher
	err   error
}

func (c *countingSearcher) Search(ctx context.Context, path, query string) ([]Match, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Search(ctx, path, query)
}

func TestChunk_ForwardUnfiltered(t *testing.T) {
	path := writeLog(t, 10000, numbered)
	e := NewEngine(&ScanSearcher{}, Options{})

	res, err := e.Chunk(context.Background(), logindex.New(path), ChunkRequest{Offset: 0, ChunkSize: 1000})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(res.Lines) != 1000 {
		t.Fatalf("len(Lines) = %d, want 1000", len(res.Lines))
	}
	if res.Lines[0] != "line 0\n" || res.Lines[999] != "line 999\n" {
		t.Fatalf("Lines = %q .. %q", res.Lines[0], res.Lines[999])
	}
	if !res.HasMore || res.NextOffset != 1000 || res.LoadedLines != 1000 {
		t.Fatalf("HasMore=%v NextOffset=%d LoadedLines=%d, want true 1000 1000", res.HasMore, res.NextOffset, res.LoadedLines)
	}
	if res.TotalLines != 10000 || res.MatchedLines != 10000 {
		t.Fatalf("TotalLines=%d MatchedLines=%d, want 10000", res.TotalLines, res.MatchedLines)
	}
}

func TestChunk_ReverseFilteredNewestFirst(t *testing.T) {
	hits := map[int]bool{10: true, 55: true, 200: true}
	path := writeLog(t, 300, func(i int) string {
		if hits[i] {
			return fmt.Sprintf("%d: Red scored a GOAL", i)
		}
		return numbered(i)
	})
	e := NewEngine(&ScanSearcher{}, Options{})
	idx := logindex.New(path)

	res, err := e.Chunk(context.Background(), idx, ChunkRequest{Offset: 0, ChunkSize: 1, Query: "goal", Reverse: true})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(res.Lines) != 1 || res.LineNumbers[0] != 200 {
		t.Fatalf("first reverse match = %q at %v, want line 200", res.Lines, res.LineNumbers)
	}
	if res.MatchedLines != 3 || res.TotalLines != 300 || !res.HasMore {
		t.Fatalf("MatchedLines=%d TotalLines=%d HasMore=%v", res.MatchedLines, res.TotalLines, res.HasMore)
	}

	var order []int
	for offset := 0; ; {
		page, err := e.Chunk(context.Background(), idx, ChunkRequest{Offset: offset, ChunkSize: 2, Query: "goal", Reverse: true})
		if err != nil {
			t.Fatalf("Chunk() error = %v", err)
		}
		order = append(order, page.LineNumbers...)
		if !page.HasMore {
			break
		}
		offset = page.NextOffset
	}
	if want := []int{200, 55, 10}; !reflect.DeepEqual(order, want) {
		t.Fatalf("reverse paging order = %v, want %v", order, want)
	}
}

func TestChunk_ReverseUnfiltered(t *testing.T) {
	path := writeLog(t, 25, numbered)
	e := NewEngine(&ScanSearcher{}, Options{})

	res, err := e.Chunk(context.Background(), logindex.New(path), ChunkRequest{Offset: 5, ChunkSize: 3, Reverse: true})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if want := []int{19, 18, 17}; !reflect.DeepEqual(res.LineNumbers, want) {
		t.Fatalf("LineNumbers = %v, want %v", res.LineNumbers, want)
	}
	if res.Lines[0] != "line 19\n" {
		t.Fatalf("Lines[0] = %q, want newest first", res.Lines[0])
	}
	if !res.HasMore || res.NextOffset != 8 {
		t.Fatalf("HasMore=%v NextOffset=%d, want true 8", res.HasMore, res.NextOffset)
	}
}

func TestChunk_PaginationCoversEveryLine(t *testing.T) {
	path := writeLog(t, 1234, func(i int) string {
		if i%7 == 0 {
			return fmt.Sprintf("kill %d", i)
		}
		return numbered(i)
	})
	e := NewEngine(&ScanSearcher{}, Options{})
	idx := logindex.New(path)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "unfiltered", query: "", want: 1234},
		{name: "filtered", query: "KILL", want: (1233 / 7) + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := map[int]bool{}
			prev := -1
			for offset := 0; ; {
				page, err := e.Chunk(context.Background(), idx, ChunkRequest{Offset: offset, ChunkSize: 100, Query: tt.query})
				if err != nil {
					t.Fatalf("Chunk() error = %v", err)
				}
				for _, n := range page.LineNumbers {
					if n <= prev || seen[n] {
						t.Fatalf("line %d out of order or repeated", n)
					}
					seen[n] = true
					prev = n
				}
				if !page.HasMore {
					break
				}
				offset = page.NextOffset
			}
			if len(seen) != tt.want {
				t.Fatalf("paged %d lines, want %d", len(seen), tt.want)
			}
		})
	}
}

func TestChunk_MissingFile(t *testing.T) {
	e := NewEngine(&ScanSearcher{}, Options{})
	idx := logindex.New(filepath.Join(t.TempDir(), "gone.log"))

	for _, q := range []string{"", "frag"} {
		res, err := e.Chunk(context.Background(), idx, ChunkRequest{Query: q})
		if err != nil {
			t.Fatalf("Chunk(%q) error = %v", q, err)
		}
		if len(res.Lines) != 0 || res.TotalLines != 0 || res.HasMore {
			t.Fatalf("Chunk(%q) = %+v, want empty", q, res)
		}
	}
}

func TestChunk_BlankQueryIsUnfiltered(t *testing.T) {
	path := writeLog(t, 10, numbered)
	searcher := &countingSearcher{inner: &ScanSearcher{}}
	e := NewEngine(searcher, Options{})

	res, err := e.Chunk(context.Background(), logindex.New(path), ChunkRequest{Query: "   \t "})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(res.Lines) != 10 || res.MatchedLines != 10 {
		t.Fatalf("got %d lines, %d matched, want 10", len(res.Lines), res.MatchedLines)
	}
	if searcher.calls != 0 {
		t.Fatalf("searcher called %d times for a blank query", searcher.calls)
	}
}

func TestChunk_ClampsChunkSize(t *testing.T) {
	path := writeLog(t, 100, numbered)
	e := NewEngine(&ScanSearcher{}, Options{DefaultChunkSize: 10, MaxChunkSize: 20})
	idx := logindex.New(path)

	res, _ := e.Chunk(context.Background(), idx, ChunkRequest{})
	if len(res.Lines) != 10 {
		t.Fatalf("default chunk = %d lines, want 10", len(res.Lines))
	}
	res, _ = e.Chunk(context.Background(), idx, ChunkRequest{ChunkSize: 1000})
	if len(res.Lines) != 20 {
		t.Fatalf("capped chunk = %d lines, want 20", len(res.Lines))
	}
}

func TestChunk_SearchFailureMeansNoMatches(t *testing.T) {
	path := writeLog(t, 10, numbered)
	e := NewEngine(&countingSearcher{err: errors.New("boom")}, Options{})

	res, err := e.Chunk(context.Background(), logindex.New(path), ChunkRequest{Query: "line"})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(res.Lines) != 0 || res.MatchedLines != 0 || res.TotalLines != 10 {
		t.Fatalf("got %+v, want zero matches over 10 lines", res)
	}
}

// gatedSearcher blocks every search until release is closed and records
// whether it saw its context end
type gatedSearcher struct {
	inner    Searcher
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
	mu       sync.Mutex
	canceled bool
}

func (g *gatedSearcher) Search(ctx context.Context, path, query string) ([]Match, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		g.mu.Lock()
		g.canceled = true
		g.mu.Unlock()
		return nil, ctx.Err()
	}
	return g.inner.Search(ctx, path, query)
}

func TestMatches_AbandonedCallerDoesNotFailOthers(t *testing.T) {
	path := writeLog(t, 10, func(i int) string {
		if i == 4 {
			return "goal"
		}
		return numbered(i)
	})
	searcher := &gatedSearcher{
		inner:   &ScanSearcher{},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := NewEngine(searcher, Options{})
	idx := logindex.New(path)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := e.Chunk(ctx, idx, ChunkRequest{Query: "goal"})
		firstErr <- err
	}()
	<-searcher.started

	// the first caller gives up while its search is still running
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled Chunk() error = %v, want context.Canceled", err)
	}

	second := make(chan *Result, 1)
	go func() {
		res, err := e.Chunk(context.Background(), idx, ChunkRequest{Query: "goal"})
		if err != nil {
			t.Errorf("Chunk() error = %v", err)
		}
		second <- res
	}()
	time.Sleep(20 * time.Millisecond)
	close(searcher.release)

	res := <-second
	if res == nil || res.MatchedLines != 1 || !reflect.DeepEqual(res.LineNumbers, []int{4}) {
		t.Fatalf("Chunk() = %+v, want the one match on line 4", res)
	}
	searcher.mu.Lock()
	defer searcher.mu.Unlock()
	if searcher.canceled {
		t.Fatalf("search was canceled along with the first caller")
	}
}

func TestMatches_CachedUntilFileGrows(t *testing.T) {
	path := writeLog(t, 10, numbered)
	searcher := &countingSearcher{inner: &ScanSearcher{}}
	e := NewEngine(searcher, Options{})
	idx := logindex.New(path)

	for i := 0; i < 3; i++ {
		if _, err := e.Chunk(context.Background(), idx, ChunkRequest{Query: "line 1"}); err != nil {
			t.Fatalf("Chunk() error = %v", err)
		}
	}
	if searcher.calls != 1 {
		t.Fatalf("searcher calls = %d, want 1", searcher.calls)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("line 10\n")
	f.Close()

	res, _ := e.Chunk(context.Background(), idx, ChunkRequest{Query: "line 1"})
	if searcher.calls != 2 {
		t.Fatalf("searcher calls after growth = %d, want 2", searcher.calls)
	}
	if res.MatchedLines != 2 {
		t.Fatalf("MatchedLines = %d, want 2 (line 1, line 10)", res.MatchedLines)
	}
}

func TestAtPercent(t *testing.T) {
	path := writeLog(t, 1000, func(i int) string {
		if i%10 == 0 {
			return fmt.Sprintf("say %d", i)
		}
		return numbered(i)
	})
	e := NewEngine(&ScanSearcher{}, Options{})
	idx := logindex.New(path)

	tests := []struct {
		name      string
		req       PercentRequest
		wantStart int
		wantEnd   int
		wantFirst int
		search    bool
	}{
		{name: "tail", req: PercentRequest{Percent: 100, Count: 50}, wantStart: 950, wantEnd: 1000, wantFirst: 950},
		{name: "head", req: PercentRequest{Percent: 0, Count: 50}, wantStart: 0, wantEnd: 50, wantFirst: 0},
		{name: "middle", req: PercentRequest{Percent: 50, Count: 50}, wantStart: 475, wantEnd: 525, wantFirst: 475},
		{name: "search tail", req: PercentRequest{Percent: 100, Count: 10, Query: "say"}, wantStart: 90, wantEnd: 100, wantFirst: 900, search: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			win, err := e.AtPercent(context.Background(), idx, tt.req)
			if err != nil {
				t.Fatalf("AtPercent() error = %v", err)
			}
			if win.StartIndex != tt.wantStart || win.EndIndex != tt.wantEnd {
				t.Fatalf("window = [%d,%d), want [%d,%d)", win.StartIndex, win.EndIndex, tt.wantStart, tt.wantEnd)
			}
			if win.LineNumbers[0] != tt.wantFirst {
				t.Fatalf("first line = %d, want %d", win.LineNumbers[0], tt.wantFirst)
			}
			if win.IsSearch != tt.search || win.Total != 1000 {
				t.Fatalf("IsSearch=%v Total=%d", win.IsSearch, win.Total)
			}
			if tt.search && win.TotalMatches != 100 {
				t.Fatalf("TotalMatches = %d, want 100", win.TotalMatches)
			}
		})
	}
}
