package logquery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/exp/mmap"
)

// Match is one line found by a Searcher
type Match struct {
	Line    int // 1-based line number
	Content string
}

// Searcher runs a case-insensitive fixed-string search over a whole file
// and returns every matching line in file order.
type Searcher interface {
	Search(ctx context.Context, path, query string) ([]Match, error)
}

// Search modes accepted by NewSearcher
const (
	SearchAuto   = "auto"
	SearchGrep   = "grep"
	SearchNative = "native"
)

// NewSearcher picks a Searcher for mode. "auto" uses grep when it can be
// found on PATH and falls back to the in-process scanner.
func NewSearcher(mode, grepPath string) (Searcher, error) {
	if grepPath == "" {
		grepPath = "grep"
	}
	switch mode {
	case SearchGrep:
		resolved, err := exec.LookPath(grepPath)
		if err != nil {
			return nil, fmt.Errorf("locating grep: %w", err)
		}
		return &GrepSearcher{Path: resolved}, nil
	case SearchNative:
		return &ScanSearcher{}, nil
	case SearchAuto, "":
		if resolved, err := exec.LookPath(grepPath); err == nil {
			return &GrepSearcher{Path: resolved}, nil
		}
		return &ScanSearcher{}, nil
	default:
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}
}

// GrepSearcher shells out to grep, which is far faster than a Go scan on
// multi-gigabyte logs.
type GrepSearcher struct {
	Path string
}

func (g *GrepSearcher) Search(ctx context.Context, path, query string) ([]Match, error) {
	cmd := exec.CommandContext(ctx, g.Path, "-n", "-i", "-F", "-a", "--", query, path)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		// Exit status 1 means no lines matched
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("running grep: %w", err)
	}
	return parseGrepOutput(out)
}

func parseGrepOutput(out []byte) ([]Match, error) {
	var matches []Match
	for len(out) > 0 {
		var line []byte
		if i := bytes.IndexByte(out, '\n'); i >= 0 {
			line, out = out[:i], out[i+1:]
		} else {
			line, out = out, nil
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		n, err := strconv.Atoi(string(line[:colon]))
		if err != nil {
			return nil, fmt.Errorf("parsing grep line number %q: %w", line[:colon], err)
		}
		matches = append(matches, Match{
			Line:    n,
			Content: strings.TrimSuffix(string(line[colon+1:]), "\r"),
		})
	}
	return matches, nil
}

// ScanSearcher scans a memory-mapped snapshot of the file in process
type ScanSearcher struct{}

func (s *ScanSearcher) Search(ctx context.Context, path, query string) ([]Match, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mapping log file: %w", err)
	}
	defer r.Close()

	needle := bytes.ToLower([]byte(query))
	br := bufio.NewReaderSize(io.NewSectionReader(r, 0, int64(r.Len())), 64*1024)

	var matches []Match
	for n := 1; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line, readErr := br.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := bytes.TrimRight(line, "\r\n")
			if bytes.Contains(bytes.ToLower(trimmed), needle) {
				matches = append(matches, Match{Line: n, Content: string(trimmed)})
			}
		}
		if readErr == io.EOF {
			return matches, nil
		}
		if readErr != nil {
			return nil, fmt.Errorf("scanning log file: %w", readErr)
		}
	}
}
