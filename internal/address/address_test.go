package address

import (
	"math"
	"testing"
)

func TestPercentToLine(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		total   int
		want    int
	}{
		{name: "empty", percent: 50, total: 0, want: 0},
		{name: "head", percent: 0, total: 1000, want: 0},
		{name: "tail", percent: 100, total: 1000, want: 1000},
		{name: "middle", percent: 50, total: 1000, want: 500},
		{name: "rounds half up", percent: 50, total: 3, want: 2},
		{name: "rounds down", percent: 10, total: 7, want: 1},
		{name: "clamps high", percent: 250, total: 40, want: 40},
		{name: "clamps low", percent: -3, total: 40, want: 0},
		{name: "nan", percent: math.NaN(), total: 40, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PercentToLine(tt.percent, tt.total); got != tt.want {
				t.Fatalf("PercentToLine(%v, %d) = %d, want %d", tt.percent, tt.total, got, tt.want)
			}
		})
	}
}

func TestLineToPercent(t *testing.T) {
	if got := LineToPercent(5, 0); got != 0 {
		t.Fatalf("LineToPercent(5, 0) = %v, want 0", got)
	}
	if got := LineToPercent(25, 100); got != 25 {
		t.Fatalf("LineToPercent(25, 100) = %v, want 25", got)
	}
	if got := LineToPercent(3, 3); got != 100 {
		t.Fatalf("LineToPercent(3, 3) = %v, want 100", got)
	}
}

func TestPercentRoundTrip(t *testing.T) {
	for _, total := range []int{1, 2, 3, 7, 10, 99, 1000, 12345} {
		for line := 0; line <= total; line++ {
			got := PercentToLine(LineToPercent(line, total), total)
			if diff := got - line; diff < -1 || diff > 1 {
				t.Fatalf("round trip of line %d/%d = %d", line, total, got)
			}
		}
	}
}

func TestEffectiveTotal(t *testing.T) {
	if got := EffectiveTotal(1000, 12, true); got != 12 {
		t.Fatalf("EffectiveTotal(searching) = %d, want 12", got)
	}
	if got := EffectiveTotal(1000, 12, false); got != 1000 {
		t.Fatalf("EffectiveTotal(unfiltered) = %d, want 1000", got)
	}
}

func TestScrollPercent(t *testing.T) {
	tests := []struct {
		name                    string
		top, content, viewPort  float64
		want                    float64
	}{
		{name: "top", top: 0, content: 1000, viewPort: 100, want: 0},
		{name: "bottom", top: 900, content: 1000, viewPort: 100, want: 100},
		{name: "middle", top: 450, content: 1000, viewPort: 100, want: 50},
		{name: "fits", top: 0, content: 50, viewPort: 100, want: 100},
		{name: "overscroll", top: 1200, content: 1000, viewPort: 100, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScrollPercent(tt.top, tt.content, tt.viewPort); got != tt.want {
				t.Fatalf("ScrollPercent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name               string
		percent            float64
		count, total       int
		wantStart, wantEnd int
	}{
		{name: "head", percent: 0, count: 100, total: 10000, wantStart: 0, wantEnd: 100},
		{name: "tail", percent: 100, count: 100, total: 10000, wantStart: 9900, wantEnd: 10000},
		{name: "centered", percent: 50, count: 100, total: 10000, wantStart: 4950, wantEnd: 5050},
		{name: "small file", percent: 80, count: 100, total: 30, wantStart: 0, wantEnd: 30},
		{name: "empty", percent: 50, count: 100, total: 0, wantStart: 0, wantEnd: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := Window(tt.percent, tt.count, tt.total)
			if start != tt.wantStart || end != tt.wantEnd {
				t.Fatalf("Window() = [%d,%d), want [%d,%d)", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}
