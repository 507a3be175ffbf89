// Package address translates between scroll percentages and line numbers.
//
// Every viewer affordance (scrollbar drag, click-to-seek, status text) goes
// through these functions so that forward paging, reverse paging and search
// results agree on the same arithmetic. Percent-to-line uses round-half-up
// throughout; scroll positions are first turned into a continuous percent
// and then mapped with the same rule.
package address

import "math"

// PercentToLine maps a percent in [0,100] onto [0,total]
func PercentToLine(percent float64, total int) int {
	if total <= 0 || math.IsNaN(percent) {
		return 0
	}
	line := int(math.Floor(percent/100*float64(total) + 0.5))
	if line < 0 {
		return 0
	}
	if line > total {
		return total
	}
	return line
}

// LineToPercent maps a line onto [0,100]. An empty file is at 0%.
func LineToPercent(line, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(line) / float64(total)
}

// EffectiveTotal is the number of addressable lines: matches while a search
// is active, otherwise every line in the file.
func EffectiveTotal(totalLines, matchedLines int, searching bool) int {
	if searching {
		return matchedLines
	}
	return totalLines
}

// ScrollPercent converts a raw scroll offset into a percent of the
// scrollable distance. Content that fits in the view is at 100%.
func ScrollPercent(top, contentHeight, viewHeight float64) float64 {
	scrollable := contentHeight - viewHeight
	if scrollable <= 0 {
		return 100
	}
	return ClampPercent(top / scrollable * 100)
}

// ClampPercent bounds p to [0,100]
func ClampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Window returns the [start,end) range of count lines anchored at percent.
// The anchor is centered in the window and the window is clamped to the
// effective total, so 0% yields the head and 100% yields the tail.
func Window(percent float64, count, total int) (start, end int) {
	if total <= 0 || count <= 0 {
		return 0, 0
	}
	anchor := PercentToLine(ClampPercent(percent), total)
	start = anchor - count/2
	if maxStart := total - count; start > maxStart {
		start = maxStart
	}
	if start < 0 {
		start = 0
	}
	end = start + count
	if end > total {
		end = total
	}
	return start, end
}
