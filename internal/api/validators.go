package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
)

// parseOffset parses and validates an offset parameter
func parseOffset(r *http.Request) int {
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return 0
}

// parseSize reads a positive page size; zero means "use the default" and
// the engine clamps it to the maximum
func parseSize(r *http.Request, param string) int {
	if s := r.URL.Query().Get(param); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			return parsed
		}
	}
	return 0
}

// parsePercent reads the percent parameter, defaulting to the end of the log
func parsePercent(r *http.Request) (float64, error) {
	p := r.URL.Query().Get("percent")
	if p == "" {
		return 100, nil
	}
	parsed, err := strconv.ParseFloat(p, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, fmt.Errorf("invalid percent %q", p)
	}
	return parsed, nil
}
