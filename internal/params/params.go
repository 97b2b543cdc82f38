package params

import (
	"net/url"
	"strconv"
	"strings"
)

// URL: /comments/pending?skip=20&limit=10
// → ParseWindow(q, 10, 50) → Window{Skip:20, Limit:10}
// → SQL: ... OFFSET 20 LIMIT 10
// Window is a skip/limit page request.
type Window struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

// ParseWindow parses ?skip=...&limit=... safely. Missing or invalid values fall
// back to skip 0 and defLimit; limit is capped at maxLimit.
func ParseWindow(q url.Values, defLimit, maxLimit int) Window {
	w := Window{Limit: defLimit}

	if s := strings.TrimSpace(q.Get("skip")); s != "" {
		if skip, err := strconv.Atoi(s); err == nil && skip > 0 {
			w.Skip = skip
		}
	}
	if s := strings.TrimSpace(q.Get("limit")); s != "" {
		if limit, err := strconv.Atoi(s); err == nil {
			w.Limit = limit
		}
	}

	w.Limit = ClampLimit(w.Limit, defLimit, maxLimit)
	return w
}

// ClampLimit returns def for non-positive limits and max for limits above max.
func ClampLimit(limit, def, max int) int {
	switch {
	case limit <= 0:
		return def
	case limit > max:
		return max
	default:
		return limit
	}
}

// ClampSkip turns a negative skip into 0.
func ClampSkip(skip int) int {
	if skip < 0 {
		return 0
	}
	return skip
}
