package common

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// AtoiDefault converts the provided string to an integer falling back to the default when parsing fails.
func AtoiDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

// QueryTime parses an optional RFC 3339 timestamp or YYYY-MM-DD date from the
// query string. Dates are interpreted as midnight UTC.
func QueryTime(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, NewAppError("BAD_REQUEST", "invalid "+name+": expected RFC3339 or YYYY-MM-DD", http.StatusBadRequest, err)
	}
	return &t, nil
}
