// Package common holds helpers shared by the API feature packages:
// JSON responses, query parameter parsing, and the cookie-session
// authentication middleware.
package common

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes an error response in the API's {"detail": ...} shape.
func Error(w http.ResponseWriter, status int, detail string) {
	JSON(w, status, map[string]string{"detail": detail})
}

// ParseLimit reads an integer query value with a default and an upper
// cap. Returns ok=false when the value is present but not a positive
// integer.
func ParseLimit(raw string, def, max int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

// ParseDate reads a YYYY-MM-DD query value, defaulting to today (UTC
// midnight) when absent.
func ParseDate(raw string) (time.Time, bool) {
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
