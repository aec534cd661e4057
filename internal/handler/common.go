package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// getUserID returns the authenticated user set by middleware.JWTAuth.
func getUserID(c echo.Context) (int64, error) {
	switch t := c.Get("user_id").(type) {
	case int64:
		return t, nil
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

func unauthorized(c echo.Context) error {
	return writeError(c, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryID parses an optional positive integer query parameter.  ok is false
// only when the value is present but malformed.
func queryID(c echo.Context, name string) (id *int64, ok bool) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return nil, false
	}
	return &n, true
}

// parseDay accepts YYYY-MM-DD or RFC3339.  dateOnly tells callers whether
// the value named a whole day.
func parseDay(s string) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	if t, err = time.Parse("2006-01-02", s); err == nil {
		return t, true, nil
	}
	if t, err = time.Parse(time.RFC3339, s); err != nil {
		return time.Time{}, false, err
	}
	return t, false, nil
}
