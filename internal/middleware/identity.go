package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// currentUserID returns the authenticated user as a string key, or "anon"
// when the route runs without JWTAuth.
func currentUserID(c echo.Context) string {
	switch v := c.Get("user_id").(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		if v != "" {
			return v
		}
	}
	return "anon"
}
