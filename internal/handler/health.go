package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health answers 200 while the process is up; "db" reports whether a ping
// to the primary store succeeded.
func Health(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		ok := db != nil && db.PingContext(ctx) == nil
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "db": ok})
	}
}
