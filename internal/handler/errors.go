package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/service"
)

const (
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidID          = "invalid_id"
	codeInvalidArgument    = "invalid_argument"
	codeUnauthorized       = "unauthorized"
	codeForbidden          = "forbidden"
	codeNotFound           = "not_found"
	codeNoCapacity         = "no_capacity"
	codeAlreadyCheckedIn   = "already_checked_in"
	codeConflict           = "conflict"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, errorResponse{Error: msg, Code: code})
}

// respondErr maps a repository or service error onto a status code.  The
// more specific sentinels are checked first since ErrAlreadyCheckedIn also
// matches ErrConflict.
func respondErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return writeError(c, http.StatusBadRequest, codeInvalidArgument,
			strings.TrimPrefix(err.Error(), service.ErrInvalidArgument.Error()+": "))
	case errors.Is(err, repository.ErrNotFound):
		return writeError(c, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, repository.ErrNoCapacity):
		return writeError(c, http.StatusConflict, codeNoCapacity, "no tickets available")
	case errors.Is(err, repository.ErrAlreadyCheckedIn):
		return writeError(c, http.StatusConflict, codeAlreadyCheckedIn, "ticket already checked in")
	case errors.Is(err, repository.ErrConflict):
		return writeError(c, http.StatusConflict, codeConflict, "conflict")
	case errors.Is(err, repository.ErrForbidden):
		return writeError(c, http.StatusForbidden, codeForbidden, "forbidden")
	}
	slog.ErrorContext(c.Request().Context(), "request failed",
		"method", c.Request().Method, "path", c.Path(), "err", err)
	return writeError(c, http.StatusInternalServerError, codeInternalError, "internal error")
}

// errorCode names a failure for list-style responses such as the bulk
// sale's stopped_reason.
func errorCode(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return codeNotFound
	case errors.Is(err, repository.ErrNoCapacity):
		return codeNoCapacity
	case errors.Is(err, repository.ErrConflict):
		return codeConflict
	}
	return codeInternalError
}
