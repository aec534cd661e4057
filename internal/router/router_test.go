package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

const secret = "router-secret"

func newServer() *echo.Echo {
	e := echo.New()
	Register(e, Deps{JWTSecret: secret})
	return e
}

func TestRoutesRequireAuth(t *testing.T) {
	e := newServer()
	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/v1/tickets"},
		{http.MethodPost, "/v1/tickets/bulk"},
		{http.MethodGet, "/v1/tickets"},
		{http.MethodPost, "/v1/tickets/1/refund"},
		{http.MethodPost, "/v1/attendance"},
		{http.MethodPost, "/v1/events"},
		{http.MethodGet, "/v1/me"},
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(r.method, r.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, r.method+" "+r.path)
	}
}

func TestStaffCannotManageEvents(t *testing.T) {
	e := newServer()
	tok, err := utils.NewAccessToken(secret, 3, model.RoleStaff, 5, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/events", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","db":false}`, rec.Body.String())
}
