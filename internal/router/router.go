package router // package router registers the HTTP API on an Echo instance

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// Deps carries everything the routes need.  Redis may be nil, which turns
// rate limiting and response caching off.
type Deps struct {
	JWTSecret string
	Health    handler.Pinger
	Auth      *handler.AuthHandler
	Events    *handler.EventHandler
	Tickets   *handler.TicketHandler
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
}

// Register wires all routes.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.Health))

	registerAuth(e, d)
	registerEvents(e, d)
	registerTickets(e, d)
}

func registerAuth(e *echo.Echo, d Deps) {
	g := e.Group("/v1/auth")
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/logout", d.Auth.Logout)

	me := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))
	me.GET("/me", d.Auth.Me)
	me.POST("/logout-all", d.Auth.LogoutAll)
}

func registerEvents(e *echo.Echo, d Deps) {
	cache := middleware.ResponseCache(d.Cache, d.Redis)
	e.GET("/v1/events", d.Events.ListEvents, cache)
	e.GET("/v1/events/summary", d.Events.EventSummary, cache)
	e.GET("/v1/events/:id", d.Events.GetEvent, cache)

	g := e.Group("/v1/events",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleOrganizer),
	)
	g.POST("", d.Events.CreateEvent)
	g.PUT("/:id", d.Events.UpdateEvent)
	g.PATCH("/:id", d.Events.UpdateEvent)
	g.DELETE("/:id", d.Events.DeleteEvent)
}

// registerTickets puts sales, refunds and check-ins behind staff auth.  The
// rate limiter wraps only the mutating routes.
func registerTickets(e *echo.Echo, d Deps) {
	g := e.Group("/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleOrganizer, model.RoleStaff),
	)
	limit := middleware.RateLimit(d.RateLimit, d.Redis)

	g.GET("/tickets", d.Tickets.ListTickets)
	g.GET("/tickets/summary", d.Tickets.TicketSummary)
	g.GET("/tickets/:id", d.Tickets.GetTicket)
	g.POST("/tickets", d.Tickets.SellTicket, limit)
	g.POST("/tickets/bulk", d.Tickets.SellBulk, limit)
	g.POST("/tickets/:id/refund", d.Tickets.RefundTicket, limit)
	g.DELETE("/tickets/:id", d.Tickets.DeleteTicket, limit)

	g.POST("/attendance", d.Tickets.CheckIn, limit)
	g.GET("/attendance/:ticket_id", d.Tickets.GetAttendance)
	g.DELETE("/attendance/:ticket_id", d.Tickets.UndoCheckIn, limit)
	g.DELETE("/attendance", d.Tickets.UndoCheckIn, limit)
}
