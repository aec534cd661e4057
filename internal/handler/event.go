package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// EventStore is implemented by repository.EventRepo.
type EventStore interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id int64) (model.Event, error)
	List(ctx context.Context, creatorID *int64) ([]model.Event, error)
	Update(ctx context.Context, e model.Event, ownerID int64) error
	Delete(ctx context.Context, id, ownerID int64) error
	Summary(ctx context.Context, creatorID *int64) (model.EventSummary, error)
}

type EventHandler struct {
	Events EventStore
}

func NewEventHandler(events EventStore) *EventHandler {
	if events == nil {
		panic("nil event store passed to NewEventHandler")
	}
	return &EventHandler{Events: events}
}

type eventReq struct {
	Name             *string          `json:"name"`
	Description      *string          `json:"description"`
	EventDate        *string          `json:"event_date"`
	Category         *string          `json:"category"`
	Price            *decimal.Decimal `json:"price"`
	AvailableTickets *int             `json:"available_tickets"`
}

// CreateEvent handles POST /v1/events.  available_tickets is the initial
// capacity; afterwards only sales and refunds move it.
func (h *EventHandler) CreateEvent(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
	}
	if req.Name == nil || req.EventDate == nil {
		return writeError(c, http.StatusBadRequest, codeInvalidArgument, "name and event_date are required")
	}
	e := model.Event{CreatorID: &ownerID}
	if msg := applyEventReq(&e, req); msg != "" {
		return writeError(c, http.StatusBadRequest, codeInvalidArgument, msg)
	}
	if req.AvailableTickets != nil {
		if *req.AvailableTickets < 0 {
			return writeError(c, http.StatusBadRequest, codeInvalidArgument, "available_tickets must not be negative")
		}
		e.AvailableTickets = *req.AvailableTickets
	}
	if err := h.Events.Create(c.Request().Context(), &e); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

// UpdateEvent handles PUT/PATCH /v1/events/:id.  Fields left out keep their
// value.  Inventory cannot be edited here.
func (h *EventHandler) UpdateEvent(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid id")
	}
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
	}
	if req.AvailableTickets != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidArgument,
			"available_tickets changes only through sales and refunds")
	}

	ctx := c.Request().Context()
	e, err := h.Events.GetByID(ctx, id)
	if err != nil {
		return respondErr(c, err)
	}
	if msg := applyEventReq(&e, req); msg != "" {
		return writeError(c, http.StatusBadRequest, codeInvalidArgument, msg)
	}
	if err := h.Events.Update(ctx, e, ownerID); err != nil {
		return respondErr(c, err)
	}
	updated, err := h.Events.GetByID(ctx, id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// applyEventReq copies the display fields and price from req onto e and
// returns a validation message, or "" when the result is valid.
func applyEventReq(e *model.Event, req eventReq) string {
	if req.Name != nil {
		e.Name = strings.TrimSpace(*req.Name)
	}
	if e.Name == "" {
		return "name is required"
	}
	if req.EventDate != nil {
		t, _, err := parseDay(*req.EventDate)
		if err != nil || t.IsZero() {
			return "event_date must be YYYY-MM-DD or RFC3339"
		}
		e.EventDate = t
	}
	if req.Description != nil {
		e.Description = trimmedOrNil(*req.Description)
	}
	if req.Category != nil {
		e.Category = trimmedOrNil(*req.Category)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return "price must not be negative"
		}
		e.Price = *req.Price
	}
	return ""
}

func trimmedOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// DeleteEvent handles DELETE /v1/events/:id.
func (h *EventHandler) DeleteEvent(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid id")
	}
	if err := h.Events.Delete(c.Request().Context(), id, ownerID); err != nil {
		return respondErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetEvent handles GET /v1/events/:id.
func (h *EventHandler) GetEvent(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid id")
	}
	e, err := h.Events.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// ListEvents handles GET /v1/events?creator_id=.
func (h *EventHandler) ListEvents(c echo.Context) error {
	creator, ok := queryID(c, "creator_id")
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid creator_id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	events, err := h.Events.List(ctx, creator)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

// EventSummary handles GET /v1/events/summary?creator_id=.
func (h *EventHandler) EventSummary(c echo.Context) error {
	creator, ok := queryID(c, "creator_id")
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid creator_id")
	}
	s, err := h.Events.Summary(c.Request().Context(), creator)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, s)
}
