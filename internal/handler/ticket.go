package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/service"
)

type Seller interface {
	Sell(ctx context.Context, in service.SaleInput) (service.SaleResult, error)
	SellBulk(ctx context.Context, in service.BulkSaleInput) (service.BulkSaleResult, error)
}

type Refunder interface {
	Refund(ctx context.Context, ticketID int64, restoreInventory bool) (service.RefundResult, error)
}

type CheckIner interface {
	CheckIn(ctx context.Context, ticketID int64) (model.Attendance, error)
	UndoCheckIn(ctx context.Context, ticketID int64) error
}

// TicketQuery is the read side of the ticket ledger.
type TicketQuery interface {
	GetByID(ctx context.Context, id int64) (model.Ticket, error)
	List(ctx context.Context, f model.TicketFilter) ([]model.Ticket, error)
	Summary(ctx context.Context, eventID *int64) (model.TicketSummary, error)
}

type AttendanceQuery interface {
	GetByTicket(ctx context.Context, ticketID int64) (model.Attendance, error)
}

type InventoryQuery interface {
	Available(ctx context.Context, eventID int64) (int, error)
}

// TicketHandler serves ticket sales, refunds and check-ins.
type TicketHandler struct {
	Sales      Seller
	Refunds    Refunder
	CheckIns   CheckIner
	Tickets    TicketQuery
	Attendance AttendanceQuery
	Inventory  InventoryQuery
}

type saleReq struct {
	EventID    int64            `json:"event_id"`
	BuyerName  string           `json:"buyer_name"`
	BuyerEmail *string          `json:"buyer_email"`
	Price      *decimal.Decimal `json:"price"`
	Quantity   int              `json:"quantity"`
}

type saleResp struct {
	model.Ticket
	RemainingAvailable int `json:"remaining_available"`
}

type bulkResp struct {
	Requested          int            `json:"requested"`
	Created            int            `json:"created"`
	Complete           bool           `json:"complete"`
	Tickets            []model.Ticket `json:"tickets"`
	RemainingAvailable *int           `json:"remaining_available,omitempty"`
	StoppedReason      string         `json:"stopped_reason,omitempty"`
}

type refundReq struct {
	RestoreInventory bool `json:"restore_inventory"`
}

type refundResp struct {
	Deleted            bool `json:"deleted"`
	Refunded           bool `json:"refunded"`
	RemainingAvailable *int `json:"remaining_available"`
}

// SellTicket handles POST /v1/tickets.
func (h *TicketHandler) SellTicket(c echo.Context) error {
	var req saleReq
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
	}
	if req.EventID <= 0 {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "event_id is required")
	}
	res, err := h.Sales.Sell(c.Request().Context(), service.SaleInput{
		EventID:    req.EventID,
		BuyerName:  req.BuyerName,
		BuyerEmail: req.BuyerEmail,
		Price:      req.Price,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, saleResp{Ticket: res.Ticket, RemainingAvailable: res.RemainingAvailable})
}

// SellBulk handles POST /v1/tickets/bulk.  A run that stops early still
// answers 201 with the tickets it did create; a run that created nothing
// answers with the status of the failure that stopped it.
func (h *TicketHandler) SellBulk(c echo.Context) error {
	var req saleReq
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
	}
	if req.EventID <= 0 {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "event_id is required")
	}
	res, err := h.Sales.SellBulk(c.Request().Context(), service.BulkSaleInput{
		EventID:    req.EventID,
		BuyerName:  req.BuyerName,
		BuyerEmail: req.BuyerEmail,
		Quantity:   req.Quantity,
		Price:      req.Price,
	})
	if err != nil {
		return respondErr(c, err)
	}
	if len(res.Tickets) == 0 && res.Stopped != nil {
		return respondErr(c, res.Stopped)
	}
	out := bulkResp{
		Requested:          req.Quantity,
		Created:            len(res.Tickets),
		Complete:           res.Complete(req.Quantity),
		Tickets:            res.Tickets,
		RemainingAvailable: res.RemainingAvailable,
	}
	if res.Stopped != nil {
		out.StoppedReason = errorCode(res.Stopped)
	}
	return c.JSON(http.StatusCreated, out)
}

// ListTickets handles GET /v1/tickets with optional event_id, buyer,
// date_from, date_to and checked=yes|no|all filters.  A date-only date_to
// includes that whole day.
func (h *TicketHandler) ListTickets(c echo.Context) error {
	var f model.TicketFilter
	var ok bool
	if f.EventID, ok = queryID(c, "event_id"); !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid event_id")
	}
	f.Buyer = strings.TrimSpace(c.QueryParam("buyer"))

	from, _, err := parseDay(c.QueryParam("date_from"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidArgument, "date_from must be YYYY-MM-DD or RFC3339")
	}
	if !from.IsZero() {
		f.DateFrom = &from
	}
	to, wholeDay, err := parseDay(c.QueryParam("date_to"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidArgument, "date_to must be YYYY-MM-DD or RFC3339")
	}
	if !to.IsZero() {
		if wholeDay {
			to = to.Add(24 * time.Hour)
		}
		f.DateTo = &to
	}

	switch checked := strings.ToLower(strings.TrimSpace(c.QueryParam("checked"))); checked {
	case "", "all":
		f.Checked = "all"
	case "yes", "no":
		f.Checked = checked
	default:
		return writeError(c, http.StatusBadRequest, codeInvalidArgument, "checked must be yes, no or all")
	}

	tickets, err := h.Tickets.List(c.Request().Context(), f)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, tickets)
}

// GetTicket handles GET /v1/tickets/:id.
func (h *TicketHandler) GetTicket(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid id")
	}
	t, err := h.Tickets.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// TicketSummary handles GET /v1/tickets/summary?event_id=.  With an event
// the response also carries its remaining inventory.
func (h *TicketHandler) TicketSummary(c echo.Context) error {
	eventID, ok := queryID(c, "event_id")
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid event_id")
	}
	ctx := c.Request().Context()
	s, err := h.Tickets.Summary(ctx, eventID)
	if err != nil {
		return respondErr(c, err)
	}
	if eventID != nil {
		n, err := h.Inventory.Available(ctx, *eventID)
		if err != nil {
			return respondErr(c, err)
		}
		s.AvailableTickets = &n
	}
	return c.JSON(http.StatusOK, s)
}

// RefundTicket handles POST /v1/tickets/:id/refund.  Inventory is restored
// only when the body says {"restore_inventory": true}.
func (h *TicketHandler) RefundTicket(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid id")
	}
	var req refundReq
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
	}
	return h.refund(c, id, req.RestoreInventory)
}

// DeleteTicket handles DELETE /v1/tickets/:id?refund=1.
func (h *TicketHandler) DeleteTicket(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid id")
	}
	switch strings.ToLower(c.QueryParam("refund")) {
	case "1", "true", "yes":
		return h.refund(c, id, true)
	}
	return h.refund(c, id, false)
}

func (h *TicketHandler) refund(c echo.Context, id int64, restore bool) error {
	res, err := h.Refunds.Refund(c.Request().Context(), id, restore)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, refundResp{
		Deleted:            res.Deleted,
		Refunded:           res.Refunded,
		RemainingAvailable: res.RemainingAvailable,
	})
}

// CheckIn handles POST /v1/attendance with {"ticket_id": n} or ?ticket_id=n.
func (h *TicketHandler) CheckIn(c echo.Context) error {
	var req struct {
		TicketID int64 `json:"ticket_id"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
	}
	if req.TicketID <= 0 {
		if id, ok := queryID(c, "ticket_id"); ok && id != nil {
			req.TicketID = *id
		}
	}
	if req.TicketID <= 0 {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "ticket_id is required")
	}
	a, err := h.CheckIns.CheckIn(c.Request().Context(), req.TicketID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

// GetAttendance handles GET /v1/attendance/:ticket_id.
func (h *TicketHandler) GetAttendance(c echo.Context) error {
	id, ok := pathID(c, "ticket_id")
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid ticket_id")
	}
	a, err := h.Attendance.GetByTicket(c.Request().Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// UndoCheckIn handles DELETE /v1/attendance/:ticket_id and
// DELETE /v1/attendance?ticket_id=.
func (h *TicketHandler) UndoCheckIn(c echo.Context) error {
	id, ok := pathID(c, "ticket_id")
	if !ok {
		q, valid := queryID(c, "ticket_id")
		if !valid || q == nil {
			return writeError(c, http.StatusBadRequest, codeInvalidID, "invalid ticket_id")
		}
		id = *q
	}
	if err := h.CheckIns.UndoCheckIn(c.Request().Context(), id); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": true})
}
