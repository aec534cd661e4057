// Package queue carries ticket lifecycle events to a message broker and
// back out into the audit log.
package queue

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lifecycle event types.
const (
	TypeTicketSold     = "ticket.sold"
	TypeTicketRefunded = "ticket.refunded"
	TypeCheckedIn      = "attendance.checked_in"
	TypeCheckInUndone  = "attendance.undone"
)

// TicketEvent is published after a sale, refund, check-in or undo has been
// committed.  Consumers get enough to log or notify without reading the
// primary database.
type TicketEvent struct {
	ID                 string           `json:"id"`
	Type               string           `json:"type"`
	TicketID           int64            `json:"ticket_id"`
	EventID            int64            `json:"event_id"`
	BuyerName          string           `json:"buyer_name,omitempty"`
	Price              *decimal.Decimal `json:"price,omitempty"`
	RemainingAvailable *int             `json:"remaining_available,omitempty"`
	OccurredAt         time.Time        `json:"occurred_at"`
}

// NewTicketEvent stamps a fresh message ID on an event of the given type.
func NewTicketEvent(typ string, ticketID, eventID int64, at time.Time) TicketEvent {
	return TicketEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		TicketID:   ticketID,
		EventID:    eventID,
		OccurredAt: at.UTC(),
	}
}
