package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticket is proof of purchase against exactly one event.  It is created
// only by a successful sale and destroyed only by a refund.
//
// Fields:
//
//	ID         – primary key.
//	EventID    – the event whose inventory this ticket consumed.
//	BuyerName  – trimmed, never empty.
//	BuyerEmail – optional.
//	Price      – captured at sale time; later event price changes do not apply.
//	SoldAt     – creation timestamp (UTC).
//	Checked    – derived from the attendance table by read queries.
type Ticket struct {
	ID         int64           `json:"id"`          // tickets.id
	EventID    int64           `json:"event_id"`    // tickets.event_id
	BuyerName  string          `json:"buyer_name"`  // tickets.buyer_name
	BuyerEmail *string         `json:"buyer_email"` // tickets.buyer_email (nullable)
	Price      decimal.Decimal `json:"price"`       // tickets.price
	SoldAt     time.Time       `json:"sold_at"`     // tickets.sold_at
	Checked    bool            `json:"checked"`     // EXISTS(attendance)
}

// TicketFilter narrows ticket listings.  Zero values mean "no filter".
type TicketFilter struct {
	EventID  *int64
	Buyer    string     // substring match on buyer name or email
	DateFrom *time.Time // inclusive
	DateTo   *time.Time // exclusive
	Checked  string     // "yes", "no" or "all"
}

// TicketSummary aggregates sales, optionally for a single event.
type TicketSummary struct {
	TotalTickets     int64           `json:"total_tickets"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	TotalCheckedIn   int64           `json:"total_checked_in"`
	AvailableTickets *int            `json:"available_tickets,omitempty"`
}
