package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is a schedulable item with a finite ticket inventory.
//
// Fields:
//
//	ID               – primary key, immutable.
//	Name, Description, Category – display fields, opaque to the sale logic.
//	EventDate        – when the event takes place (UTC).
//	Price            – default ticket price, non-negative.
//	AvailableTickets – remaining inventory; only changed by the conditional
//	                   reserve/release statements of the event repository.
//	CreatorID        – owning organizer, nullable if the user was removed.
type Event struct {
	ID               int64           `json:"id"`                // events.id
	Name             string          `json:"name"`              // events.name
	Description      *string         `json:"description"`       // events.description (nullable)
	EventDate        time.Time       `json:"event_date"`        // events.event_date
	Category         *string         `json:"category"`          // events.category (nullable)
	Price            decimal.Decimal `json:"price"`             // events.price
	AvailableTickets int             `json:"available_tickets"` // events.available_tickets
	CreatorID        *int64          `json:"creator_id"`        // events.creator_id (nullable)
	CreatedAt        time.Time       `json:"created_at"`        // events.created_at
	UpdatedAt        time.Time       `json:"updated_at"`        // events.updated_at
}

// EventSummary aggregates inventory across events.
type EventSummary struct {
	TotalEvents           int64 `json:"total_events"`
	TotalAvailableTickets int64 `json:"total_available_tickets"`
	SoldOut               int64 `json:"sold_out"`
}
