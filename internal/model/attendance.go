package model

import "time"

// Attendance is the check-in mark of a ticket.  There is at most one per
// ticket, enforced by a unique index on ticket_id.
type Attendance struct {
	ID          int64     `json:"id"`            // attendance.id
	TicketID    int64     `json:"ticket_id"`     // attendance.ticket_id
	CheckedInAt time.Time `json:"checked_in_at"` // attendance.checked_in_at
}
