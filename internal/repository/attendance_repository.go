package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// AttendanceRepo is the attendance register.  The unique index on
// attendance.ticket_id is what guarantees a ticket is checked in once.
type AttendanceRepo struct {
	db *database.DB
}

func NewAttendanceRepo(db *database.DB) *AttendanceRepo { return &AttendanceRepo{db: db} }

// Insert records a check-in.  A second insert for the same ticket fails with
// ErrAlreadyCheckedIn; a ticket that no longer exists yields ErrNotFound.
func (r *AttendanceRepo) Insert(ctx context.Context, ticketID int64, at time.Time) (model.Attendance, error) {
	at = at.UTC().Truncate(time.Second)
	id, err := r.db.InsertID(ctx,
		`INSERT INTO attendance (ticket_id, checked_in_at) VALUES (?, ?)`, ticketID, at)
	if err != nil {
		switch {
		case r.db.Dialect.IsUniqueViolation(err):
			return model.Attendance{}, ErrAlreadyCheckedIn
		case r.db.Dialect.IsForeignKeyViolation(err):
			return model.Attendance{}, ErrNotFound
		}
		return model.Attendance{}, fmt.Errorf("insert attendance: %w", err)
	}
	return model.Attendance{ID: id, TicketID: ticketID, CheckedInAt: at}, nil
}

// Delete removes the check-in of a ticket and reports whether one existed.
func (r *AttendanceRepo) Delete(ctx context.Context, ticketID int64) (bool, error) {
	res, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM attendance WHERE ticket_id = ?`, ticketID)
	if err != nil {
		return false, fmt.Errorf("delete attendance for ticket %d: %w", ticketID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetByTicket returns the check-in of a ticket or ErrNotFound.
func (r *AttendanceRepo) GetByTicket(ctx context.Context, ticketID int64) (model.Attendance, error) {
	var a model.Attendance
	err := r.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT id, ticket_id, checked_in_at FROM attendance WHERE ticket_id = ?`, ticketID,
	).Scan(&a.ID, &a.TicketID, &a.CheckedInAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Attendance{}, ErrNotFound
	}
	return a, err
}
