package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

type CheckInService struct {
	tickets    TicketStore
	attendance AttendanceStore
	pub        Publisher
	clock      clock.Clock
	log        *slog.Logger
}

func NewCheckInService(tickets TicketStore, attendance AttendanceStore, pub Publisher, clk clock.Clock, log *slog.Logger) *CheckInService {
	if pub == nil {
		pub = queue.NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &CheckInService{tickets: tickets, attendance: attendance, pub: pub, clock: clk, log: log}
}

// CheckIn marks a ticket as used.  It fails with repository.ErrNotFound for
// an unknown ticket and repository.ErrAlreadyCheckedIn for a second check-in.
func (s *CheckInService) CheckIn(ctx context.Context, ticketID int64) (model.Attendance, error) {
	eventID, err := s.tickets.EventIDOf(ctx, ticketID)
	if err != nil {
		return model.Attendance{}, err
	}
	a, err := s.attendance.Insert(ctx, ticketID, s.clock.Now())
	if err != nil {
		return model.Attendance{}, err
	}
	publishBestEffort(ctx, s.pub, s.log,
		queue.NewTicketEvent(queue.TypeCheckedIn, ticketID, eventID, a.CheckedInAt))
	return a, nil
}

// UndoCheckIn removes a ticket's check-in.  repository.ErrNotFound means
// there was none.
func (s *CheckInService) UndoCheckIn(ctx context.Context, ticketID int64) error {
	deleted, err := s.attendance.Delete(ctx, ticketID)
	if err != nil {
		return err
	}
	if !deleted {
		return repository.ErrNotFound
	}
	// A ticket refunded meanwhile leaves the event unknown.
	eventID, err := s.tickets.EventIDOf(ctx, ticketID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.WarnContext(ctx, "undo check-in: event lookup failed", "ticket_id", ticketID, "err", err)
	}
	publishBestEffort(ctx, s.pub, s.log,
		queue.NewTicketEvent(queue.TypeCheckInUndone, ticketID, eventID, s.clock.Now()))
	return nil
}
