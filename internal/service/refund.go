package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// TxRunner runs fn in one database transaction.  Stores called with the
// context handed to fn take part in it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TicketStore is the part of the ledger used after a sale.
type TicketStore interface {
	EventIDOf(ctx context.Context, ticketID int64) (int64, error)
	Delete(ctx context.Context, ticketID int64) (bool, error)
}

// AttendanceStore is the attendance register.
type AttendanceStore interface {
	Insert(ctx context.Context, ticketID int64, at time.Time) (model.Attendance, error)
	Delete(ctx context.Context, ticketID int64) (bool, error)
}

type RefundService struct {
	tx         TxRunner
	inv        Inventory
	tickets    TicketStore
	attendance AttendanceStore
	pub        Publisher
	clock      clock.Clock
	log        *slog.Logger
}

func NewRefundService(tx TxRunner, inv Inventory, tickets TicketStore, attendance AttendanceStore,
	pub Publisher, clk clock.Clock, log *slog.Logger) *RefundService {
	if pub == nil {
		pub = queue.NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &RefundService{tx: tx, inv: inv, tickets: tickets, attendance: attendance, pub: pub, clock: clk, log: log}
}

type RefundResult struct {
	Deleted  bool
	Refunded bool
	// RemainingAvailable is set only when inventory was restored.
	RemainingAvailable *int
}

// Refund deletes a ticket together with its check-in and, when
// restoreInventory is set, puts the unit back on sale.  Everything runs in
// one transaction.  A ticket that is already gone, including one removed by
// a concurrent refund a moment earlier, yields repository.ErrNotFound and
// releases nothing.
func (s *RefundService) Refund(ctx context.Context, ticketID int64, restoreInventory bool) (RefundResult, error) {
	var (
		eventID int64
		res     RefundResult
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if eventID, err = s.tickets.EventIDOf(ctx, ticketID); err != nil {
			return err
		}
		if _, err := s.attendance.Delete(ctx, ticketID); err != nil {
			return err
		}
		deleted, err := s.tickets.Delete(ctx, ticketID)
		if err != nil {
			return err
		}
		if !deleted {
			return repository.ErrNotFound
		}
		res.Deleted = true
		if !restoreInventory {
			return nil
		}
		remaining, err := s.inv.ReleaseUnit(ctx, eventID)
		if err != nil {
			return err
		}
		res.Refunded = true
		res.RemainingAvailable = &remaining
		return nil
	})
	if err != nil {
		return RefundResult{}, err
	}

	ev := queue.NewTicketEvent(queue.TypeTicketRefunded, ticketID, eventID, s.clock.Now())
	ev.RemainingAvailable = res.RemainingAvailable
	publishBestEffort(ctx, s.pub, s.log, ev)
	return res, nil
}
