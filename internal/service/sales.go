package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// Inventory is the per-event ticket counter.  ReserveUnit must be a single
// conditional decrement at the storage layer.
type Inventory interface {
	ReserveUnit(ctx context.Context, eventID int64) (int, error)
	ReleaseUnit(ctx context.Context, eventID int64) (int, error)
	Price(ctx context.Context, eventID int64) (decimal.Decimal, error)
}

// Ledger records issued tickets.
type Ledger interface {
	Insert(ctx context.Context, rec repository.TicketRecord) (model.Ticket, error)
}

// Publisher receives lifecycle events after a change is durable.
type Publisher interface {
	Publish(ctx context.Context, ev queue.TicketEvent) error
}

type SalesService struct {
	inv    Inventory
	ledger Ledger
	pub    Publisher
	clock  clock.Clock
	log    *slog.Logger
}

func NewSalesService(inv Inventory, ledger Ledger, pub Publisher, clk clock.Clock, log *slog.Logger) *SalesService {
	if pub == nil {
		pub = queue.NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &SalesService{inv: inv, ledger: ledger, pub: pub, clock: clk, log: log}
}

type SaleInput struct {
	EventID    int64
	BuyerName  string
	BuyerEmail *string
	Price      *decimal.Decimal // nil means the event's current price
}

type SaleResult struct {
	Ticket model.Ticket
	// RemainingAvailable is the count left by this sale's own decrement.
	RemainingAvailable int
}

// Sell issues one ticket.  It reserves a unit, records the ticket, and
// releases the unit again if the ledger refuses the ticket.
//
// Errors: ErrInvalidArgument, repository.ErrNotFound (no such event),
// repository.ErrNoCapacity, repository.ErrConflict.
func (s *SalesService) Sell(ctx context.Context, in SaleInput) (SaleResult, error) {
	name, email, err := normalizeBuyer(in.BuyerName, in.BuyerEmail)
	if err != nil {
		return SaleResult{}, err
	}
	if err := checkPrice(in.Price); err != nil {
		return SaleResult{}, err
	}
	return s.sell(ctx, in.EventID, name, email, in.Price)
}

func (s *SalesService) sell(ctx context.Context, eventID int64, name string, email *string, p *decimal.Decimal) (SaleResult, error) {
	// The lookup also tells a missing event apart from a sold-out one.
	price, err := s.inv.Price(ctx, eventID)
	if err != nil {
		return SaleResult{}, err
	}
	if p != nil {
		price = *p
	}

	remaining, err := s.inv.ReserveUnit(ctx, eventID)
	if err != nil {
		return SaleResult{}, err
	}

	ticket, err := s.ledger.Insert(ctx, repository.TicketRecord{
		EventID:    eventID,
		BuyerName:  name,
		BuyerEmail: email,
		Price:      price,
		SoldAt:     s.clock.Now(),
	})
	if err != nil {
		return SaleResult{}, s.compensate(ctx, eventID, err)
	}

	ev := queue.NewTicketEvent(queue.TypeTicketSold, ticket.ID, eventID, ticket.SoldAt)
	ev.BuyerName = ticket.BuyerName
	ev.Price = &ticket.Price
	ev.RemainingAvailable = &remaining
	s.publish(ctx, ev)

	return SaleResult{Ticket: ticket, RemainingAvailable: remaining}, nil
}

// compensate gives back the unit reserved for a ticket the ledger refused
// and returns the error to surface.  Ledger failures other than a missing
// event are reported as conflicts.
func (s *SalesService) compensate(ctx context.Context, eventID int64, insertErr error) error {
	// The request may already be cancelled; the release must still happen.
	relCtx := context.WithoutCancel(ctx)
	if _, err := s.inv.ReleaseUnit(relCtx, eventID); err != nil {
		s.log.ErrorContext(ctx, "sale compensation failed, one unit leaked",
			"event_id", eventID, "insert_err", insertErr, "release_err", err)
		return errors.Join(asConflict(insertErr), fmt.Errorf("release unit: %w", err))
	}
	s.log.WarnContext(ctx, "sale compensated", "event_id", eventID, "err", insertErr)
	return asConflict(insertErr)
}

func asConflict(err error) error {
	if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", repository.ErrConflict, err)
}

// bulkPrealloc bounds the result slice hint; Quantity comes from the client.
const bulkPrealloc = 64

type BulkSaleInput struct {
	EventID    int64
	BuyerName  string
	BuyerEmail *string
	Quantity   int
	Price      *decimal.Decimal
}

// BulkSaleResult lists the tickets actually issued.  len(Tickets) less than
// the requested quantity means partial fulfilment, and Stopped then holds
// the error of the sale that ended the run.
type BulkSaleResult struct {
	Tickets            []model.Ticket
	RemainingAvailable *int
	Stopped            error
}

// Complete reports whether every requested ticket was issued.
func (r BulkSaleResult) Complete(quantity int) bool { return len(r.Tickets) == quantity }

// SellBulk issues up to Quantity tickets to one buyer, one sale at a time.
// With more than one ticket, names get a " #i" suffix so the rows stay
// distinct under the per-buyer uniqueness rule.  The first failed sale ends
// the run; it is never retried and never skipped.
//
// Only validation failures are returned as an error.
func (s *SalesService) SellBulk(ctx context.Context, in BulkSaleInput) (BulkSaleResult, error) {
	if in.Quantity <= 0 {
		return BulkSaleResult{}, invalid("quantity must be a positive integer")
	}
	name, email, err := normalizeBuyer(in.BuyerName, in.BuyerEmail)
	if err != nil {
		return BulkSaleResult{}, err
	}
	if err := checkPrice(in.Price); err != nil {
		return BulkSaleResult{}, err
	}

	res := BulkSaleResult{Tickets: make([]model.Ticket, 0, min(in.Quantity, bulkPrealloc))}
	for i := 1; i <= in.Quantity; i++ {
		buyer := name
		if in.Quantity > 1 {
			buyer = fmt.Sprintf("%s #%d", name, i)
		}
		sale, err := s.sell(ctx, in.EventID, buyer, email, in.Price)
		if err != nil {
			res.Stopped = err
			s.log.InfoContext(ctx, "bulk sale stopped",
				"event_id", in.EventID, "requested", in.Quantity, "created", len(res.Tickets), "err", err)
			break
		}
		res.Tickets = append(res.Tickets, sale.Ticket)
		remaining := sale.RemainingAvailable
		res.RemainingAvailable = &remaining
	}
	return res, nil
}

func (s *SalesService) publish(ctx context.Context, ev queue.TicketEvent) {
	publishBestEffort(ctx, s.pub, s.log, ev)
}

// publishTimeout caps how long a committed change waits on the broker.
var publishTimeout = 2 * time.Second

func publishBestEffort(ctx context.Context, pub Publisher, log *slog.Logger, ev queue.TicketEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := pub.Publish(pubCtx, ev); err != nil {
		log.WarnContext(ctx, "publish lifecycle event failed",
			"type", ev.Type, "ticket_id", ev.TicketID, "event_id", ev.EventID, "err", err)
	}
}
