package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

type fakeEvent struct {
	price     decimal.Decimal
	available int
}

// fakeStore stands in for the events, tickets and attendance tables.  Every
// method takes the lock, so ReserveUnit is a conditional decrement just like
// the SQL statement it replaces.
type fakeStore struct {
	mu         sync.Mutex
	events     map[int64]*fakeEvent
	tickets    map[int64]model.Ticket
	attendance map[int64]model.Attendance
	nextID     int64

	insertErr  error
	releaseErr error

	reserveCalls int
	releaseCalls int
	txCalls      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:     map[int64]*fakeEvent{},
		tickets:    map[int64]model.Ticket{},
		attendance: map[int64]model.Attendance{},
	}
}

func (f *fakeStore) addEvent(id int64, price string, available int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[id] = &fakeEvent{price: decimal.RequireFromString(price), available: available}
}

func (f *fakeStore) available(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[id].available
}

func (f *fakeStore) ticketCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickets)
}

func (f *fakeStore) ReserveUnit(_ context.Context, eventID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserveCalls++
	ev, ok := f.events[eventID]
	if !ok || ev.available <= 0 {
		return 0, repository.ErrNoCapacity
	}
	ev.available--
	return ev.available, nil
}

func (f *fakeStore) ReleaseUnit(_ context.Context, eventID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	if f.releaseErr != nil {
		return 0, f.releaseErr
	}
	ev, ok := f.events[eventID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	ev.available++
	return ev.available, nil
}

func (f *fakeStore) Price(_ context.Context, eventID int64) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[eventID]
	if !ok {
		return decimal.Zero, repository.ErrNotFound
	}
	return ev.price, nil
}

func (f *fakeStore) Insert(_ context.Context, rec repository.TicketRecord) (model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return model.Ticket{}, f.insertErr
	}
	if _, ok := f.events[rec.EventID]; !ok {
		return model.Ticket{}, repository.ErrNotFound
	}
	for _, t := range f.tickets {
		if t.EventID == rec.EventID && t.BuyerName == rec.BuyerName && sameEmail(t.BuyerEmail, rec.BuyerEmail) {
			return model.Ticket{}, repository.ErrConflict
		}
	}
	f.nextID++
	t := model.Ticket{
		ID:         f.nextID,
		EventID:    rec.EventID,
		BuyerName:  rec.BuyerName,
		BuyerEmail: rec.BuyerEmail,
		Price:      rec.Price,
		SoldAt:     rec.SoldAt,
	}
	f.tickets[t.ID] = t
	return t, nil
}

// sameEmail mirrors SQL unique-index semantics: NULLs never collide.
func sameEmail(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func (f *fakeStore) EventIDOf(_ context.Context, ticketID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return t.EventID, nil
}

func (f *fakeStore) Delete(_ context.Context, ticketID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tickets[ticketID]; !ok {
		return false, nil
	}
	delete(f.tickets, ticketID)
	return true, nil
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.txCalls++
	f.mu.Unlock()
	return fn(ctx)
}

// fakeAttendance shares the ticket table of its store.
type fakeAttendance struct{ s *fakeStore }

func (a fakeAttendance) Insert(_ context.Context, ticketID int64, at time.Time) (model.Attendance, error) {
	f := a.s
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tickets[ticketID]; !ok {
		return model.Attendance{}, repository.ErrNotFound
	}
	if _, ok := f.attendance[ticketID]; ok {
		return model.Attendance{}, repository.ErrAlreadyCheckedIn
	}
	f.nextID++
	rec := model.Attendance{ID: f.nextID, TicketID: ticketID, CheckedInAt: at}
	f.attendance[ticketID] = rec
	return rec, nil
}

func (a fakeAttendance) Delete(_ context.Context, ticketID int64) (bool, error) {
	f := a.s
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.attendance[ticketID]; !ok {
		return false, nil
	}
	delete(f.attendance, ticketID)
	return true, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.TicketEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.TicketEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// stallingPublisher never acks; Publish returns only when ctx ends.
type stallingPublisher struct {
	mu  sync.Mutex
	err error
}

func (p *stallingPublisher) Publish(ctx context.Context, _ queue.TicketEvent) error {
	<-ctx.Done()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = ctx.Err()
	return p.err
}

func (p *stallingPublisher) lastErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func withPublishTimeout(t *testing.T, d time.Duration) {
	t.Helper()
	prev := publishTimeout
	publishTimeout = d
	t.Cleanup(func() { publishTimeout = prev })
}

var errBrokerDown = errors.New("broker down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
