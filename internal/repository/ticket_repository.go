package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// TicketRepo is the ticket ledger.  The (event_id, buyer_email, buyer_name)
// unique index enforces one ticket per buyer per event; a violation comes
// back as ErrConflict so the sale orchestrator can compensate.
type TicketRepo struct {
	db *database.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *database.DB) *TicketRepo { return &TicketRepo{db: db} }

// TicketRecord carries the columns written by Insert.  The price is already
// resolved by the caller.
type TicketRecord struct {
	EventID    int64
	BuyerName  string
	BuyerEmail *string
	Price      decimal.Decimal
	SoldAt     time.Time
}

// Insert writes one ticket row.  The buyer name is trimmed and must not be
// empty.  Uniqueness violations map to ErrConflict and a vanished event to
// ErrNotFound.
func (r *TicketRepo) Insert(ctx context.Context, rec TicketRecord) (model.Ticket, error) {
	name := strings.TrimSpace(rec.BuyerName)
	if name == "" {
		return model.Ticket{}, errors.New("insert ticket: buyer name is empty")
	}
	soldAt := rec.SoldAt.UTC().Truncate(time.Second)
	id, err := r.db.InsertID(ctx,
		`INSERT INTO tickets (event_id, buyer_name, buyer_email, price, sold_at) VALUES (?, ?, ?, ?, ?)`,
		rec.EventID, name, rec.BuyerEmail, rec.Price, soldAt)
	if err != nil {
		switch {
		case r.db.Dialect.IsUniqueViolation(err):
			return model.Ticket{}, ErrConflict
		case r.db.Dialect.IsForeignKeyViolation(err):
			return model.Ticket{}, ErrNotFound
		}
		return model.Ticket{}, fmt.Errorf("insert ticket: %w", err)
	}
	return model.Ticket{
		ID:         id,
		EventID:    rec.EventID,
		BuyerName:  name,
		BuyerEmail: rec.BuyerEmail,
		Price:      rec.Price,
		SoldAt:     soldAt,
	}, nil
}

// Delete removes a ticket row.  It reports false when no row matched, which
// tells a refund that a concurrent refund already won.
func (r *TicketRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete ticket %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EventIDOf returns the event a ticket belongs to.
func (r *TicketRepo) EventIDOf(ctx context.Context, id int64) (int64, error) {
	var eventID int64
	err := r.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT event_id FROM tickets WHERE id = ?`, id).Scan(&eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return eventID, err
}

const ticketSelect = `SELECT t.id, t.event_id, t.buyer_name, t.buyer_email, t.price, t.sold_at,
       a.id IS NOT NULL AS checked
FROM tickets t
LEFT JOIN attendance a ON a.ticket_id = t.id`

// GetByID loads a ticket with its derived checked flag.
func (r *TicketRepo) GetByID(ctx context.Context, id int64) (model.Ticket, error) {
	row := r.db.Conn(ctx).QueryRowContext(ctx, ticketSelect+` WHERE t.id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ticket{}, ErrNotFound
	}
	return t, err
}

// List returns tickets matching f, most recent sale first.
func (r *TicketRepo) List(ctx context.Context, f model.TicketFilter) ([]model.Ticket, error) {
	var (
		where []string
		args  []any
	)
	if f.EventID != nil {
		where = append(where, `t.event_id = ?`)
		args = append(args, *f.EventID)
	}
	if b := strings.TrimSpace(f.Buyer); b != "" {
		pattern := "%" + escapeLike(strings.ToLower(b)) + "%"
		where = append(where, `(LOWER(t.buyer_name) LIKE ? OR LOWER(COALESCE(t.buyer_email, '')) LIKE ?)`)
		args = append(args, pattern, pattern)
	}
	if f.DateFrom != nil {
		where = append(where, `t.sold_at >= ?`)
		args = append(args, f.DateFrom.UTC())
	}
	if f.DateTo != nil {
		where = append(where, `t.sold_at < ?`)
		args = append(args, f.DateTo.UTC())
	}
	switch f.Checked {
	case "yes":
		where = append(where, `a.id IS NOT NULL`)
	case "no":
		where = append(where, `a.id IS NULL`)
	}

	query := ticketSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY t.sold_at DESC, t.id DESC`

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()
	tickets := []model.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// Summary totals tickets, revenue and check-ins, optionally for one event.
func (r *TicketRepo) Summary(ctx context.Context, eventID *int64) (model.TicketSummary, error) {
	query := `SELECT COUNT(t.id), COALESCE(SUM(t.price), 0), COUNT(a.id)
	          FROM tickets t
	          LEFT JOIN attendance a ON a.ticket_id = t.id`
	var args []any
	if eventID != nil {
		query += ` WHERE t.event_id = ?`
		args = append(args, *eventID)
	}
	var s model.TicketSummary
	err := r.db.Conn(ctx).QueryRowContext(ctx, query, args...).
		Scan(&s.TotalTickets, &s.TotalAmount, &s.TotalCheckedIn)
	return s, err
}

func scanTicket(s rowScanner) (model.Ticket, error) {
	var (
		t     model.Ticket
		email sql.NullString
	)
	if err := s.Scan(&t.ID, &t.EventID, &t.BuyerName, &email, &t.Price, &t.SoldAt, &t.Checked); err != nil {
		return model.Ticket{}, err
	}
	t.BuyerEmail = nullString(email)
	return t, nil
}

// escapeLike neutralises LIKE wildcards in user input.  Backslash is the
// default escape character in both MySQL and PostgreSQL.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
