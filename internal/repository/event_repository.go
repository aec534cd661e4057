package repository // repository for events and their ticket inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// EventRepo owns the events table and is the only writer of
// events.available_tickets.  Inventory changes go exclusively through
// ReserveUnit and ReleaseUnit, each a single conditional UPDATE, so two
// concurrent sales can never both take the last ticket.
type EventRepo struct {
	db *database.DB
}

// NewEventRepo constructs an EventRepo given a DB handle.
func NewEventRepo(db *database.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, name, description, event_date, category, price, available_tickets, creator_id, created_at, updated_at`

// ReserveUnit takes one ticket from the event's inventory and returns the
// count left after this decrement.  It fails with ErrNoCapacity, without
// side effects, when nothing is left or the event does not exist.
//
// On MySQL the new value is smuggled out through LAST_INSERT_ID(expr), which
// is connection-scoped and reported in the OK packet of the same statement,
// so the count belongs to this decrement and not to a concurrent one.
func (r *EventRepo) ReserveUnit(ctx context.Context, eventID int64) (int, error) {
	q := r.db.Conn(ctx)
	if r.db.Dialect == database.Postgres {
		var remaining int
		err := q.QueryRowContext(ctx,
			`UPDATE events SET available_tickets = available_tickets - 1
			 WHERE id = ? AND available_tickets > 0
			 RETURNING available_tickets`, eventID,
		).Scan(&remaining)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNoCapacity
		}
		if err != nil {
			return 0, fmt.Errorf("reserve unit for event %d: %w", eventID, err)
		}
		return remaining, nil
	}
	res, err := q.ExecContext(ctx,
		`UPDATE events SET available_tickets = LAST_INSERT_ID(available_tickets - 1)
		 WHERE id = ? AND available_tickets > 0`, eventID)
	if err != nil {
		return 0, fmt.Errorf("reserve unit for event %d: %w", eventID, err)
	}
	return remainingFromResult(res, ErrNoCapacity)
}

// ReleaseUnit returns one ticket to the event's inventory and reports the
// new count.  It is unconditional; callers invoke it exactly once per
// compensation or refund.  A missing event yields ErrNotFound.
func (r *EventRepo) ReleaseUnit(ctx context.Context, eventID int64) (int, error) {
	q := r.db.Conn(ctx)
	if r.db.Dialect == database.Postgres {
		var remaining int
		err := q.QueryRowContext(ctx,
			`UPDATE events SET available_tickets = available_tickets + 1
			 WHERE id = ?
			 RETURNING available_tickets`, eventID,
		).Scan(&remaining)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("release unit for event %d: %w", eventID, err)
		}
		return remaining, nil
	}
	res, err := q.ExecContext(ctx,
		`UPDATE events SET available_tickets = LAST_INSERT_ID(available_tickets + 1)
		 WHERE id = ?`, eventID)
	if err != nil {
		return 0, fmt.Errorf("release unit for event %d: %w", eventID, err)
	}
	return remainingFromResult(res, ErrNotFound)
}

func remainingFromResult(res sql.Result, none error) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, none
	}
	remaining, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(remaining), nil
}

// Price returns the event's current default ticket price.
func (r *EventRepo) Price(ctx context.Context, eventID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT price FROM events WHERE id = ?`, eventID).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	return price, err
}

// Available returns the event's remaining inventory.
func (r *EventRepo) Available(ctx context.Context, eventID int64) (int, error) {
	var n int
	err := r.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT available_tickets FROM events WHERE id = ?`, eventID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return n, err
}

// Create inserts a new event and fills in the generated ID and timestamps.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	id, err := r.db.InsertID(ctx,
		`INSERT INTO events (name, description, event_date, category, price, available_tickets, creator_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Name, e.Description, e.EventDate.UTC(), e.Category, e.Price, e.AvailableTickets, e.CreatorID)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	created, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	*e = created
	return nil
}

// GetByID loads a single event.  It returns ErrNotFound if absent.
func (r *EventRepo) GetByID(ctx context.Context, id int64) (model.Event, error) {
	row := r.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	return e, err
}

// List returns events ordered by date, newest first, optionally restricted
// to one creator.
func (r *EventRepo) List(ctx context.Context, creatorID *int64) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if creatorID != nil {
		query += ` WHERE creator_id = ?`
		args = append(args, *creatorID)
	}
	query += ` ORDER BY event_date DESC, id DESC`

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Update changes the display fields and default price of an event owned by
// ownerID.  available_tickets is deliberately not part of the statement.
func (r *EventRepo) Update(ctx context.Context, e model.Event, ownerID int64) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		if err := r.checkOwner(ctx, e.ID, ownerID); err != nil {
			return err
		}
		_, err := r.db.Conn(ctx).ExecContext(ctx,
			`UPDATE events SET name = ?, description = ?, event_date = ?, category = ?, price = ?, updated_at = ?
			 WHERE id = ?`,
			e.Name, e.Description, e.EventDate.UTC(), e.Category, e.Price, time.Now().UTC(), e.ID)
		if err != nil {
			return fmt.Errorf("update event %d: %w", e.ID, err)
		}
		return nil
	})
}

// Delete removes an event owned by ownerID.  Events that still have tickets
// cannot be deleted; refund them first.
func (r *EventRepo) Delete(ctx context.Context, id, ownerID int64) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		if err := r.checkOwner(ctx, id, ownerID); err != nil {
			return err
		}
		var sold int64
		if err := r.db.Conn(ctx).QueryRowContext(ctx,
			`SELECT COUNT(*) FROM tickets WHERE event_id = ?`, id).Scan(&sold); err != nil {
			return err
		}
		if sold > 0 {
			return ErrConflict
		}
		if _, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
			if r.db.Dialect.IsForeignKeyViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("delete event %d: %w", id, err)
		}
		return nil
	})
}

func (r *EventRepo) checkOwner(ctx context.Context, id, ownerID int64) error {
	var creator sql.NullInt64
	err := r.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT creator_id FROM events WHERE id = ?`, id).Scan(&creator)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !creator.Valid || creator.Int64 != ownerID {
		return ErrForbidden
	}
	return nil
}

// Summary aggregates inventory over all events or one creator's events.
func (r *EventRepo) Summary(ctx context.Context, creatorID *int64) (model.EventSummary, error) {
	query := `SELECT COUNT(*),
	                 COALESCE(SUM(available_tickets), 0),
	                 COALESCE(SUM(CASE WHEN available_tickets = 0 THEN 1 ELSE 0 END), 0)
	          FROM events`
	var args []any
	if creatorID != nil {
		query += ` WHERE creator_id = ?`
		args = append(args, *creatorID)
	}
	var s model.EventSummary
	err := r.db.Conn(ctx).QueryRowContext(ctx, query, args...).
		Scan(&s.TotalEvents, &s.TotalAvailableTickets, &s.SoldOut)
	return s, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner) (model.Event, error) {
	var (
		e           model.Event
		description sql.NullString
		category    sql.NullString
		creatorID   sql.NullInt64
	)
	if err := s.Scan(&e.ID, &e.Name, &description, &e.EventDate, &category, &e.Price,
		&e.AvailableTickets, &creatorID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return model.Event{}, err
	}
	e.Description = nullString(description)
	e.Category = nullString(category)
	if creatorID.Valid {
		id := creatorID.Int64
		e.CreatorID = &id
	}
	return e, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
