// Package repository defines the persistence layer and the error values
// shared by its stores.  Higher layers such as the sale orchestrators and
// the HTTP handlers use errors.Is against these sentinels to pick an
// outcome; driver errors never leak past this package unclassified.
package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced event, ticket, attendance
// record or user does not exist.  Handlers translate it into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrNoCapacity is returned by ReserveUnit when the event has no tickets
// left (or does not exist).  Handlers translate it into HTTP 409.
var ErrNoCapacity = errors.New("no tickets available")

// ErrConflict signals a uniqueness violation, or an operation that cannot
// proceed because of dependent rows (deleting an event that has tickets).
// Handlers translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrAlreadyCheckedIn is the attendance flavour of ErrConflict.
var ErrAlreadyCheckedIn = fmt.Errorf("ticket already checked in: %w", ErrConflict)

// ErrUsernameExists is the user flavour of ErrConflict.
var ErrUsernameExists = fmt.Errorf("username already exists: %w", ErrConflict)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own.  Handlers translate it into HTTP 403.
var ErrForbidden = errors.New("forbidden")
