package store

import (
	"errors"
	"time"
)

// Sentinel errors returned by the store layer. Handlers translate these
// to HTTP statuses; everything else is a storage failure.
var (
	// ErrNotFound indicates the requested ticket or part id is unknown.
	ErrNotFound = errors.New("record not found")

	// ErrPartUnavailable indicates the part instance is already sold on
	// another ticket.
	ErrPartUnavailable = errors.New("part is not available")
)

// TicketFilter narrows a ticket listing. The zero value lists everything.
type TicketFilter struct {
	// Since restricts the result to tickets updated at or after the
	// given instant (the sync agent's delta cursor). Nil means full set.
	Since *time.Time

	// Status restricts the result to a single workshop state.
	Status string
}
