package store

import (
	"errors"

	"simrig-booking-backend/internal/model"
)

// ErrNoChange may be returned by a mutation callback to leave the row as it is.
// The store then returns the current row without writing.
var ErrNoChange = errors.New("no change")

// ConflictFunc returns the first booking in existing that collides with
// candidate, or nil when the candidate fits.
type ConflictFunc func(candidate *model.Booking, existing []model.Booking) *model.Booking

// PositionFunc picks the line position for a new queue entry given the entries
// already in line for the same machine.
type PositionFunc func(inLine []model.QueueEntry) int

// QueueFilter narrows ListQueueEntries. Zero fields do not filter.
type QueueFilter struct {
	BusinessDate string
	MachineID    *string
	Statuses     []model.QueueStatus
	CustomerID   string
	Phone        string
}
