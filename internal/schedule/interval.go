package schedule

import (
	"time"

	"simrig-booking-backend/internal/model"
)

// Interval is the half-open instant range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether a and b share at least one instant. Touching
// intervals such as 14:00-15:00 and 15:00-15:30 do not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Contains reports whether t lies in [Start, End).
func (a Interval) Contains(t time.Time) bool {
	return !t.Before(a.Start) && t.Before(a.End)
}

// BookingInterval returns the range a booking holds.
func BookingInterval(b *model.Booking) Interval {
	return Interval{Start: b.StartAt, End: b.EndAt}
}

// FindConflict returns the first active booking in existing that overlaps
// candidate, skipping the candidate itself. It is also run by the store inside
// the booking write transaction.
func FindConflict(candidate *model.Booking, existing []model.Booking) *model.Booking {
	want := BookingInterval(candidate)
	for i := range existing {
		b := &existing[i]
		if !b.Active() || (candidate.ID != "" && b.ID == candidate.ID) || b.MachineID != candidate.MachineID {
			continue
		}
		if want.Overlaps(BookingInterval(b)) {
			return b
		}
	}
	return nil
}
