package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/localtime"
	"simrig-booking-backend/internal/model"
)

// DateAvailability counts the slots of one business date.
type DateAvailability struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Available int    `json:"available"`
}

// DatesQuery selects the business dates to count.
type DatesQuery struct {
	From          string // first local date, defaults to today
	Days          int    // capped at the booking horizon
	MachineID     string // empty sums over every active machine
	ReferenceTime *time.Time
}

// AvailableDates counts the free slots of each date in [From, From+Days).
func (e *Engine) AvailableDates(ctx context.Context, q DatesQuery) ([]DateAvailability, error) {
	if q.From == "" {
		q.From = localtime.BusinessDate(e.now(), e.zone)
	}
	if _, err := localtime.ParseDate(q.From); err != nil {
		return nil, err
	}
	if q.Days <= 0 || (e.horizonDays > 0 && q.Days > e.horizonDays) {
		q.Days = e.horizonDays
	}
	if q.Days <= 0 {
		q.Days = 1
	}

	var machines []model.Machine
	if q.MachineID != "" {
		m, err := e.repo.GetMachine(ctx, q.MachineID)
		if err != nil {
			return nil, err
		}
		machines = []model.Machine{*m}
	} else {
		all, err := e.repo.ListMachines(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range all {
			if m.IsActive {
				machines = append(machines, m)
			}
		}
	}

	first, err := e.businessDay(q.From)
	if err != nil {
		return nil, err
	}
	lastDate, _ := localtime.AddDays(q.From, q.Days-1)
	last, err := e.businessDay(lastDate)
	if err != nil {
		return nil, err
	}

	bookings, err := e.repo.ListBookingsBetween(ctx, first.Start, last.End)
	if err != nil {
		return nil, err
	}
	byMachine := make(map[string][]model.Booking, len(machines))
	for _, b := range bookings {
		byMachine[b.MachineID] = append(byMachine[b.MachineID], b)
	}

	out := make([]DateAvailability, 0, q.Days)
	for i := 0; i < q.Days; i++ {
		date, _ := localtime.AddDays(q.From, i)
		entry := DateAvailability{Date: date}
		for _, m := range machines {
			day, err := e.buildDay(m.ID, date, e.zone, byMachine[m.ID], q.ReferenceTime, "")
			if err != nil {
				return nil, err
			}
			entry.Total += day.Total
			entry.Available += day.Available
		}
		out = append(out, entry)
	}

	e.log.Debug("computed available dates",
		zap.String("from", q.From),
		zap.Int("days", q.Days),
		zap.Int("machines", len(machines)),
	)
	return out, nil
}

// FreeStartsQuery asks for the starts on the business date Date at which a
// booking of DurationMinutes fits. Timezone only changes how starts are
// rendered.
type FreeStartsQuery struct {
	MachineID       string
	Date            string
	DurationMinutes int
	Timezone        string
	ReferenceTime   *time.Time
}

// FreeStart is a bookable start. Date and StartTime are local to the
// requested timezone and can be passed back to booking creation as is.
type FreeStart struct {
	Start     time.Time `json:"start"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
}

// FreeStartTimes lists the slot starts of Date at which a booking of
// DurationMinutes fits. The booking may run past closing time.
func (e *Engine) FreeStartTimes(ctx context.Context, q FreeStartsQuery) ([]FreeStart, error) {
	if q.MachineID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "machine id is required")
	}
	if q.DurationMinutes <= 0 || q.DurationMinutes > localtime.MinutesPerDay {
		return nil, apperr.Newf(apperr.KindInvalidInput, "duration must be between 1 and %d minutes", localtime.MinutesPerDay)
	}
	loc, err := e.ResolveZone(q.Timezone)
	if err != nil {
		return nil, err
	}
	slots, err := e.slots(q.Date)
	if err != nil {
		return nil, err
	}
	if _, err := e.repo.GetMachine(ctx, q.MachineID); err != nil {
		return nil, err
	}

	duration := time.Duration(q.DurationMinutes) * time.Minute
	window := Interval{Start: slots[0].Start, End: slots[len(slots)-1].Start.Add(duration)}
	bookings, err := e.repo.ListBookingsByMachine(ctx, q.MachineID, window.Start, window.End)
	if err != nil {
		return nil, err
	}

	starts := make([]FreeStart, 0, len(slots))
	for _, s := range slots {
		if q.ReferenceTime != nil && s.Start.Before(*q.ReferenceTime) {
			continue
		}
		candidate := &model.Booking{MachineID: q.MachineID, StartAt: s.Start, EndAt: s.Start.Add(duration)}
		if FindConflict(candidate, bookings) == nil {
			date, clock := localtime.LocalParts(s.Start, loc)
			starts = append(starts, FreeStart{Start: s.Start, Date: date, StartTime: clock})
		}
	}
	return starts, nil
}
