package schedule

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/localtime"
	"simrig-booking-backend/internal/model"
)

// SlotStatus is the state of one schedule slot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotPassed    SlotStatus = "passed"
)

// BookingView is what a schedule reveals about the booking holding a slot.
type BookingView struct {
	ID           string              `json:"id"`
	CustomerName string              `json:"customer_name"`
	Phone        string              `json:"phone"`
	Status       model.BookingStatus `json:"status"`
	LocalStart   string              `json:"local_start"`
	LocalEnd     string              `json:"local_end"`
}

// TimeSlot is one slot of a business day. Local fields are rendered in the
// schedule's timezone.
type TimeSlot struct {
	Start      time.Time    `json:"start"`
	End        time.Time    `json:"end"`
	LocalDate  string       `json:"local_date"`
	LocalStart string       `json:"local_start"`
	LocalEnd   string       `json:"local_end"`
	Status     SlotStatus   `json:"status"`
	Booking    *BookingView `json:"booking,omitempty"`
}

// DaySchedule is a machine's business day cut into slots. It is rebuilt on
// every request.
type DaySchedule struct {
	MachineID   string     `json:"machine_id"`
	Date        string     `json:"date"`
	Timezone    string     `json:"timezone"`
	SlotMinutes int        `json:"slot_minutes"`
	Slots       []TimeSlot `json:"slots"`
	Total       int        `json:"total"`
	Available   int        `json:"available"`
	Booked      int        `json:"booked"`
	Passed      int        `json:"passed"`
}

// DayQuery selects a business date. Timezone only changes how slots are
// rendered; the slots always cover the business hours.
type DayQuery struct {
	MachineID        string
	Date             string
	Timezone         string
	ReferenceTime    *time.Time
	ViewerCustomerID string
}

// DaySchedule tags every slot of the day as passed, booked or available, in
// that order of precedence.
func (e *Engine) DaySchedule(ctx context.Context, q DayQuery) (*DaySchedule, error) {
	if q.MachineID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "machine id is required")
	}
	loc, err := e.ResolveZone(q.Timezone)
	if err != nil {
		return nil, err
	}
	hours, err := e.businessDay(q.Date)
	if err != nil {
		return nil, err
	}
	if _, err := e.repo.GetMachine(ctx, q.MachineID); err != nil {
		return nil, err
	}

	bookings, err := e.repo.ListBookingsByMachine(ctx, q.MachineID, hours.Start, hours.End)
	if err != nil {
		return nil, err
	}
	return e.buildDay(q.MachineID, q.Date, loc, bookings, q.ReferenceTime, q.ViewerCustomerID)
}

func (e *Engine) buildDay(machineID, date string, loc *time.Location, bookings []model.Booking, ref *time.Time, viewer string) (*DaySchedule, error) {
	slots, err := e.slots(date)
	if err != nil {
		return nil, err
	}

	day := &DaySchedule{
		MachineID:   machineID,
		Date:        date,
		Timezone:    loc.String(),
		SlotMinutes: e.slotMinutes,
		Slots:       make([]TimeSlot, 0, len(slots)),
		Total:       len(slots),
	}
	for _, iv := range slots {
		localDate, localStart := localtime.LocalParts(iv.Start, loc)
		_, localEnd := localtime.LocalParts(iv.End, loc)
		if localEnd == "00:00" && !sameLocalDate(iv.Start, iv.End, loc) {
			localEnd = "24:00"
		}
		slot := TimeSlot{
			Start:      iv.Start,
			End:        iv.End,
			LocalDate:  localDate,
			LocalStart: localStart,
			LocalEnd:   localEnd,
			Status:     SlotAvailable,
		}

		switch {
		case ref != nil && iv.Start.Before(*ref):
			slot.Status = SlotPassed
			day.Passed++
		default:
			if b := firstOverlapping(iv, bookings); b != nil {
				slot.Status = SlotBooked
				slot.Booking = viewOf(b, viewer)
				day.Booked++
			} else {
				day.Available++
			}
		}
		day.Slots = append(day.Slots, slot)
	}
	return day, nil
}

func sameLocalDate(a, b time.Time, loc *time.Location) bool {
	da, _ := localtime.LocalParts(a, loc)
	db, _ := localtime.LocalParts(b, loc)
	return da == db
}

func firstOverlapping(iv Interval, bookings []model.Booking) *model.Booking {
	for i := range bookings {
		if bookings[i].Active() && iv.Overlaps(BookingInterval(&bookings[i])) {
			return &bookings[i]
		}
	}
	return nil
}

// viewOf reveals the full name and phone only to the booking's own customer.
func viewOf(b *model.Booking, viewer string) *BookingView {
	v := &BookingView{
		ID:           b.ID,
		CustomerName: b.CustomerName,
		Phone:        b.Phone,
		Status:       b.Status,
		LocalStart:   b.LocalStart,
		LocalEnd:     b.LocalEnd,
	}
	if viewer == "" || b.CustomerID == nil || *b.CustomerID != viewer {
		v.CustomerName = MaskName(b.CustomerName)
		v.Phone = MaskPhone(b.Phone)
	}
	return v
}

// MaskName keeps the first letter of a name.
func MaskName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(name)
	return string(r) + "***"
}

// MaskPhone keeps the last four digits of a phone number.
func MaskPhone(phone string) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return "***" + string(digits[len(digits)-4:])
}
