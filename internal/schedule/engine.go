package schedule

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"simrig-booking-backend/config"
	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/localtime"
	"simrig-booking-backend/internal/model"
	"simrig-booking-backend/internal/store"
)

// Repository is the part of the store the engine reads from.
type Repository interface {
	store.MachineStore
	store.BookingStore
}

// Engine answers availability questions for the venue's business day. It
// never writes.
type Engine struct {
	repo        Repository
	zone        *time.Location
	open        int // minutes after local midnight
	close       int
	slotMinutes int
	horizonDays int
	now         localtime.Clock
	log         *zap.Logger
}

// NewEngine validates the business hours and builds an Engine.
func NewEngine(repo Repository, cfg config.BusinessConfig, now localtime.Clock, log *zap.Logger) (*Engine, error) {
	zone, err := localtime.LoadZone(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("business timezone: %w", err)
	}
	open, err := localtime.ParseClock(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("business open: %w", err)
	}
	closing, err := localtime.ParseBound(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("business close: %w", err)
	}
	if closing <= open {
		return nil, fmt.Errorf("business close %s must be after open %s", cfg.Close, cfg.Open)
	}
	if cfg.SlotMinutes <= 0 {
		return nil, fmt.Errorf("slot_minutes must be positive, got %d", cfg.SlotMinutes)
	}
	if now == nil {
		now = localtime.SystemClock
	}

	return &Engine{
		repo:        repo,
		zone:        zone,
		open:        open,
		close:       closing,
		slotMinutes: cfg.SlotMinutes,
		horizonDays: cfg.BookingHorizonDays,
		now:         now,
		log:         log,
	}, nil
}

// Zone is the business timezone.
func (e *Engine) Zone() *time.Location { return e.zone }

// Now is the engine's clock.
func (e *Engine) Now() time.Time { return e.now() }

// SlotMinutes is the slot granularity.
func (e *Engine) SlotMinutes() int { return e.slotMinutes }

// HorizonDays is how many days ahead bookings are accepted. Zero means no limit.
func (e *Engine) HorizonDays() int { return e.horizonDays }

// ResolveZone returns the named zone, or the business zone for "".
func (e *Engine) ResolveZone(name string) (*time.Location, error) {
	if name == "" {
		return e.zone, nil
	}
	return localtime.LoadZone(name)
}

// WithinHours reports whether the local wall-clock time lies in [open, close).
func (e *Engine) WithinHours(clock string) bool {
	minutes, err := localtime.ParseClock(clock)
	if err != nil {
		return false
	}
	return minutes >= e.open && minutes < e.close
}

// SlotQuery asks whether [StartTime, StartTime+DurationMinutes) on Date can be
// booked on MachineID.
type SlotQuery struct {
	MachineID       string
	Date            string
	StartTime       string
	DurationMinutes int
	Timezone        string
	ReferenceTime   *time.Time
}

// IsSlotAvailable is false when the candidate overlaps an active booking or,
// with a ReferenceTime, starts strictly before it. Lookup failures are
// returned as errors, never as false.
func (e *Engine) IsSlotAvailable(ctx context.Context, q SlotQuery) (bool, error) {
	if q.MachineID == "" {
		return false, apperr.New(apperr.KindInvalidInput, "machine id is required")
	}
	if q.DurationMinutes <= 0 || q.DurationMinutes > localtime.MinutesPerDay {
		return false, apperr.Newf(apperr.KindInvalidInput, "duration must be between 1 and %d minutes", localtime.MinutesPerDay)
	}
	loc, err := e.ResolveZone(q.Timezone)
	if err != nil {
		return false, err
	}
	start, err := localtime.ToInstant(q.Date, q.StartTime, loc)
	if err != nil {
		return false, err
	}
	end, _ := localtime.EndInstant(start, q.DurationMinutes, loc)

	if _, err := e.repo.GetMachine(ctx, q.MachineID); err != nil {
		return false, err
	}

	if q.ReferenceTime != nil && start.Before(*q.ReferenceTime) {
		return false, nil
	}

	existing, err := e.repo.ListBookingsByMachine(ctx, q.MachineID, start, end)
	if err != nil {
		return false, err
	}
	candidate := &model.Booking{MachineID: q.MachineID, StartAt: start, EndAt: end}
	return FindConflict(candidate, existing) == nil, nil
}

// businessDay returns the instants of open and close on the business date.
// Hours are wall-clock times in the business zone.
func (e *Engine) businessDay(date string) (Interval, error) {
	start, err := localtime.AtMinutes(date, e.open, e.zone)
	if err != nil {
		return Interval{}, err
	}
	end, err := localtime.AtMinutes(date, e.close, e.zone)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: start, End: end}, nil
}

// slots partitions the business hours of date into contiguous slots. The last
// slot is shortened when the hours are not a multiple of the slot size.
func (e *Engine) slots(date string) ([]Interval, error) {
	var out []Interval
	for m := e.open; m < e.close; m += e.slotMinutes {
		endMinutes := m + e.slotMinutes
		if endMinutes > e.close {
			endMinutes = e.close
		}
		start, err := localtime.AtMinutes(date, m, e.zone)
		if err != nil {
			return nil, err
		}
		end, _ := localtime.AtMinutes(date, endMinutes, e.zone)
		out = append(out, Interval{Start: start, End: end})
	}
	return out, nil
}
