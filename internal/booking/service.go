package booking

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/localtime"
	"simrig-booking-backend/internal/model"
	"simrig-booking-backend/internal/schedule"
	"simrig-booking-backend/internal/session"
	"simrig-booking-backend/internal/store"
)

// Repository is the part of the store bookings work on.
type Repository interface {
	store.BookingStore
	store.MachineStore
}

type Service struct {
	repo   Repository
	engine *schedule.Engine
	logger *zap.Logger
}

func NewService(repo Repository, engine *schedule.Engine, logger *zap.Logger) *Service {
	return &Service{repo: repo, engine: engine, logger: logger}
}

// CreateRequest books a machine. Date and StartTime are local to Timezone,
// which defaults to the business zone.
type CreateRequest struct {
	MachineID       string `json:"machine_id"`
	CustomerID      string `json:"customer_id"`
	CustomerName    string `json:"customer_name"`
	Phone           string `json:"phone"`
	Date            string `json:"date"`       // YYYY-MM-DD in Timezone
	StartTime       string `json:"start_time"` // HH:mm in Timezone
	DurationMinutes int    `json:"duration_minutes"`
	Timezone        string `json:"timezone"` // empty for the venue's zone
	Notes           string `json:"notes"`
}

func (r *CreateRequest) validate() error {
	switch {
	case strings.TrimSpace(r.MachineID) == "":
		return apperr.New(apperr.KindInvalidInput, "machine id is required")
	case strings.TrimSpace(r.CustomerName) == "":
		return apperr.New(apperr.KindInvalidInput, "customer name is required")
	case r.CustomerID == "" && strings.TrimSpace(r.Phone) == "":
		return apperr.New(apperr.KindInvalidInput, "customer id or phone is required")
	}
	return validDuration(r.DurationMinutes)
}

func validDuration(minutes int) error {
	if minutes <= 0 || minutes > localtime.MinutesPerDay {
		return apperr.Newf(apperr.KindInvalidInput, "duration must be between 1 and %d minutes", localtime.MinutesPerDay)
	}
	return nil
}

// Create books [StartTime, StartTime+DurationMinutes) on the machine. The
// store re-checks overlap while holding the machine row, so two racing
// requests for the same time cannot both succeed.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Booking, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	b := &model.Booking{
		MachineID:    req.MachineID,
		CustomerName: strings.TrimSpace(req.CustomerName),
		Phone:        strings.TrimSpace(req.Phone),
		Status:       model.BookingPending,
		Notes:        req.Notes,
	}
	if req.CustomerID != "" {
		b.CustomerID = &req.CustomerID
	}
	if err := s.place(b, req.Date, req.StartTime, req.DurationMinutes, req.Timezone); err != nil {
		return nil, err
	}

	if err := s.repo.CreateBooking(ctx, b, schedule.FindConflict); err != nil {
		return nil, err
	}
	s.logger.Info("Booking created",
		zap.String("booking_id", b.ID),
		zap.String("machine_id", b.MachineID),
		zap.Time("start_at", b.StartAt),
		zap.Int("duration_minutes", b.DurationMinutes),
	)
	return b, nil
}

// place sets the booking's instants and local fields. The start must be in
// the future, inside business hours and inside the booking horizon.
func (s *Service) place(b *model.Booking, date, clock string, minutes int, tz string) error {
	loc, err := s.engine.ResolveZone(tz)
	if err != nil {
		return err
	}
	start, err := localtime.ToInstant(date, clock, loc)
	if err != nil {
		return err
	}

	now := s.engine.Now()
	if start.Before(now) {
		return apperr.Newf(apperr.KindInvalidInput, "start %s %s is in the past", date, clock)
	}
	bizDate, bizClock := localtime.LocalParts(start, s.engine.Zone())
	if !s.engine.WithinHours(bizClock) {
		return apperr.Newf(apperr.KindInvalidInput, "start %s is outside business hours", bizClock)
	}
	if h := s.engine.HorizonDays(); h > 0 {
		last, _ := localtime.AddDays(localtime.BusinessDate(now, s.engine.Zone()), h-1)
		if bizDate > last {
			return apperr.Newf(apperr.KindInvalidInput, "bookings are accepted up to %s", last)
		}
	}

	end, cross := localtime.EndInstant(start, minutes, loc)
	localDate, localStart := localtime.LocalParts(start, loc)
	_, localEnd := localtime.LocalParts(end, loc)

	b.StartAt = start
	b.EndAt = end
	b.LocalDate = localDate
	b.LocalStart = localStart
	b.LocalEnd = localEnd
	b.DurationMinutes = minutes
	b.Timezone = loc.String()
	b.IsCrossMidnight = cross
	return nil
}

// UpdateRequest reschedules a booking or edits its notes. Empty fields keep
// their current value.
type UpdateRequest struct {
	Date            string  `json:"date"`
	StartTime       string  `json:"start_time"`
	DurationMinutes int     `json:"duration_minutes"`
	Notes           *string `json:"notes"`
}

func (r *UpdateRequest) reschedules() bool {
	return r.Date != "" || r.StartTime != "" || r.DurationMinutes != 0
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest, r model.Requester) (*model.Booking, error) {
	if req.Date != "" {
		if _, err := localtime.ParseDate(req.Date); err != nil {
			return nil, err
		}
	}
	if req.StartTime != "" {
		if _, err := localtime.ParseClock(req.StartTime); err != nil {
			return nil, err
		}
	}
	if req.DurationMinutes != 0 {
		if err := validDuration(req.DurationMinutes); err != nil {
			return nil, err
		}
	}

	b, err := s.repo.UpdateBooking(ctx, id, func(b *model.Booking) error {
		if !r.Owns(b.CustomerID, b.Phone) {
			return apperr.New(apperr.KindUnauthorized, "booking belongs to another customer")
		}
		if b.Status != model.BookingPending && b.Status != model.BookingConfirmed {
			return apperr.Newf(apperr.KindInvalidTransition, "cannot change a %s booking", b.Status)
		}
		if req.reschedules() {
			date, clock, minutes := b.LocalDate, b.LocalStart, b.DurationMinutes
			if req.Date != "" {
				date = req.Date
			}
			if req.StartTime != "" {
				clock = req.StartTime
			}
			if req.DurationMinutes != 0 {
				minutes = req.DurationMinutes
			}
			if err := s.place(b, date, clock, minutes, b.Timezone); err != nil {
				return err
			}
		}
		if req.Notes != nil {
			b.Notes = *req.Notes
		}
		return nil
	}, schedule.FindConflict)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking updated",
		zap.String("booking_id", b.ID),
		zap.Time("start_at", b.StartAt),
		zap.Int("duration_minutes", b.DurationMinutes),
	)
	return b, nil
}

// Confirm moves a pending booking to confirmed.
func (s *Service) Confirm(ctx context.Context, id string) (*model.Booking, error) {
	b, err := s.repo.UpdateBooking(ctx, id, func(b *model.Booking) error {
		switch b.Status {
		case model.BookingConfirmed:
			return store.ErrNoChange
		case model.BookingPending:
			b.Status = model.BookingConfirmed
			return nil
		default:
			return apperr.Newf(apperr.KindInvalidTransition, "cannot confirm a %s booking", b.Status)
		}
	}, schedule.FindConflict)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Booking confirmed", zap.String("booking_id", b.ID))
	return b, nil
}

// Cancel frees the booking's time. Cancelling a cancelled booking returns it
// unchanged.
func (s *Service) Cancel(ctx context.Context, id string, r model.Requester) (*model.Booking, error) {
	b, err := s.repo.UpdateBooking(ctx, id, func(b *model.Booking) error {
		if !r.Owns(b.CustomerID, b.Phone) {
			return apperr.New(apperr.KindUnauthorized, "booking belongs to another customer")
		}
		switch b.Status {
		case model.BookingCancelled:
			return store.ErrNoChange
		case model.BookingPending, model.BookingConfirmed:
			b.Status = model.BookingCancelled
			return nil
		default:
			return apperr.Newf(apperr.KindInvalidTransition, "cannot cancel a %s booking", b.Status)
		}
	}, schedule.FindConflict)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Booking cancelled",
		zap.String("booking_id", b.ID),
		zap.Bool("operator", r.Operator),
	)
	return b, nil
}

// CheckIn opens the session of a pending or confirmed booking on its machine.
// The session is expected to last as long as the booking.
func (s *Service) CheckIn(ctx context.Context, id string) (*model.Session, error) {
	sess := session.NewSession("", s.engine.Now(), 0)
	sess, err := s.repo.CheckInBooking(ctx, id, func(b *model.Booking) error {
		if b.Status != model.BookingPending && b.Status != model.BookingConfirmed {
			return apperr.Newf(apperr.KindInvalidTransition, "cannot check in a %s booking", b.Status)
		}
		b.Status = model.BookingConfirmed
		minutes := b.DurationMinutes
		end := sess.StartedAt.Add(time.Duration(minutes) * time.Minute)
		sess.EstimatedMinutes = &minutes
		sess.EstimatedEndAt = &end
		sess.CustomerName = b.CustomerName
		sess.Notes = b.Notes
		return nil
	}, sess)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Booking checked in",
		zap.String("booking_id", id),
		zap.String("session_id", sess.ID),
		zap.String("machine_id", sess.MachineID),
	)
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// ByCustomerOrPhone lists a customer's bookings, newest first.
func (s *Service) ByCustomerOrPhone(ctx context.Context, customerID, phone string) ([]model.Booking, error) {
	return s.repo.ListBookingsByCustomer(ctx, customerID, strings.TrimSpace(phone))
}

// ByMachineAndDate lists the active bookings of a machine that touch the local
// calendar date in the venue's zone.
func (s *Service) ByMachineAndDate(ctx context.Context, machineID, date string) ([]model.Booking, error) {
	from, to, err := localtime.DayBounds(date, s.engine.Zone())
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetMachine(ctx, machineID); err != nil {
		return nil, err
	}
	return s.repo.ListBookingsByMachine(ctx, machineID, from, to)
}
