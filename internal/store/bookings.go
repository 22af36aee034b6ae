package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/model"
)

func (s *gormStore) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err, apperr.KindNotFound, fmt.Sprintf("booking %s", id))
	}
	return &b, nil
}

func (s *gormStore) ListBookingsByMachine(ctx context.Context, machineID string, from, to time.Time) ([]model.Booking, error) {
	bookings, err := activeBookingsOverlapping(s.db.WithContext(ctx), machineID, from, to)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("list bookings for machine %s", machineID))
	}
	return bookings, nil
}

func (s *gormStore) ListBookingsBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	var bookings []model.Booking
	err := s.db.WithContext(ctx).
		Where("status <> ? AND start_at < ? AND end_at > ?", model.BookingCancelled, to.UTC(), from.UTC()).
		Order("machine_id, start_at").
		Find(&bookings).Error
	if err != nil {
		return nil, classify(err, "list bookings")
	}
	return bookings, nil
}

// ListBookingsByCustomer returns every booking made by the customer id or, for
// guests, by the phone number. Newest first.
func (s *gormStore) ListBookingsByCustomer(ctx context.Context, customerID, phone string) ([]model.Booking, error) {
	q := s.db.WithContext(ctx)
	switch {
	case customerID != "" && phone != "":
		q = q.Where("customer_id = ? OR phone = ?", customerID, phone)
	case customerID != "":
		q = q.Where("customer_id = ?", customerID)
	case phone != "":
		q = q.Where("phone = ?", phone)
	default:
		return nil, apperr.New(apperr.KindInvalidInput, "customer id or phone is required")
	}

	var bookings []model.Booking
	if err := q.Order("start_at DESC").Find(&bookings).Error; err != nil {
		return nil, classify(err, "list bookings by customer")
	}
	return bookings, nil
}

// CreateBooking inserts b if it collides with no active booking on its machine.
// The machine row stays locked between the overlap check and the insert.
func (s *gormStore) CreateBooking(ctx context.Context, b *model.Booking, conflict ConflictFunc) error {
	return s.transaction(ctx, "create booking", func(tx *gorm.DB) error {
		m, err := lockMachine(tx, b.MachineID)
		if err != nil {
			return err
		}
		if !m.IsActive {
			return apperr.Newf(apperr.KindInvalidTransition, "machine %s is not active", m.ID)
		}
		if err := checkConflict(tx, b, conflict); err != nil {
			return err
		}
		return tx.Create(b).Error
	})
}

// UpdateBooking locks the booking, applies fn and, when the booking still
// holds time, re-checks its range against the other bookings of its machine.
func (s *gormStore) UpdateBooking(ctx context.Context, id string, fn func(*model.Booking) error, conflict ConflictFunc) (*model.Booking, error) {
	var b model.Booking
	err := s.transaction(ctx, fmt.Sprintf("update booking %s", id), func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&b, "id = ?", id).Error; err != nil {
			return notFound(err, apperr.KindNotFound, fmt.Sprintf("booking %s", id))
		}
		if err := fn(&b); err != nil {
			if errors.Is(err, ErrNoChange) {
				return nil
			}
			return err
		}
		if b.Active() {
			if _, err := lockMachine(tx, b.MachineID); err != nil {
				return err
			}
			if err := checkConflict(tx, &b, conflict); err != nil {
				return err
			}
		}
		return tx.Save(&b).Error
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CheckInBooking validates the booking with fn and opens sess on the booking's
// machine in one transaction.
func (s *gormStore) CheckInBooking(ctx context.Context, id string, fn func(*model.Booking) error, sess *model.Session) (*model.Session, error) {
	err := s.transaction(ctx, fmt.Sprintf("check in booking %s", id), func(tx *gorm.DB) error {
		var b model.Booking
		if err := forUpdate(tx).First(&b, "id = ?", id).Error; err != nil {
			return notFound(err, apperr.KindNotFound, fmt.Sprintf("booking %s", id))
		}
		if err := fn(&b); err != nil {
			return err
		}

		var used int64
		if err := tx.Model(&model.Session{}).Where("booking_id = ?", b.ID).Count(&used).Error; err != nil {
			return err
		}
		if used > 0 {
			return apperr.Newf(apperr.KindInvalidTransition, "booking %s is already checked in", b.ID)
		}

		sess.MachineID = b.MachineID
		sess.BookingID = &b.ID
		if err := startSession(tx, sess); err != nil {
			return err
		}
		return tx.Save(&b).Error
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func checkConflict(tx *gorm.DB, b *model.Booking, conflict ConflictFunc) error {
	existing, err := activeBookingsOverlapping(tx, b.MachineID, b.StartAt, b.EndAt)
	if err != nil {
		return err
	}
	if hit := conflict(b, existing); hit != nil {
		return apperr.Newf(apperr.KindSlotConflict, "time slot already booked (%s %s-%s)", hit.LocalDate, hit.LocalStart, hit.LocalEnd)
	}
	return nil
}
