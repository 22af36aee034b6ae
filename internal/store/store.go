package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/model"
)

// exclusionViolation is the Postgres SQLSTATE raised by bookings_no_overlap.
const exclusionViolation = "23P01"

// MachineStore covers the simulator rigs.
type MachineStore interface {
	GetMachine(ctx context.Context, id string) (*model.Machine, error)
	GetMachines(ctx context.Context, ids []string) ([]model.Machine, error)
	ListMachines(ctx context.Context) ([]model.Machine, error)
	ListAvailableMachines(ctx context.Context) ([]model.Machine, error)
	SaveMachine(ctx context.Context, m *model.Machine) error
	UpdateMachineStatus(ctx context.Context, id string, fn func(m *model.Machine, open *model.Session) error) (*model.Machine, error)
}

// BookingStore covers advance bookings. Create and Update re-check overlap in
// the same transaction as the write, with the machine row locked.
type BookingStore interface {
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	ListBookingsByMachine(ctx context.Context, machineID string, from, to time.Time) ([]model.Booking, error)
	ListBookingsBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error)
	ListBookingsByCustomer(ctx context.Context, customerID, phone string) ([]model.Booking, error)
	CreateBooking(ctx context.Context, b *model.Booking, conflict ConflictFunc) error
	UpdateBooking(ctx context.Context, id string, fn func(*model.Booking) error, conflict ConflictFunc) (*model.Booking, error)
	CheckInBooking(ctx context.Context, id string, fn func(*model.Booking) error, sess *model.Session) (*model.Session, error)
}

// QueueStore covers the walk-in queue. JoinQueue assigns the ticket number and
// line position while holding the day's counter row.
type QueueStore interface {
	GetQueueEntry(ctx context.Context, id string) (*model.QueueEntry, error)
	ListQueueEntries(ctx context.Context, filter QueueFilter) ([]model.QueueEntry, error)
	JoinQueue(ctx context.Context, e *model.QueueEntry, assign PositionFunc) error
	UpdateQueueEntry(ctx context.Context, id string, fn func(*model.QueueEntry) error) (*model.QueueEntry, error)
	SeatQueueEntry(ctx context.Context, id string, fn func(*model.QueueEntry) error, sess *model.Session) (*model.QueueEntry, *model.Session, error)
	LastQueueNumber(ctx context.Context, businessDate string) (int, error)
	ExpireQueueEntries(ctx context.Context, beforeDate string, now time.Time) (int64, error)
}

// SessionStore covers machine occupancy. At most one session per machine is open.
type SessionStore interface {
	StartSession(ctx context.Context, s *model.Session) error
	EndSession(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error)
	UpdateSession(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error)
	GetSession(ctx context.Context, id string) (*model.Session, error)
	GetOpenSession(ctx context.Context, machineID string) (*model.Session, error)
	ListOpenSessions(ctx context.Context) ([]model.Session, error)
	ListSessionsByMachine(ctx context.Context, machineID string, limit int) ([]model.Session, error)
	ListSessionsBetween(ctx context.Context, from, to time.Time) ([]model.Session, error)
}

// SubscriptionStore covers web push subscriptions attached to queue entries.
type SubscriptionStore interface {
	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	ListSubscriptionsForEntry(ctx context.Context, queueEntryID string) ([]model.PushSubscription, error)
}

// Store defines the interface for all database operations.
type Store interface {
	MachineStore
	BookingStore
	QueueStore
	SessionStore
	SubscriptionStore
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// transaction runs fn in a transaction and classifies whatever comes out of it.
func (s *gormStore) transaction(ctx context.Context, what string, fn func(tx *gorm.DB) error) error {
	return classify(s.db.WithContext(ctx).Transaction(fn), what)
}

// classify keeps typed errors as they are and reports everything else as a
// store failure.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
		return apperr.Wrap(apperr.KindSlotConflict, err, "time slot already booked")
	}
	return apperr.Wrap(apperr.KindStoreUnavailable, err, what)
}

// notFound maps gorm.ErrRecordNotFound onto kind and anything else onto a store failure.
func notFound(err error, kind apperr.Kind, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(kind, what+" not found")
	}
	return apperr.Wrap(apperr.KindStoreUnavailable, err, "load "+what)
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func lockMachine(tx *gorm.DB, id string) (*model.Machine, error) {
	var m model.Machine
	if err := forUpdate(tx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, apperr.KindNotFound, fmt.Sprintf("machine %s", id))
	}
	return &m, nil
}

// activeBookingsOverlapping loads the non-cancelled bookings of a machine whose
// [start_at, end_at) intersects [from, to).
func activeBookingsOverlapping(tx *gorm.DB, machineID string, from, to time.Time) ([]model.Booking, error) {
	var bookings []model.Booking
	err := tx.
		Where("machine_id = ? AND status <> ? AND start_at < ? AND end_at > ?",
			machineID, model.BookingCancelled, to.UTC(), from.UTC()).
		Order("start_at").
		Find(&bookings).Error
	return bookings, err
}
