package session

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/localtime"
	"simrig-booking-backend/internal/model"
	"simrig-booking-backend/internal/store"
)

// Repository is the part of the store sessions work on.
type Repository interface {
	store.SessionStore
	store.MachineStore
}

type Service struct {
	repo   Repository
	now    localtime.Clock
	logger *zap.Logger
}

func NewService(repo Repository, now localtime.Clock, logger *zap.Logger) *Service {
	if now == nil {
		now = localtime.SystemClock
	}
	return &Service{repo: repo, now: now, logger: logger}
}

// StartRequest opens a walk-in session directly on a machine. Sessions for a
// booking or a queue entry are opened by check-in and seating.
type StartRequest struct {
	MachineID        string `json:"machine_id"`
	CustomerName     string `json:"customer_name"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	Notes            string `json:"notes"`
}

// Start opens a session and marks the machine occupied.
func (s *Service) Start(ctx context.Context, req StartRequest) (*model.Session, error) {
	if strings.TrimSpace(req.MachineID) == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "machine id is required")
	}
	if req.EstimatedMinutes < 0 || req.EstimatedMinutes > localtime.MinutesPerDay {
		return nil, apperr.Newf(apperr.KindInvalidInput, "estimated minutes must be between 0 and %d", localtime.MinutesPerDay)
	}

	sess := NewSession(req.MachineID, s.now(), req.EstimatedMinutes)
	sess.CustomerName = strings.TrimSpace(req.CustomerName)
	sess.Notes = req.Notes

	if err := s.repo.StartSession(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("Session started",
		zap.String("session_id", sess.ID),
		zap.String("machine_id", sess.MachineID),
	)
	return sess, nil
}

// NewSession builds an unpaid session starting at now. A positive estimate
// also sets the expected end.
func NewSession(machineID string, now time.Time, estimatedMinutes int) *model.Session {
	sess := &model.Session{
		MachineID:     machineID,
		StartedAt:     now.UTC(),
		PaymentStatus: model.PaymentUnpaid,
	}
	if estimatedMinutes > 0 {
		end := sess.StartedAt.Add(time.Duration(estimatedMinutes) * time.Minute)
		sess.EstimatedMinutes = &estimatedMinutes
		sess.EstimatedEndAt = &end
	}
	return sess
}

// DurationMinutes rounds the elapsed time to whole minutes.
func DurationMinutes(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Minutes()))
}

// End closes an open session, records its duration and optional amount and
// releases the machine.
func (s *Service) End(ctx context.Context, id string, totalAmount *decimal.Decimal) (*model.Session, error) {
	if totalAmount != nil && totalAmount.IsNegative() {
		return nil, apperr.New(apperr.KindInvalidInput, "total amount must not be negative")
	}

	now := s.now().UTC()
	sess, err := s.repo.EndSession(ctx, id, func(sess *model.Session) error {
		if !sess.Open() {
			return apperr.Newf(apperr.KindSessionAlreadyEnded, "session %s already ended", sess.ID)
		}
		minutes := DurationMinutes(sess.StartedAt, now)
		sess.EndedAt = &now
		sess.DurationMinutes = &minutes
		if totalAmount != nil {
			sess.TotalAmount = decimal.NewNullDecimal(*totalAmount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session ended",
		zap.String("session_id", sess.ID),
		zap.String("machine_id", sess.MachineID),
		zap.Int("duration_minutes", *sess.DurationMinutes),
	)
	return sess, nil
}

// paymentTransitions lists where each payment status may move to.
var paymentTransitions = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentUnpaid: {model.PaymentPaid},
	model.PaymentPaid:   {model.PaymentRefunded},
}

// UpdatePaymentStatus moves a session along unpaid, paid, refunded. Setting
// the current status again changes nothing.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id string, status model.PaymentStatus) (*model.Session, error) {
	if !status.Valid() {
		return nil, apperr.Newf(apperr.KindInvalidInput, "unknown payment status %q", status)
	}
	sess, err := s.repo.UpdateSession(ctx, id, func(sess *model.Session) error {
		if sess.PaymentStatus == status {
			return store.ErrNoChange
		}
		for _, next := range paymentTransitions[sess.PaymentStatus] {
			if next == status {
				sess.PaymentStatus = status
				return nil
			}
		}
		return apperr.Newf(apperr.KindInvalidTransition, "payment cannot go from %s to %s", sess.PaymentStatus, status)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Session payment updated",
		zap.String("session_id", sess.ID),
		zap.String("payment_status", string(sess.PaymentStatus)),
	)
	return sess, nil
}

func (s *Service) UpdateTotalAmount(ctx context.Context, id string, amount decimal.Decimal) (*model.Session, error) {
	if amount.IsNegative() {
		return nil, apperr.New(apperr.KindInvalidInput, "total amount must not be negative")
	}
	return s.repo.UpdateSession(ctx, id, func(sess *model.Session) error {
		sess.TotalAmount = decimal.NewNullDecimal(amount)
		return nil
	})
}

// Active returns the open session of a machine, or nil when it is idle.
func (s *Service) Active(ctx context.Context, machineID string) (*model.Session, error) {
	if _, err := s.repo.GetMachine(ctx, machineID); err != nil {
		return nil, err
	}
	return s.repo.GetOpenSession(ctx, machineID)
}

func (s *Service) ActiveAll(ctx context.Context) ([]model.Session, error) {
	return s.repo.ListOpenSessions(ctx)
}

func (s *Service) ByMachine(ctx context.Context, machineID string, limit int) ([]model.Session, error) {
	return s.repo.ListSessionsByMachine(ctx, machineID, limit)
}

// Stats summarises the sessions started in [From, To).
type Stats struct {
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Sessions     int             `json:"sessions"`
	Active       int             `json:"active"`
	TotalMinutes int             `json:"total_minutes"`
	PaidRevenue  decimal.Decimal `json:"paid_revenue"`
	Unpaid       int             `json:"unpaid"`
}

// Stats summarises the sessions started in [from, to).
func (s *Service) Stats(ctx context.Context, from, to time.Time) (*Stats, error) {
	if !to.After(from) {
		return nil, apperr.New(apperr.KindInvalidInput, "stats range end must be after its start")
	}
	sessions, err := s.repo.ListSessionsBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	st := &Stats{From: from.UTC(), To: to.UTC(), Sessions: len(sessions), PaidRevenue: decimal.Zero}
	for _, sess := range sessions {
		if sess.Open() {
			st.Active++
		}
		if sess.DurationMinutes != nil {
			st.TotalMinutes += *sess.DurationMinutes
		}
		switch sess.PaymentStatus {
		case model.PaymentPaid:
			if sess.TotalAmount.Valid {
				st.PaidRevenue = st.PaidRevenue.Add(sess.TotalAmount.Decimal)
			}
		case model.PaymentUnpaid:
			st.Unpaid++
		}
	}
	return st, nil
}

// SetMaintenance takes a machine out of service or returns it. Machines with
// an open session cannot be toggled and occupied is never set by hand.
func (s *Service) SetMaintenance(ctx context.Context, machineID string, status model.MachineStatus) (*model.Machine, error) {
	switch status {
	case model.MachineAvailable, model.MachineMaintenance:
	case model.MachineOccupied:
		return nil, apperr.New(apperr.KindInvalidTransition, "occupied is set by starting a session")
	default:
		return nil, apperr.Newf(apperr.KindInvalidInput, "unknown machine status %q", status)
	}

	m, err := s.repo.UpdateMachineStatus(ctx, machineID, func(m *model.Machine, open *model.Session) error {
		if m.Status == status {
			return store.ErrNoChange
		}
		if open != nil {
			return apperr.Newf(apperr.KindInvalidTransition, "machine %s has an open session", m.ID)
		}
		m.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Machine status changed",
		zap.String("machine_id", m.ID),
		zap.String("status", string(m.Status)),
	)
	return m, nil
}
