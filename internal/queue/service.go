package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"simrig-booking-backend/config"
	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/localtime"
	"simrig-booking-backend/internal/model"
	"simrig-booking-backend/internal/session"
	"simrig-booking-backend/internal/store"
)

const maxPartySize = 8

// Repository is the part of the store the queue works on.
type Repository interface {
	store.QueueStore
	store.MachineStore
}

// Notifier delivers "your turn" messages for a queue entry.
type Notifier interface {
	Dispatch(queueEntryID string)
}

type Service struct {
	repo       Repository
	notifier   Notifier
	zone       *time.Location
	avgMinutes int
	now        localtime.Clock
	logger     *zap.Logger
}

func NewService(repo Repository, notifier Notifier, cfg config.BusinessConfig, now localtime.Clock, logger *zap.Logger) (*Service, error) {
	zone, err := localtime.LoadZone(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("business timezone: %w", err)
	}
	if now == nil {
		now = localtime.SystemClock
	}
	return &Service{
		repo:       repo,
		notifier:   notifier,
		zone:       zone,
		avgMinutes: cfg.AverageSessionMinutes,
		now:        now,
		logger:     logger,
	}, nil
}

func (s *Service) today() string {
	return localtime.BusinessDate(s.now(), s.zone)
}

// JoinRequest puts a walk-in customer in line.
type JoinRequest struct {
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	Phone        string `json:"phone"`
	PartySize    int    `json:"party_size"`
	MachineID    string `json:"machine_id"` // empty for the first free station
	StationType  string `json:"station_type"`
	Notes        string `json:"notes"`
}

// Join issues today's next ticket and puts the customer at the end of the
// line for the requested machine.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*model.QueueEntry, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "customer name is required")
	}
	if req.PartySize == 0 {
		req.PartySize = 1
	}
	if req.PartySize < 1 || req.PartySize > maxPartySize {
		return nil, apperr.Newf(apperr.KindInvalidInput, "party size must be between 1 and %d", maxPartySize)
	}
	if req.MachineID != "" {
		m, err := s.repo.GetMachine(ctx, req.MachineID)
		if err != nil {
			return nil, err
		}
		if !m.IsActive {
			return nil, apperr.Newf(apperr.KindInvalidTransition, "machine %s is not active", m.ID)
		}
	}

	entry := &model.QueueEntry{
		BusinessDate: s.today(),
		MachineID:    req.MachineID,
		StationType:  req.StationType,
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		PartySize:    req.PartySize,
		Status:       model.QueueWaiting,
		JoinedAt:     s.now(),
		Notes:        req.Notes,
	}
	if req.CustomerID != "" {
		entry.CustomerID = &req.CustomerID
	}

	if err := s.repo.JoinQueue(ctx, entry, NextPosition); err != nil {
		return nil, err
	}

	s.logger.Info("Queue joined",
		zap.String("queue_entry_id", entry.ID),
		zap.Int("queue_number", entry.QueueNumber),
		zap.Int("position", entry.Position),
		zap.String("machine_id", entry.MachineID),
	)
	return entry, nil
}

// Call moves a waiting entry to called and notifies the customer. Calling an
// entry that is already called only repeats the notification.
func (s *Service) Call(ctx context.Context, id string) (*model.QueueEntry, error) {
	now := s.now()
	entry, err := s.repo.UpdateQueueEntry(ctx, id, func(e *model.QueueEntry) error {
		switch e.Status {
		case model.QueueWaiting:
			e.Status = model.QueueCalled
			e.CalledAt = &now
			return nil
		case model.QueueCalled:
			return store.ErrNoChange
		default:
			return apperr.Newf(apperr.KindInvalidTransition, "cannot call a %s queue entry", e.Status)
		}
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Dispatch(entry.ID)
	}
	s.logger.Info("Queue entry called",
		zap.String("queue_entry_id", entry.ID),
		zap.Int("queue_number", entry.QueueNumber),
	)
	return entry, nil
}

// Seat puts a waiting or called customer on machineID and opens their session
// in the same transaction.
func (s *Service) Seat(ctx context.Context, id, machineID string) (*model.QueueEntry, *model.Session, error) {
	if machineID == "" {
		return nil, nil, apperr.New(apperr.KindInvalidInput, "machine id is required")
	}

	now := s.now()
	sess := session.NewSession(machineID, now, s.avgMinutes)

	entry, sess, err := s.repo.SeatQueueEntry(ctx, id, func(e *model.QueueEntry) error {
		if e.Status != model.QueueWaiting && e.Status != model.QueueCalled {
			return apperr.Newf(apperr.KindInvalidTransition, "cannot seat a %s queue entry", e.Status)
		}
		e.Status = model.QueueSeated
		e.SeatedAt = &now
		e.SeatedMachineID = &machineID
		sess.CustomerName = e.CustomerName
		sess.Notes = e.Notes
		return nil
	}, sess)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Queue entry seated",
		zap.String("queue_entry_id", entry.ID),
		zap.String("machine_id", machineID),
		zap.String("session_id", sess.ID),
	)
	return entry, sess, nil
}

// Cancel takes a waiting or called entry out of the line. Cancelling a
// cancelled entry returns it unchanged.
func (s *Service) Cancel(ctx context.Context, id string, r model.Requester) (*model.QueueEntry, error) {
	now := s.now()
	entry, err := s.repo.UpdateQueueEntry(ctx, id, func(e *model.QueueEntry) error {
		if !r.Owns(e.CustomerID, e.Phone) {
			return apperr.New(apperr.KindUnauthorized, "queue entry belongs to another customer")
		}
		switch e.Status {
		case model.QueueCancelled:
			return store.ErrNoChange
		case model.QueueWaiting, model.QueueCalled:
			e.Status = model.QueueCancelled
			e.FinishedAt = &now
			return nil
		default:
			return apperr.Newf(apperr.KindInvalidTransition, "cannot cancel a %s queue entry", e.Status)
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Queue entry cancelled",
		zap.String("queue_entry_id", entry.ID),
		zap.Bool("operator", r.Operator),
	)
	return entry, nil
}

// Waiting lists today's waiting and called entries in serving order. A
// non-nil machineID narrows the list to that machine's line.
func (s *Service) Waiting(ctx context.Context, machineID *string) ([]model.QueueEntry, error) {
	entries, err := s.repo.ListQueueEntries(ctx, store.QueueFilter{
		BusinessDate: s.today(),
		MachineID:    machineID,
		Statuses:     []model.QueueStatus{model.QueueWaiting, model.QueueCalled},
	})
	if err != nil {
		return nil, err
	}
	sortLine(entries)
	return entries, nil
}

// EntryStatus is a customer's queue entry with its place in line.
type EntryStatus struct {
	Entry model.QueueEntry `json:"entry"`
	Ahead
}

// MyStatus returns the customer's entries that are still in today's line,
// each with the number of people ahead and the expected wait.
func (s *Service) MyStatus(ctx context.Context, customerID, phone string) ([]EntryStatus, error) {
	if customerID == "" && phone == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "customer id or phone is required")
	}
	mine, err := s.repo.ListQueueEntries(ctx, store.QueueFilter{
		BusinessDate: s.today(),
		Statuses:     model.InLineStatuses,
		CustomerID:   customerID,
		Phone:        phone,
	})
	if err != nil {
		return nil, err
	}

	lines := make(map[string][]model.QueueEntry)
	out := make([]EntryStatus, 0, len(mine))
	for i := range mine {
		entry := &mine[i]
		line, ok := lines[entry.MachineID]
		if !ok {
			machineID := entry.MachineID
			line, err = s.repo.ListQueueEntries(ctx, store.QueueFilter{
				BusinessDate: entry.BusinessDate,
				MachineID:    &machineID,
				Statuses:     model.InLineStatuses,
			})
			if err != nil {
				return nil, err
			}
			lines[entry.MachineID] = line
		}
		out = append(out, EntryStatus{Entry: *entry, Ahead: ComputeQueueAhead(entry, line, s.avgMinutes)})
	}
	return out, nil
}

// Stats counts today's queue entries by status.
type Stats struct {
	BusinessDate       string `json:"business_date"`
	Total              int    `json:"total"`
	Waiting            int    `json:"waiting"`
	Called             int    `json:"called"`
	Seated             int    `json:"seated"`
	Completed          int    `json:"completed"`
	Cancelled          int    `json:"cancelled"`
	LastQueueNumber    int    `json:"last_queue_number"`
	AverageWaitMinutes int    `json:"average_wait_minutes"`
}

// Stats summarises today's queue. The average wait covers entries that have
// been seated.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	today := s.today()
	entries, err := s.repo.ListQueueEntries(ctx, store.QueueFilter{BusinessDate: today})
	if err != nil {
		return nil, err
	}
	last, err := s.repo.LastQueueNumber(ctx, today)
	if err != nil {
		return nil, err
	}

	st := &Stats{BusinessDate: today, Total: len(entries), LastQueueNumber: last}
	var waited time.Duration
	var seated int
	for _, e := range entries {
		switch e.Status {
		case model.QueueWaiting:
			st.Waiting++
		case model.QueueCalled:
			st.Called++
		case model.QueueSeated:
			st.Seated++
		case model.QueueCompleted:
			st.Completed++
		case model.QueueCancelled:
			st.Cancelled++
		}
		if e.SeatedAt != nil {
			waited += e.SeatedAt.Sub(e.JoinedAt)
			seated++
		}
	}
	if seated > 0 {
		st.AverageWaitMinutes = int((waited / time.Duration(seated)).Round(time.Minute) / time.Minute)
	}
	return st, nil
}

// NextQueueNumber previews the ticket the next join would get. The number is
// only reserved by Join.
func (s *Service) NextQueueNumber(ctx context.Context) (int, error) {
	last, err := s.repo.LastQueueNumber(ctx, s.today())
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// Get returns a queue entry by id.
func (s *Service) Get(ctx context.Context, id string) (*model.QueueEntry, error) {
	return s.repo.GetQueueEntry(ctx, id)
}
