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

// StartSession opens s on its machine and marks the machine occupied.
func (s *gormStore) StartSession(ctx context.Context, sess *model.Session) error {
	return s.transaction(ctx, "start session", func(tx *gorm.DB) error {
		return startSession(tx, sess)
	})
}

func startSession(tx *gorm.DB, sess *model.Session) error {
	m, err := lockMachine(tx, sess.MachineID)
	if err != nil {
		return err
	}
	if !m.IsActive {
		return apperr.Newf(apperr.KindInvalidTransition, "machine %s is not active", m.ID)
	}
	if m.Status == model.MachineMaintenance {
		return apperr.Newf(apperr.KindInvalidTransition, "machine %s is under maintenance", m.ID)
	}

	open, err := openSession(tx, m.ID)
	if err != nil {
		return err
	}
	if open != nil {
		return apperr.Newf(apperr.KindStationOccupied, "machine %s already has an open session", m.ID)
	}

	machineID := m.ID
	sess.OpenMachineID = &machineID
	if err := tx.Create(sess).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Newf(apperr.KindStationOccupied, "machine %s already has an open session", m.ID)
		}
		return err
	}
	return tx.Model(m).Update("status", model.MachineOccupied).Error
}

func openSession(tx *gorm.DB, machineID string) (*model.Session, error) {
	var sessions []model.Session
	if err := tx.Where("open_machine_id = ?", machineID).Limit(1).Find(&sessions).Error; err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// EndSession applies fn to the locked session, closes it and releases the
// machine. The queue entry or booking the session came from is completed.
func (s *gormStore) EndSession(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	var sess model.Session
	err := s.transaction(ctx, fmt.Sprintf("end session %s", id), func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&sess, "id = ?", id).Error; err != nil {
			return notFound(err, apperr.KindSessionNotFound, fmt.Sprintf("session %s", id))
		}
		if err := fn(&sess); err != nil {
			return err
		}
		sess.OpenMachineID = nil
		if err := tx.Save(&sess).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.Machine{}).
			Where("id = ? AND status = ?", sess.MachineID, model.MachineOccupied).
			Update("status", model.MachineAvailable).Error; err != nil {
			return err
		}

		if sess.QueueEntryID != nil {
			if err := tx.Model(&model.QueueEntry{}).
				Where("id = ? AND status = ?", *sess.QueueEntryID, model.QueueSeated).
				Updates(map[string]any{"status": model.QueueCompleted, "finished_at": sess.EndedAt}).Error; err != nil {
				return err
			}
		}
		if sess.BookingID != nil {
			if err := tx.Model(&model.Booking{}).
				Where("id = ? AND status IN ?", *sess.BookingID, []model.BookingStatus{model.BookingPending, model.BookingConfirmed}).
				Update("status", model.BookingCompleted).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *gormStore) UpdateSession(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	var sess model.Session
	err := s.transaction(ctx, fmt.Sprintf("update session %s", id), func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&sess, "id = ?", id).Error; err != nil {
			return notFound(err, apperr.KindSessionNotFound, fmt.Sprintf("session %s", id))
		}
		if err := fn(&sess); err != nil {
			if errors.Is(err, ErrNoChange) {
				return nil
			}
			return err
		}
		return tx.Save(&sess).Error
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *gormStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		return nil, notFound(err, apperr.KindSessionNotFound, fmt.Sprintf("session %s", id))
	}
	return &sess, nil
}

// GetOpenSession returns the open session of a machine, or nil when it is idle.
func (s *gormStore) GetOpenSession(ctx context.Context, machineID string) (*model.Session, error) {
	sess, err := openSession(s.db.WithContext(ctx), machineID)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("load open session of machine %s", machineID))
	}
	return sess, nil
}

func (s *gormStore) ListOpenSessions(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	if err := s.db.WithContext(ctx).Where("ended_at IS NULL").Order("started_at").Find(&sessions).Error; err != nil {
		return nil, classify(err, "list open sessions")
	}
	return sessions, nil
}

// ListSessionsByMachine returns the machine's sessions, newest first. A
// non-positive limit returns all of them.
func (s *gormStore) ListSessionsByMachine(ctx context.Context, machineID string, limit int) ([]model.Session, error) {
	q := s.db.WithContext(ctx).Where("machine_id = ?", machineID).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var sessions []model.Session
	if err := q.Find(&sessions).Error; err != nil {
		return nil, classify(err, fmt.Sprintf("list sessions of machine %s", machineID))
	}
	return sessions, nil
}

// ListSessionsBetween returns the sessions started in [from, to).
func (s *gormStore) ListSessionsBetween(ctx context.Context, from, to time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := s.db.WithContext(ctx).
		Where("started_at >= ? AND started_at < ?", from.UTC(), to.UTC()).
		Order("started_at").
		Find(&sessions).Error
	if err != nil {
		return nil, classify(err, "list sessions")
	}
	return sessions, nil
}
