package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/model"
)

func (s *gormStore) GetQueueEntry(ctx context.Context, id string) (*model.QueueEntry, error) {
	var e model.QueueEntry
	if err := s.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return nil, notFound(err, apperr.KindNotFound, fmt.Sprintf("queue entry %s", id))
	}
	return &e, nil
}

// ListQueueEntries returns the matching entries in ticket order.
func (s *gormStore) ListQueueEntries(ctx context.Context, filter QueueFilter) ([]model.QueueEntry, error) {
	q := s.db.WithContext(ctx)
	if filter.BusinessDate != "" {
		q = q.Where("business_date = ?", filter.BusinessDate)
	}
	if filter.MachineID != nil {
		q = q.Where("machine_id = ?", *filter.MachineID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	switch {
	case filter.CustomerID != "" && filter.Phone != "":
		q = q.Where("customer_id = ? OR phone = ?", filter.CustomerID, filter.Phone)
	case filter.CustomerID != "":
		q = q.Where("customer_id = ?", filter.CustomerID)
	case filter.Phone != "":
		q = q.Where("phone = ?", filter.Phone)
	}

	var entries []model.QueueEntry
	if err := q.Order("business_date, queue_number").Find(&entries).Error; err != nil {
		return nil, classify(err, "list queue entries")
	}
	return entries, nil
}

// JoinQueue issues the next ticket number of e.BusinessDate and asks assign for
// the line position among that day's entries. The counter row lock serialises
// concurrent joins.
func (s *gormStore) JoinQueue(ctx context.Context, e *model.QueueEntry, assign PositionFunc) error {
	return s.transaction(ctx, "join queue", func(tx *gorm.DB) error {
		number, err := nextQueueNumber(tx, e.BusinessDate)
		if err != nil {
			return err
		}

		var inLine []model.QueueEntry
		if err := tx.Where("business_date = ? AND machine_id = ? AND status IN ?", e.BusinessDate, e.MachineID, model.InLineStatuses).
			Find(&inLine).Error; err != nil {
			return err
		}

		e.QueueNumber = number
		e.Position = assign(inLine)
		return tx.Create(e).Error
	})
}

func nextQueueNumber(tx *gorm.DB, businessDate string) (int, error) {
	seed := model.QueueCounter{BusinessDate: businessDate}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return 0, err
	}

	var counter model.QueueCounter
	if err := forUpdate(tx).First(&counter, "business_date = ?", businessDate).Error; err != nil {
		return 0, err
	}
	counter.LastNumber++
	if err := tx.Model(&model.QueueCounter{}).
		Where("business_date = ?", businessDate).
		Update("last_number", counter.LastNumber).Error; err != nil {
		return 0, err
	}
	return counter.LastNumber, nil
}

// LastQueueNumber returns the last ticket issued on businessDate, 0 if none.
func (s *gormStore) LastQueueNumber(ctx context.Context, businessDate string) (int, error) {
	var counter model.QueueCounter
	err := s.db.WithContext(ctx).First(&counter, "business_date = ?", businessDate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, classify(err, "load queue counter")
	}
	return counter.LastNumber, nil
}

func (s *gormStore) UpdateQueueEntry(ctx context.Context, id string, fn func(*model.QueueEntry) error) (*model.QueueEntry, error) {
	var e model.QueueEntry
	err := s.transaction(ctx, fmt.Sprintf("update queue entry %s", id), func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&e, "id = ?", id).Error; err != nil {
			return notFound(err, apperr.KindNotFound, fmt.Sprintf("queue entry %s", id))
		}
		if err := fn(&e); err != nil {
			if errors.Is(err, ErrNoChange) {
				return nil
			}
			return err
		}
		return tx.Save(&e).Error
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// SeatQueueEntry moves the entry forward with fn and opens sess for it in the
// same transaction.
func (s *gormStore) SeatQueueEntry(ctx context.Context, id string, fn func(*model.QueueEntry) error, sess *model.Session) (*model.QueueEntry, *model.Session, error) {
	var e model.QueueEntry
	err := s.transaction(ctx, fmt.Sprintf("seat queue entry %s", id), func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&e, "id = ?", id).Error; err != nil {
			return notFound(err, apperr.KindNotFound, fmt.Sprintf("queue entry %s", id))
		}
		if err := fn(&e); err != nil {
			return err
		}
		sess.QueueEntryID = &e.ID
		if err := startSession(tx, sess); err != nil {
			return err
		}
		return tx.Save(&e).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &e, sess, nil
}

// ExpireQueueEntries cancels entries from business dates before beforeDate
// that were never seated.
func (s *gormStore) ExpireQueueEntries(ctx context.Context, beforeDate string, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&model.QueueEntry{}).
		Where("business_date < ? AND status IN ?", beforeDate, []model.QueueStatus{model.QueueWaiting, model.QueueCalled}).
		Updates(map[string]any{"status": model.QueueCancelled, "finished_at": now.UTC()})
	if res.Error != nil {
		return 0, classify(res.Error, "expire queue entries")
	}
	return res.RowsAffected, nil
}
