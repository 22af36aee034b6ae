package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/model"
)

func (s *gormStore) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	var m model.Machine
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, apperr.KindNotFound, fmt.Sprintf("machine %s", id))
	}
	return &m, nil
}

func (s *gormStore) GetMachines(ctx context.Context, ids []string) ([]model.Machine, error) {
	if len(ids) == 0 {
		return []model.Machine{}, nil
	}
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("position, id").Find(&machines).Error; err != nil {
		return nil, classify(err, "list machines by id")
	}
	return machines, nil
}

func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Order("position, id").Find(&machines).Error; err != nil {
		return nil, classify(err, "list machines")
	}
	return machines, nil
}

func (s *gormStore) ListAvailableMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND status = ?", true, model.MachineAvailable).
		Order("position, id").
		Find(&machines).Error
	if err != nil {
		return nil, classify(err, "list available machines")
	}
	return machines, nil
}

// SaveMachine inserts a machine or updates its operator-managed fields. The
// status of an existing machine is left alone.
func (s *gormStore) SaveMachine(ctx context.Context, m *model.Machine) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "is_active", "position", "hourly_rate", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return classify(err, fmt.Sprintf("save machine %s", m.ID))
	}
	return nil
}

// UpdateMachineStatus locks the machine, hands it to fn together with its open
// session (nil when idle) and persists the status fn leaves behind.
func (s *gormStore) UpdateMachineStatus(ctx context.Context, id string, fn func(m *model.Machine, open *model.Session) error) (*model.Machine, error) {
	var result *model.Machine
	err := s.transaction(ctx, fmt.Sprintf("update machine %s status", id), func(tx *gorm.DB) error {
		m, err := lockMachine(tx, id)
		if err != nil {
			return err
		}
		open, err := openSession(tx, id)
		if err != nil {
			return err
		}

		result = m
		if err := fn(m, open); err != nil {
			if errors.Is(err, ErrNoChange) {
				return nil
			}
			return err
		}
		return tx.Model(m).Update("status", m.Status).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
