package store

import (
	"context"

	"gorm.io/gorm/clause"

	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/model"
)

// SaveSubscription creates or replaces the subscription for an endpoint.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "queue_entry_id"}),
	}).Create(sub).Error
	return classify(err, "save subscription")
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, notFound(err, apperr.KindNotFound, "subscription")
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
	return classify(err, "delete subscription")
}

func (s *gormStore) ListSubscriptionsForEntry(ctx context.Context, queueEntryID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("queue_entry_id = ?", queueEntryID).Find(&subs).Error; err != nil {
		return nil, classify(err, "list subscriptions")
	}
	return subs, nil
}
