package model

import "time"

// PushSubscription holds the information for a browser push subscription
// that waits for a walk-in queue entry to be called.
type PushSubscription struct {
	Endpoint     string    `gorm:"primaryKey"`
	P256DH       string    `gorm:"column:p256dh;not null"`
	Auth         string    `gorm:"not null"`
	QueueEntryID string    `gorm:"size:36;not null;index"`
	CreatedAt    time.Time `gorm:"not null"`
}
