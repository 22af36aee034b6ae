package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QueueStatus string

const (
	QueueWaiting   QueueStatus = "waiting"
	QueueCalled    QueueStatus = "called"
	QueueSeated    QueueStatus = "seated"
	QueueCompleted QueueStatus = "completed"
	QueueCancelled QueueStatus = "cancelled"
)

// InLine reports whether an entry in this status still occupies a place in
// its machine's line.
func (s QueueStatus) InLine() bool {
	return s == QueueWaiting || s == QueueCalled || s == QueueSeated
}

// InLineStatuses lists the statuses for which InLine is true.
var InLineStatuses = []QueueStatus{QueueWaiting, QueueCalled, QueueSeated}

// QueueEntry is a same-day walk-in ticket.
type QueueEntry struct {
	ID              string      `gorm:"primaryKey;size:36" json:"id"`
	BusinessDate    string      `gorm:"size:10;not null;uniqueIndex:idx_queue_day_number,priority:1" json:"business_date"`
	QueueNumber     int         `gorm:"not null;uniqueIndex:idx_queue_day_number,priority:2" json:"queue_number"`
	MachineID       string      `gorm:"size:64;not null;index" json:"machine_id"` // empty means any station
	StationType     string      `gorm:"size:32" json:"station_type"`
	Position        int         `gorm:"not null" json:"position"`
	CustomerID      *string     `gorm:"size:64;index" json:"customer_id"`
	CustomerName    string      `gorm:"size:128;not null" json:"customer_name"`
	Phone           string      `gorm:"size:32;index" json:"phone"`
	PartySize       int         `gorm:"not null" json:"party_size"`
	Status          QueueStatus `gorm:"size:16;not null;index" json:"status"`
	JoinedAt        time.Time   `gorm:"not null" json:"joined_at"`
	CalledAt        *time.Time  `json:"called_at"`
	SeatedAt        *time.Time  `json:"seated_at"`
	FinishedAt      *time.Time  `json:"finished_at"`
	SeatedMachineID *string     `gorm:"size:64" json:"seated_machine_id"`
	Notes           string      `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (q *QueueEntry) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

// QueueCounter holds the last ticket number issued on a business date.
type QueueCounter struct {
	BusinessDate string `gorm:"primaryKey;size:10"`
	LastNumber   int    `gorm:"not null"`
}
