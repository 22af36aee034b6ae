package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// Booking is an advance reservation of a machine. StartAt and EndAt are the
// source of truth; the Local* fields are the same instants rendered in
// Timezone for display and date queries.
type Booking struct {
	ID              string        `gorm:"primaryKey;size:36" json:"id"`
	MachineID       string        `gorm:"size:64;not null;index:idx_bookings_machine_start,priority:1" json:"machine_id"`
	CustomerID      *string       `gorm:"size:64;index" json:"customer_id"`
	CustomerName    string        `gorm:"size:128" json:"customer_name"`
	Phone           string        `gorm:"size:32;index" json:"phone"`
	StartAt         time.Time     `gorm:"not null;index:idx_bookings_machine_start,priority:2" json:"start_at"`
	EndAt           time.Time     `gorm:"not null" json:"end_at"`
	LocalDate       string        `gorm:"size:10;not null" json:"local_date"`
	LocalStart      string        `gorm:"size:5;not null" json:"local_start"`
	LocalEnd        string        `gorm:"size:5;not null" json:"local_end"`
	DurationMinutes int           `gorm:"not null" json:"duration_minutes"`
	Timezone        string        `gorm:"size:64;not null" json:"timezone"`
	IsCrossMidnight bool          `gorm:"not null" json:"is_cross_midnight"`
	Status          BookingStatus `gorm:"size:16;not null;index" json:"status"`
	Notes           string        `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Active reports whether the booking still holds its time range.
func (b *Booking) Active() bool {
	return b.Status != BookingCancelled
}
