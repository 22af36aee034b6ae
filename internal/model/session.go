package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}

// Session is the occupancy of a machine by a customer. Rows are never deleted.
type Session struct {
	ID               string              `gorm:"primaryKey;size:36" json:"id"`
	MachineID        string              `gorm:"size:64;not null;index" json:"machine_id"`
	BookingID        *string             `gorm:"size:36;uniqueIndex" json:"booking_id"`
	QueueEntryID     *string             `gorm:"size:36;uniqueIndex" json:"queue_entry_id"`
	CustomerName     string              `gorm:"size:128" json:"customer_name"`
	StartedAt        time.Time           `gorm:"not null;index" json:"started_at"`
	EndedAt          *time.Time          `json:"ended_at"`
	EstimatedMinutes *int                `json:"estimated_minutes"`
	EstimatedEndAt   *time.Time          `json:"estimated_end_at"`
	DurationMinutes  *int                `json:"duration_minutes"`
	PaymentStatus    PaymentStatus       `gorm:"size:16;not null" json:"payment_status"`
	TotalAmount      decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"total_amount"`
	Notes            string              `gorm:"type:text" json:"notes"`

	// OpenMachineID mirrors MachineID while the session is open and is NULL
	// afterwards. Its unique index allows one open session per machine.
	OpenMachineID *string `gorm:"size:64;uniqueIndex" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Open reports whether the session has not ended yet.
func (s *Session) Open() bool {
	return s.EndedAt == nil
}
