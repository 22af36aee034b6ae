package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MachineStatus is the operational state of a simulator rig.
type MachineStatus string

const (
	MachineAvailable   MachineStatus = "available"
	MachineOccupied    MachineStatus = "occupied"
	MachineMaintenance MachineStatus = "maintenance"
)

// Valid reports whether s is a known machine status.
func (s MachineStatus) Valid() bool {
	switch s {
	case MachineAvailable, MachineOccupied, MachineMaintenance:
		return true
	}
	return false
}

// Machine represents a bookable racing simulator.
type Machine struct {
	ID         string              `gorm:"primaryKey;size:64" json:"id"`
	Name       string              `gorm:"size:128;not null" json:"name"`
	IsActive   bool                `gorm:"not null" json:"is_active"`
	Status     MachineStatus       `gorm:"size:16;not null" json:"status"`
	Position   int                 `gorm:"not null" json:"position"`
	HourlyRate decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"hourly_rate"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}
