package model

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices and profits go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// MachineStatus is the operational state of a vending machine.
type MachineStatus string

const (
	StatusActive      MachineStatus = "Active"
	StatusMaintenance MachineStatus = "Maintenance"
	StatusOffline     MachineStatus = "Offline"
)

// Valid reports whether s is one of the known statuses.
func (s MachineStatus) Valid() bool {
	switch s {
	case StatusActive, StatusMaintenance, StatusOffline:
		return true
	}
	return false
}

// Machine represents a vending machine and its slot grid.
type Machine struct {
	ID        string        `gorm:"primaryKey;size:36" json:"id"`
	Name      string        `gorm:"size:256;not null" json:"name"`
	Location  string        `gorm:"size:256;not null" json:"location"`
	Rows      int           `gorm:"not null" json:"rows"`
	Cols      int           `gorm:"not null" json:"cols"`
	Slots     []Slot        `gorm:"type:jsonb;serializer:json" json:"slots"`
	Status    MachineStatus `gorm:"size:16;not null;index" json:"status"`
	Fullness  int           `gorm:"not null" json:"fullness"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// SlotIndex returns the position of the slot with the given code, or -1.
func (m *Machine) SlotIndex(code string) int {
	for i := range m.Slots {
		if m.Slots[i].SlotCode == code {
			return i
		}
	}
	return -1
}

// Slot is one addressable cell of a machine's grid. Product holds the id of
// the product loaded into the slot, or nil when the slot is empty.
type Slot struct {
	SlotCode string          `json:"slotCode"`
	Product  *string         `json:"product"`
	Quantity int             `json:"quantity"`
	Capacity int             `json:"capacity"`
	Price    decimal.Decimal `json:"price"`
}

// HasProduct reports whether a product is assigned to the slot.
func (s Slot) HasProduct() bool {
	return s.Product != nil
}

// ProductID returns the assigned product id, or "" for an empty slot.
func (s Slot) ProductID() string {
	if s.Product == nil {
		return ""
	}
	return *s.Product
}

// All lists the persisted types, in migration order.
func All() []any {
	return []any{
		&Machine{},
		&Product{},
		&Sale{},
		&PushSubscription{},
		&SubscriptionMachine{},
	}
}
