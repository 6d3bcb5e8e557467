package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Placeholder product ids the restock screen emits for slots without a
// usable product. Lines carrying them never touch stock.
const (
	NoProductPlaceholder      = "Nincs termék"
	UnknownProductPlaceholder = "Ismeretlen termék"
)

// Sale is an append-only record of units taken out of a machine.
type Sale struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	MachineID *string         `gorm:"size:36;index" json:"machineId"`
	Date      string          `gorm:"size:64;not null" json:"date"`
	Products  []SaleLine      `gorm:"type:jsonb;serializer:json" json:"products"`
	AllProfit decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"allProfit"`
	CreatedAt time.Time       `gorm:"index" json:"createdAt"`
}

// SaleLine is a single product line of a sale. ProductID is free text and
// may be empty or a placeholder.
type SaleLine struct {
	ProductID     string          `json:"productId"`
	Quantity      int             `json:"quantity"`
	ProductProfit decimal.Decimal `json:"productProfit"`
}

// AffectsStock reports whether recording the line should deduct stock.
func (l SaleLine) AffectsStock() bool {
	if l.ProductID == "" || l.Quantity <= 0 {
		return false
	}
	return l.ProductID != NoProductPlaceholder && l.ProductID != UnknownProductPlaceholder
}
