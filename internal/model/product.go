package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products for reporting.
type Category string

const (
	CategoryDrink Category = "Drink"
	CategoryFood  Category = "Food"
	CategoryOther Category = "Other"
)

// categoryAliases maps accepted spellings, including the Hungarian labels
// older clients send, onto the canonical category.
var categoryAliases = map[string]Category{
	"drink": CategoryDrink,
	"ital":  CategoryDrink,
	"food":  CategoryFood,
	"étel":  CategoryFood,
	"etel":  CategoryFood,
	"other": CategoryOther,
	"egyéb": CategoryOther,
	"egyeb": CategoryOther,
}

// ParseCategory normalizes a category label.
func ParseCategory(s string) (Category, bool) {
	c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

// Product is a catalogue item that can be loaded into slots.
type Product struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	Name              string          `gorm:"size:256;not null" json:"name"`
	Category          Category        `gorm:"size:16;not null" json:"category"`
	Price             decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock             int             `gorm:"not null" json:"stock"`
	AllocatedCapacity int             `gorm:"not null" json:"allocatedCapacity"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}
