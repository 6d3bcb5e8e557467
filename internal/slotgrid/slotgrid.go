// Package slotgrid builds and measures the slot grid of a vending machine.
package slotgrid

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"snacktrack-backend/internal/model"
)

// Grid bounds. Rows are addressed by a single letter A-Z.
const (
	MaxRows = 26
	MaxCols = 99
)

// RowLetter maps a zero-based row index to its letter: 0 is "A", 25 is "Z".
func RowLetter(i int) (string, error) {
	if i < 0 || i >= MaxRows {
		return "", fmt.Errorf("row index %d out of range [0,%d)", i, MaxRows)
	}
	return string(rune('A' + i)), nil
}

// SlotCode returns the address of the slot at row index r and 1-based column c.
func SlotCode(r, c int) (string, error) {
	letter, err := RowLetter(r)
	if err != nil {
		return "", err
	}
	if c < 1 || c > MaxCols {
		return "", fmt.Errorf("column %d out of range [1,%d]", c, MaxCols)
	}
	return letter + strconv.Itoa(c), nil
}

// ValidateSize checks that a grid of rows x cols can be addressed.
func ValidateSize(rows, cols int) error {
	if rows < 1 || rows > MaxRows {
		return fmt.Errorf("rows must be between 1 and %d, got %d", MaxRows, rows)
	}
	if cols < 1 || cols > MaxCols {
		return fmt.Errorf("cols must be between 1 and %d, got %d", MaxCols, cols)
	}
	return nil
}

// Generate returns rows*cols empty slots in row-major order.
func Generate(rows, cols int) ([]model.Slot, error) {
	if err := ValidateSize(rows, cols); err != nil {
		return nil, err
	}
	slots := make([]model.Slot, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 1; c <= cols; c++ {
			slot, err := emptySlot(r, c)
			if err != nil {
				return nil, err
			}
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

// Extend returns the slots to append when a grid grows from oldRows x oldCols
// to newRows x newCols. New rows are filled across the full new width first,
// then every pre-existing row receives its new columns, including rows that
// fall outside a shrunken row count. Nothing is ever removed. Callers
// holding slots from an earlier, larger grid must drop codes they already have.
func Extend(oldRows, oldCols, newRows, newCols int) ([]model.Slot, error) {
	if err := ValidateSize(newRows, newCols); err != nil {
		return nil, err
	}
	var added []model.Slot
	appendSlot := func(r, c int) error {
		slot, err := emptySlot(r, c)
		if err != nil {
			return err
		}
		added = append(added, slot)
		return nil
	}
	for r := oldRows; r < newRows; r++ {
		for c := 1; c <= newCols; c++ {
			if err := appendSlot(r, c); err != nil {
				return nil, err
			}
		}
	}
	for r := 0; r < oldRows; r++ {
		for c := oldCols + 1; c <= newCols; c++ {
			if err := appendSlot(r, c); err != nil {
				return nil, err
			}
		}
	}
	return added, nil
}

func emptySlot(r, c int) (model.Slot, error) {
	code, err := SlotCode(r, c)
	if err != nil {
		return model.Slot{}, err
	}
	return model.Slot{
		SlotCode: code,
		Price:    decimal.Zero,
	}, nil
}

// Fullness is the share of capacity that is stocked, over slots that hold a
// product, as an integer percentage rounded half up. Empty slots are ignored
// even if they carry stale quantity or capacity values.
func Fullness(slots []model.Slot) int {
	var filled, total int
	for _, s := range slots {
		if !s.HasProduct() {
			continue
		}
		filled += s.Quantity
		total += s.Capacity
	}
	if total <= 0 {
		return 0
	}
	pct := (200*filled + total) / (2 * total)
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}
