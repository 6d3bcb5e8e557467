package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var slotCodeRe = regexp.MustCompile(`^([A-Za-z])\s*(\d+)$`)

// SlotAddress is the grid position encoded in a slot code such as "B12".
type SlotAddress struct {
	Row int // zero-based
	Col int // one-based
}

// Less orders addresses row first, then column.
func (a SlotAddress) Less(b SlotAddress) bool {
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Col < b.Col
}

// ParseSlotCode splits a slot code into its row index and column number.
func ParseSlotCode(raw string) (SlotAddress, error) {
	m := slotCodeRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return SlotAddress{}, fmt.Errorf("invalid slot code: %q", raw)
	}
	col, err := strconv.Atoi(m[2])
	if err != nil || col < 1 {
		return SlotAddress{}, fmt.Errorf("invalid slot column in %q", raw)
	}
	row := int(strings.ToUpper(m[1])[0] - 'A')
	return SlotAddress{Row: row, Col: col}, nil
}

// NormalizeSlotCode upper-cases the row letter and strips whitespace, so
// "b 3" and "B3" address the same slot.
func NormalizeSlotCode(raw string) string {
	addr, err := ParseSlotCode(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return string(rune('A'+addr.Row)) + strconv.Itoa(addr.Col)
}
