package parse

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ParseLocation reads a "lat,lng" location string. Free-text locations
// return an error.
func ParseLocation(raw string) (Coordinates, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return Coordinates{}, fmt.Errorf("location %q is not a lat,lng pair", raw)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid latitude in %q: %w", raw, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid longitude in %q: %w", raw, err)
	}

	if lat < -90 || lat > 90 {
		return Coordinates{}, fmt.Errorf("latitude %v out of range", lat)
	}
	if lng < -180 || lng > 180 {
		return Coordinates{}, fmt.Errorf("longitude %v out of range", lng)
	}
	return Coordinates{Lat: lat, Lng: lng}, nil
}
