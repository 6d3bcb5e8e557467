package service

import (
	"context"

	"snacktrack-backend/internal/apperr"
	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/parse"
)

// MapMarker is a machine placed on the fleet map.
type MapMarker struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Status   model.MachineStatus `json:"status"`
	Fullness int                 `json:"fullness"`
	Lat      float64             `json:"lat"`
	Lng      float64             `json:"lng"`
}

// Markers returns map markers for machines whose location is a "lat,lng"
// pair. Machines with free-text locations are left out.
func (s *MachineService) Markers(ctx context.Context) ([]MapMarker, error) {
	machines, err := s.store.ListMachines(ctx)
	if err != nil {
		return nil, apperr.Persistence("list machines", err)
	}
	markers := []MapMarker{}
	for _, m := range machines {
		at, err := parse.ParseLocation(m.Location)
		if err != nil {
			continue
		}
		markers = append(markers, MapMarker{
			ID:       m.ID,
			Name:     m.Name,
			Status:   m.Status,
			Fullness: m.Fullness,
			Lat:      at.Lat,
			Lng:      at.Lng,
		})
	}
	return markers, nil
}
