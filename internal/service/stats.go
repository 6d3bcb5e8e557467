package service

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"snacktrack-backend/internal/apperr"
	"snacktrack-backend/internal/store"
)

// OtherShareLabel names the bucket that collects products below
// MinSharePercent of the units sold.
const (
	OtherShareLabel = "other"
	MinSharePercent = 5
)

// DayProfit is the profit booked on one calendar day.
type DayProfit struct {
	Date   string          `json:"date"`
	Profit decimal.Decimal `json:"profit"`
}

// ProductUnits is the number of units sold of one product.
type ProductUnits struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Units     int    `json:"units"`
}

// ShareSlice is one slice of the units-sold pie chart.
type ShareSlice struct {
	Label   string  `json:"label"`
	Units   int     `json:"units"`
	Percent float64 `json:"percent"`
}

// Stats aggregates sales for the statistics dashboard.
type Stats struct {
	MachineID       string          `json:"machineId,omitempty"`
	SaleCount       int             `json:"saleCount"`
	TotalUnits      int             `json:"totalUnits"`
	TotalProfit     decimal.Decimal `json:"totalProfit"`
	ProfitPerDay    []DayProfit     `json:"profitPerDay"`
	UnitsPerProduct []ProductUnits  `json:"unitsPerProduct"`
	Share           []ShareSlice    `json:"share"`
}

// StatsService computes sales statistics on demand.
type StatsService struct {
	store store.Store
}

// NewStatsService creates a new StatsService.
func NewStatsService(s store.Store) *StatsService {
	return &StatsService{store: s}
}

// Compute aggregates every sale, or only those of machineID when set.
func (s *StatsService) Compute(ctx context.Context, machineID string) (*Stats, error) {
	sales, err := s.store.ListSales(ctx, machineID)
	if err != nil {
		return nil, apperr.Persistence("list sales", err)
	}

	stats := &Stats{
		MachineID:       machineID,
		SaleCount:       len(sales),
		TotalProfit:     decimal.Zero,
		ProfitPerDay:    []DayProfit{},
		UnitsPerProduct: []ProductUnits{},
		Share:           []ShareSlice{},
	}

	perDay := make(map[string]decimal.Decimal)
	units := make(map[string]int)
	var ids []string
	for _, sale := range sales {
		day, _, _ := strings.Cut(sale.Date, "T")
		perDay[day] = perDay[day].Add(sale.AllProfit)
		stats.TotalProfit = stats.TotalProfit.Add(sale.AllProfit)
		for _, line := range sale.Products {
			if _, seen := units[line.ProductID]; !seen {
				ids = append(ids, line.ProductID)
			}
			units[line.ProductID] += line.Quantity
			stats.TotalUnits += line.Quantity
		}
	}

	for day, profit := range perDay {
		stats.ProfitPerDay = append(stats.ProfitPerDay, DayProfit{Date: day, Profit: profit})
	}
	sort.Slice(stats.ProfitPerDay, func(i, j int) bool {
		return stats.ProfitPerDay[i].Date < stats.ProfitPerDay[j].Date
	})

	products, err := productIndex(ctx, s.store, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		pu := ProductUnits{ProductID: id, Units: units[id]}
		if p, ok := products[id]; ok {
			pu.Name = p.Name
		}
		stats.UnitsPerProduct = append(stats.UnitsPerProduct, pu)
	}
	sort.SliceStable(stats.UnitsPerProduct, func(i, j int) bool {
		return stats.UnitsPerProduct[i].Units > stats.UnitsPerProduct[j].Units
	})

	stats.Share = share(stats.UnitsPerProduct, stats.TotalUnits)
	return stats, nil
}

// share folds products under MinSharePercent of total into a single
// OtherShareLabel slice placed last.
func share(perProduct []ProductUnits, total int) []ShareSlice {
	out := []ShareSlice{}
	if total <= 0 {
		return out
	}
	other := 0
	for _, pu := range perProduct {
		if pu.Units*100 < MinSharePercent*total {
			other += pu.Units
			continue
		}
		label := pu.Name
		if label == "" {
			label = pu.ProductID
		}
		out = append(out, ShareSlice{Label: label, Units: pu.Units, Percent: percent(pu.Units, total)})
	}
	if other > 0 {
		out = append(out, ShareSlice{Label: OtherShareLabel, Units: other, Percent: percent(other, total)})
	}
	return out
}

func percent(part, total int) float64 {
	return decimal.NewFromInt(int64(part) * 100).
		Div(decimal.NewFromInt(int64(total))).
		Round(1).
		InexactFloat64()
}
