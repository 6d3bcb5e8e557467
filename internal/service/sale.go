package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"snacktrack-backend/internal/apperr"
	"snacktrack-backend/internal/log"
	"snacktrack-backend/internal/metrics"
	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/notification"
	"snacktrack-backend/internal/store"
)

// SaleInput is a sale as submitted by a client. AllProfit is trusted as sent.
type SaleInput struct {
	MachineID *string
	Date      string
	Products  []model.SaleLine
	AllProfit decimal.Decimal
}

// SaleLineView is a sale line with its product resolved.
type SaleLineView struct {
	ProductID     string          `json:"productId"`
	Product       *Ref            `json:"product"`
	Quantity      int             `json:"quantity"`
	ProductProfit decimal.Decimal `json:"productProfit"`
}

// SaleView is a sale with machine and products resolved to {id, name}.
type SaleView struct {
	ID        string          `json:"id"`
	MachineID *string         `json:"machineId"`
	Machine   *Ref            `json:"machine"`
	Date      string          `json:"date"`
	Products  []SaleLineView  `json:"products"`
	AllProfit decimal.Decimal `json:"allProfit"`
}

// SaleService records sales and applies their stock decrements.
type SaleService struct {
	store      store.Store
	alerts     notification.Dispatcher
	thresholds Thresholds
	logger     zerolog.Logger
}

// NewSaleService creates a SaleService. A nil dispatcher disables alerts.
func NewSaleService(s store.Store, alerts notification.Dispatcher, thresholds Thresholds) *SaleService {
	if alerts == nil {
		alerts = notification.NopDispatcher{}
	}
	return &SaleService{
		store:      s,
		alerts:     alerts,
		thresholds: thresholds,
		logger:     log.WithComponent("sales"),
	}
}

// Create persists the sale, then decrements stock line by line. A store
// error on a line stops the loop; lines already applied stay applied and
// the sale itself is kept.
func (s *SaleService) Create(ctx context.Context, in SaleInput) (*model.Sale, error) {
	if blank(in.Date) {
		return nil, apperr.Validation("date is required")
	}

	var machineID *string
	if in.MachineID != nil && !blank(*in.MachineID) {
		id := strings.TrimSpace(*in.MachineID)
		machineID = &id
	}
	lines := in.Products
	if lines == nil {
		lines = []model.SaleLine{}
	}

	sale := &model.Sale{
		ID:        uuid.NewString(),
		MachineID: machineID,
		Date:      strings.TrimSpace(in.Date),
		Products:  lines,
		AllProfit: in.AllProfit,
	}
	if err := s.store.CreateSale(ctx, sale); err != nil {
		return nil, apperr.Persistence("create sale", err)
	}
	metrics.SalesRecorded.Inc()

	logger := loggerFrom(ctx, &s.logger).With().Str("sale_id", sale.ID).Logger()

	applied := 0
	for _, line := range sale.Products {
		if !line.AffectsStock() {
			continue
		}
		p, err := s.store.DecrementStock(ctx, line.ProductID, line.Quantity)
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn().Str("product_id", line.ProductID).Msg("sale line references unknown product; stock not changed")
			continue
		}
		if err != nil {
			partialConsistency(&logger, ReasonSaleStockAborted).
				Err(err).
				Str("product_id", line.ProductID).
				Int("applied_lines", applied).
				Msg("sale stored but stock decrements aborted")
			return nil, apperr.Persistence("decrement stock", err)
		}
		applied++
		metrics.UnitsSold.Add(float64(line.Quantity))
		s.checkStock(*p)
	}

	logger.Info().Int("lines", len(sale.Products)).Int("applied_lines", applied).Msg("sale recorded")
	return sale, nil
}

func (s *SaleService) checkStock(p model.Product) {
	if p.Stock > s.thresholds.LowStock {
		return
	}
	s.alerts.Dispatch(notification.Alert{
		Kind:      notification.AlertLowStock,
		ProductID: p.ID,
		Title:     p.Name,
		Body:      fmt.Sprintf("%s stock is down to %d", p.Name, p.Stock),
	})
}

// List returns sales oldest first, optionally filtered by machine.
func (s *SaleService) List(ctx context.Context, machineID string) ([]SaleView, error) {
	sales, err := s.store.ListSales(ctx, machineID)
	if err != nil {
		return nil, apperr.Persistence("list sales", err)
	}
	if len(sales) == 0 {
		return []SaleView{}, nil
	}

	machines, err := s.store.ListMachines(ctx)
	if err != nil {
		return nil, apperr.Persistence("list machines", err)
	}
	machineNames := make(map[string]string, len(machines))
	for _, m := range machines {
		machineNames[m.ID] = m.Name
	}

	var ids []string
	for _, sale := range sales {
		for _, line := range sale.Products {
			ids = append(ids, line.ProductID)
		}
	}
	products, err := productIndex(ctx, s.store, ids)
	if err != nil {
		return nil, err
	}

	views := make([]SaleView, len(sales))
	for i, sale := range sales {
		view := SaleView{
			ID:        sale.ID,
			MachineID: sale.MachineID,
			Date:      sale.Date,
			Products:  make([]SaleLineView, len(sale.Products)),
			AllProfit: sale.AllProfit,
		}
		if sale.MachineID != nil {
			if name, ok := machineNames[*sale.MachineID]; ok {
				view.Machine = &Ref{ID: *sale.MachineID, Name: name}
			}
		}
		for j, line := range sale.Products {
			lv := SaleLineView{
				ProductID:     line.ProductID,
				Quantity:      line.Quantity,
				ProductProfit: line.ProductProfit,
			}
			if p, ok := products[line.ProductID]; ok {
				lv.Product = &Ref{ID: p.ID, Name: p.Name}
			}
			view.Products[j] = lv
		}
		views[i] = view
	}
	return views, nil
}
