package service

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"snacktrack-backend/internal/log"
	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/parse"
)

// RestockLine is one slot that is below capacity.
type RestockLine struct {
	SlotCode  string          `json:"slotCode"`
	ProductID string          `json:"productId"`
	Product   *Ref            `json:"product"`
	Quantity  int             `json:"quantity"`
	Capacity  int             `json:"capacity"`
	Missing   int             `json:"missing"`
	Price     decimal.Decimal `json:"price"`
	Profit    decimal.Decimal `json:"profit"`
}

// RestockPlan lists what must be loaded to bring a machine to capacity.
type RestockPlan struct {
	MachineID    string          `json:"machineId"`
	MachineName  string          `json:"machineName"`
	Lines        []RestockLine   `json:"lines"`
	TotalMissing int             `json:"totalMissing"`
	TotalProfit  decimal.Decimal `json:"totalProfit"`
}

// RefillResult is the outcome of MarkRefilled. Sale is nil when nothing
// was missing.
type RefillResult struct {
	Sale    *model.Sale  `json:"sale"`
	Machine *MachineView `json:"machine"`
}

// RestockService drives the "mark as refilled" workflow: the missing units
// are booked as a sale and the machine is then refilled.
type RestockService struct {
	machines *MachineService
	sales    *SaleService
	now      func() time.Time
	logger   zerolog.Logger
}

// NewRestockService creates a new RestockService.
func NewRestockService(machines *MachineService, sales *SaleService) *RestockService {
	return &RestockService{
		machines: machines,
		sales:    sales,
		now:      time.Now,
		logger:   log.WithComponent("restock"),
	}
}

// Plan builds the restock plan for a machine in grid order.
func (s *RestockService) Plan(ctx context.Context, machineID string) (*RestockPlan, error) {
	m, err := s.machines.Get(ctx, machineID)
	if err != nil {
		return nil, err
	}
	return buildPlan(m), nil
}

func buildPlan(m *MachineView) *RestockPlan {
	plan := &RestockPlan{
		MachineID:   m.ID,
		MachineName: m.Name,
		Lines:       []RestockLine{},
		TotalProfit: decimal.Zero,
	}
	for _, slot := range m.Slots {
		if slot.ProductID == nil || slot.Quantity == slot.Capacity {
			continue
		}
		missing := slot.Capacity - slot.Quantity
		line := RestockLine{
			SlotCode:  slot.SlotCode,
			ProductID: *slot.ProductID,
			Quantity:  slot.Quantity,
			Capacity:  slot.Capacity,
			Missing:   missing,
			Price:     slot.Price,
			Profit:    slot.Price.Mul(decimal.NewFromInt(int64(missing))),
		}
		if slot.Product != nil {
			line.Product = &Ref{ID: slot.Product.ID, Name: slot.Product.Name}
		}
		plan.Lines = append(plan.Lines, line)
		plan.TotalMissing += missing
		plan.TotalProfit = plan.TotalProfit.Add(line.Profit)
	}

	sort.SliceStable(plan.Lines, func(i, j int) bool {
		a, errA := parse.ParseSlotCode(plan.Lines[i].SlotCode)
		b, errB := parse.ParseSlotCode(plan.Lines[j].SlotCode)
		if errA != nil || errB != nil {
			return errA == nil
		}
		return a.Less(b)
	})
	return plan
}

// MarkRefilled books the missing units as a sale and then refills the
// machine. The two steps are independent writes.
func (s *RestockService) MarkRefilled(ctx context.Context, machineID string) (*RefillResult, error) {
	plan, err := s.Plan(ctx, machineID)
	if err != nil {
		return nil, err
	}

	var sale *model.Sale
	if len(plan.Lines) > 0 {
		lines := make([]model.SaleLine, len(plan.Lines))
		for i, l := range plan.Lines {
			productID := l.ProductID
			if l.Product == nil {
				productID = model.UnknownProductPlaceholder
			}
			lines[i] = model.SaleLine{
				ProductID:     productID,
				Quantity:      l.Missing,
				ProductProfit: l.Profit,
			}
		}
		id := plan.MachineID
		sale, err = s.sales.Create(ctx, SaleInput{
			MachineID: &id,
			Date:      s.now().UTC().Format(time.RFC3339),
			Products:  lines,
			AllProfit: plan.TotalProfit,
		})
		if err != nil {
			return nil, err
		}
	}

	machine, err := s.machines.Refill(ctx, machineID)
	if err != nil {
		if sale != nil {
			partialConsistency(loggerFrom(ctx, &s.logger), ReasonRefillAfterSale).
				Err(err).
				Str("machine_id", machineID).
				Str("sale_id", sale.ID).
				Msg("restock sale recorded but machine refill failed")
		}
		return nil, err
	}
	return &RefillResult{Sale: sale, Machine: machine}, nil
}
