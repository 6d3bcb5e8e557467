package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"snacktrack-backend/internal/apperr"
	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/store"
)

// SlotView is a slot as returned to clients: the product reference is
// resolved to the full product, or null when empty or dangling.
type SlotView struct {
	SlotCode  string          `json:"slotCode"`
	ProductID *string         `json:"productId"`
	Product   *model.Product  `json:"product"`
	Quantity  int             `json:"quantity"`
	Capacity  int             `json:"capacity"`
	Price     decimal.Decimal `json:"price"`
}

// MachineView is a machine with resolved slots.
type MachineView struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Location  string              `json:"location"`
	Rows      int                 `json:"rows"`
	Cols      int                 `json:"cols"`
	Slots     []SlotView          `json:"slots"`
	Status    model.MachineStatus `json:"status"`
	Fullness  int                 `json:"fullness"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Ref is a lightweight {id, name} reference used in sale listings.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// productIndex loads every product referenced by ids, keyed by id.
func productIndex(ctx context.Context, s store.ProductStore, ids []string) (map[string]model.Product, error) {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		uniq = append(uniq, id)
	}

	products, err := s.ListProductsByID(ctx, uniq)
	if err != nil {
		return nil, apperr.Persistence("load products", err)
	}
	index := make(map[string]model.Product, len(products))
	for _, p := range products {
		index[p.ID] = p
	}
	return index, nil
}

func slotProductIDs(machines ...model.Machine) []string {
	var ids []string
	for _, m := range machines {
		for _, s := range m.Slots {
			if s.HasProduct() {
				ids = append(ids, *s.Product)
			}
		}
	}
	return ids
}

func newMachineView(m model.Machine, products map[string]model.Product) MachineView {
	slots := make([]SlotView, len(m.Slots))
	for i, s := range m.Slots {
		view := SlotView{
			SlotCode:  s.SlotCode,
			ProductID: s.Product,
			Quantity:  s.Quantity,
			Capacity:  s.Capacity,
			Price:     s.Price,
		}
		if s.HasProduct() {
			if p, ok := products[*s.Product]; ok {
				view.Product = &p
			}
		}
		slots[i] = view
	}
	return MachineView{
		ID:        m.ID,
		Name:      m.Name,
		Location:  m.Location,
		Rows:      m.Rows,
		Cols:      m.Cols,
		Slots:     slots,
		Status:    m.Status,
		Fullness:  m.Fullness,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// resolveMachines turns machines into views with a single product lookup.
func resolveMachines(ctx context.Context, s store.ProductStore, machines ...model.Machine) ([]MachineView, error) {
	products, err := productIndex(ctx, s, slotProductIDs(machines...))
	if err != nil {
		return nil, err
	}
	views := make([]MachineView, len(machines))
	for i, m := range machines {
		views[i] = newMachineView(m, products)
	}
	return views, nil
}
