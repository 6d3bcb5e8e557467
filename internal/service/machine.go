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
	"snacktrack-backend/internal/parse"
	"snacktrack-backend/internal/slotgrid"
	"snacktrack-backend/internal/store"
)

// MachineInput carries the editable machine fields. Update requires all of
// them; Create ignores an empty Status.
type MachineInput struct {
	Name     string
	Location string
	Rows     int
	Cols     int
	Status   model.MachineStatus
}

// SlotInput overwrites one slot. A nil or blank Product empties the slot.
type SlotInput struct {
	MachineID string
	SlotCode  string
	Product   *string
	Quantity  int
	Capacity  int
	Price     decimal.Decimal
}

// MachineService owns every mutation of a machine's slot grid and keeps the
// derived fullness and per-product allocated capacity in step with it.
type MachineService struct {
	store      store.Store
	alerts     notification.Dispatcher
	thresholds Thresholds
	logger     zerolog.Logger
}

// NewMachineService creates a MachineService. A nil dispatcher disables alerts.
func NewMachineService(s store.Store, alerts notification.Dispatcher, thresholds Thresholds) *MachineService {
	if alerts == nil {
		alerts = notification.NopDispatcher{}
	}
	return &MachineService{
		store:      s,
		alerts:     alerts,
		thresholds: thresholds,
		logger:     log.WithComponent("machines"),
	}
}

func validateMachineInput(in MachineInput) error {
	if blank(in.Name) {
		return apperr.Validation("name is required")
	}
	if blank(in.Location) {
		return apperr.Validation("location is required")
	}
	if err := slotgrid.ValidateSize(in.Rows, in.Cols); err != nil {
		return apperr.Validation("%v", err)
	}
	return nil
}

// Create builds a machine with an empty rows x cols grid.
func (s *MachineService) Create(ctx context.Context, in MachineInput) (*MachineView, error) {
	if err := validateMachineInput(in); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = model.StatusOffline
	}
	if !status.Valid() {
		return nil, apperr.Validation("invalid status %q", status)
	}

	slots, err := slotgrid.Generate(in.Rows, in.Cols)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}

	m := &model.Machine{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(in.Name),
		Location: strings.TrimSpace(in.Location),
		Rows:     in.Rows,
		Cols:     in.Cols,
		Slots:    slots,
		Status:   status,
		Fullness: slotgrid.Fullness(slots),
	}
	if err := s.store.CreateMachine(ctx, m); err != nil {
		return nil, apperr.Persistence("create machine", err)
	}
	metrics.MachinesCreated.Inc()

	loggerFrom(ctx, &s.logger).Info().
		Str("machine_id", m.ID).
		Int("rows", m.Rows).
		Int("cols", m.Cols).
		Msg("machine created")

	return s.view(ctx, *m)
}

// Get returns one machine with resolved slots.
func (s *MachineService) Get(ctx context.Context, id string) (*MachineView, error) {
	m, err := s.store.GetMachine(ctx, id)
	if err != nil {
		return nil, lookupError("machine", id, err)
	}
	return s.view(ctx, *m)
}

// List returns every machine with resolved slots.
func (s *MachineService) List(ctx context.Context) ([]MachineView, error) {
	machines, err := s.store.ListMachines(ctx)
	if err != nil {
		return nil, apperr.Persistence("list machines", err)
	}
	return resolveMachines(ctx, s.store, machines...)
}

// Update overwrites the machine fields and grows the grid when rows or cols
// increase. Shrinking only changes the recorded dimensions; existing slots
// are never removed.
func (s *MachineService) Update(ctx context.Context, id string, in MachineInput) (*MachineView, error) {
	m, err := s.store.GetMachine(ctx, id)
	if err != nil {
		return nil, lookupError("machine", id, err)
	}
	if err := validateMachineInput(in); err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, apperr.Validation("invalid status %q", in.Status)
	}

	oldRows, oldCols := m.Rows, m.Cols
	m.Name = strings.TrimSpace(in.Name)
	m.Location = strings.TrimSpace(in.Location)
	m.Rows = in.Rows
	m.Cols = in.Cols
	m.Status = in.Status

	added, err := slotgrid.Extend(oldRows, oldCols, m.Rows, m.Cols)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	for _, slot := range added {
		// Slots kept from an earlier shrink already hold this code.
		if m.SlotIndex(slot.SlotCode) >= 0 {
			continue
		}
		m.Slots = append(m.Slots, slot)
	}

	if m.Rows < oldRows || m.Cols < oldCols {
		loggerFrom(ctx, &s.logger).Warn().
			Str("machine_id", m.ID).
			Str("from", fmt.Sprintf("%dx%d", oldRows, oldCols)).
			Str("to", fmt.Sprintf("%dx%d", m.Rows, m.Cols)).
			Msg("grid shrunk; slots outside the new bounds are kept")
	}

	m.Fullness = slotgrid.Fullness(m.Slots)
	if err := s.save(ctx, m); err != nil {
		return nil, err
	}
	return s.view(ctx, *m)
}

// Delete removes the machine. Allocated capacity held by its slots is left
// on the products and reported as a partial_consistency event.
func (s *MachineService) Delete(ctx context.Context, id string) error {
	m, err := s.store.GetMachine(ctx, id)
	if err != nil {
		return lookupError("machine", id, err)
	}
	if err := s.store.DeleteMachine(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFoundWithID("machine", id)
		}
		return apperr.Persistence("delete machine", err)
	}

	held := make(map[string]int)
	for _, slot := range m.Slots {
		if slot.HasProduct() && slot.Capacity != 0 {
			held[*slot.Product] += slot.Capacity
		}
	}
	logger := loggerFrom(ctx, &s.logger)
	if len(held) > 0 {
		dict := zerolog.Dict()
		for productID, capacity := range held {
			dict = dict.Int(productID, capacity)
		}
		partialConsistency(logger, ReasonMachineDeleted).
			Str("machine_id", id).
			Dict("allocated_capacity", dict).
			Msg("machine deleted; product allocated capacity not released")
	}
	logger.Info().Str("machine_id", id).Msg("machine deleted")
	return nil
}

// UpdateSlot overwrites one slot and moves allocated capacity from the
// previous product to the new one. The machine is saved first, then the
// previous product is decremented, then the new product is incremented.
// A failure part way leaves the earlier steps in place.
func (s *MachineService) UpdateSlot(ctx context.Context, in SlotInput) (*MachineView, error) {
	m, err := s.store.GetMachine(ctx, in.MachineID)
	if err != nil {
		return nil, lookupError("machine", in.MachineID, err)
	}

	code := parse.NormalizeSlotCode(in.SlotCode)
	idx := m.SlotIndex(code)
	if idx < 0 {
		return nil, apperr.NotFound("slot").WithDetail("slotCode", in.SlotCode)
	}

	switch {
	case in.Quantity < 0:
		return nil, apperr.Validation("quantity must not be negative")
	case in.Capacity < 0:
		return nil, apperr.Validation("capacity must not be negative")
	case in.Quantity > in.Capacity:
		return nil, apperr.Validation("quantity %d exceeds capacity %d", in.Quantity, in.Capacity)
	case in.Price.IsNegative():
		return nil, apperr.Validation("price must not be negative")
	}

	var product *string
	if in.Product != nil && !blank(*in.Product) {
		id := strings.TrimSpace(*in.Product)
		product = &id
	}

	prior := m.Slots[idx]
	m.Slots[idx] = model.Slot{
		SlotCode: prior.SlotCode,
		Product:  product,
		Quantity: in.Quantity,
		Capacity: in.Capacity,
		Price:    in.Price,
	}
	m.Fullness = slotgrid.Fullness(m.Slots)

	if err := s.save(ctx, m); err != nil {
		return nil, err
	}
	metrics.SlotUpdates.Inc()

	logger := loggerFrom(ctx, &s.logger).With().
		Str("machine_id", m.ID).
		Str("slot", code).
		Logger()

	if prior.HasProduct() && prior.Capacity != 0 {
		if err := s.adjustAllocation(ctx, &logger, *prior.Product, -prior.Capacity); err != nil {
			return nil, err
		}
	}
	if product != nil && in.Capacity != 0 {
		if err := s.adjustAllocation(ctx, &logger, *product, in.Capacity); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.GetMachine(ctx, m.ID)
	if err != nil {
		return nil, lookupError("machine", m.ID, err)
	}
	s.checkFullness(*updated)
	return s.view(ctx, *updated)
}

func (s *MachineService) adjustAllocation(ctx context.Context, logger *zerolog.Logger, productID string, delta int) error {
	found, err := s.store.IncrementAllocatedCapacity(ctx, productID, delta)
	if err != nil {
		partialConsistency(logger, ReasonAllocationFailed).
			Err(err).
			Str("product_id", productID).
			Int("delta", delta).
			Msg("slot saved but allocated capacity update failed")
		return apperr.Persistence("update allocated capacity", err)
	}
	if !found {
		partialConsistency(logger, ReasonAllocationMissing).
			Str("product_id", productID).
			Int("delta", delta).
			Msg("slot references a product that does not exist")
	}
	return nil
}

// Refill tops every product-bearing slot up to its capacity. It does not
// record a sale.
func (s *MachineService) Refill(ctx context.Context, id string) (*MachineView, error) {
	m, err := s.store.GetMachine(ctx, id)
	if err != nil {
		return nil, lookupError("machine", id, err)
	}
	for i := range m.Slots {
		if m.Slots[i].HasProduct() {
			m.Slots[i].Quantity = m.Slots[i].Capacity
		}
	}
	m.Fullness = slotgrid.Fullness(m.Slots)

	if err := s.save(ctx, m); err != nil {
		return nil, err
	}
	metrics.Refills.Inc()
	loggerFrom(ctx, &s.logger).Info().Str("machine_id", id).Int("fullness", m.Fullness).Msg("machine refilled")

	return s.view(ctx, *m)
}

func (s *MachineService) save(ctx context.Context, m *model.Machine) error {
	if err := s.store.SaveMachine(ctx, m); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFoundWithID("machine", m.ID)
		}
		return apperr.Persistence("save machine", err)
	}
	return nil
}

func (s *MachineService) view(ctx context.Context, m model.Machine) (*MachineView, error) {
	views, err := resolveMachines(ctx, s.store, m)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *MachineService) checkFullness(m model.Machine) {
	if s.thresholds.Fullness <= 0 || m.Fullness >= s.thresholds.Fullness {
		return
	}
	if !hasStockedSlots(m) {
		return
	}
	s.alerts.Dispatch(notification.Alert{
		Kind:      notification.AlertLowFullness,
		MachineID: m.ID,
		Title:     m.Name,
		Body:      fmt.Sprintf("%s is %d%% full", m.Name, m.Fullness),
	})
}

func hasStockedSlots(m model.Machine) bool {
	for _, s := range m.Slots {
		if s.HasProduct() && s.Capacity > 0 {
			return true
		}
	}
	return false
}
