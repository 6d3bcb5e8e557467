package store

import (
	"context"
	"errors"

	"snacktrack-backend/internal/model"
)

// ErrNotFound is returned when the addressed record does not exist.
var ErrNotFound = errors.New("record not found")

// MachineStore persists machines. SaveMachine overwrites the whole machine
// document; concurrent writers are last-writer-wins.
type MachineStore interface {
	CreateMachine(ctx context.Context, m *model.Machine) error
	GetMachine(ctx context.Context, id string) (*model.Machine, error)
	ListMachines(ctx context.Context) ([]model.Machine, error)
	SaveMachine(ctx context.Context, m *model.Machine) error
	DeleteMachine(ctx context.Context, id string) error
}

// ProductStore persists products and their two counters. The counter
// updates are single atomic statements, never read-modify-write.
type ProductStore interface {
	CreateProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	ListProductsByID(ctx context.Context, ids []string) ([]model.Product, error)
	// UpdateProduct overwrites name, category, price and stock.
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, id string) error

	// IncrementAllocatedCapacity adds delta to the product's allocated
	// capacity. It reports false when no product matched.
	IncrementAllocatedCapacity(ctx context.Context, id string, delta int) (bool, error)
	SetAllocatedCapacity(ctx context.Context, id string, value int) error
	// DecrementStock lowers stock by qty, flooring at zero, and returns
	// the product as stored afterwards.
	DecrementStock(ctx context.Context, id string, qty int) (*model.Product, error)
}

// SaleStore persists append-only sales.
type SaleStore interface {
	CreateSale(ctx context.Context, s *model.Sale) error
	// ListSales returns sales oldest first; machineID filters when non-empty.
	ListSales(ctx context.Context, machineID string) ([]model.Sale, error)
}

// SubscriptionStore persists push subscriptions for restock alerts.
type SubscriptionStore interface {
	// PutSubscription creates or replaces a subscription and its machine set.
	PutSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForMachine(ctx context.Context, machineID string) ([]model.PushSubscription, error)
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
}

// Store defines the interface for all persistence operations.
type Store interface {
	MachineStore
	ProductStore
	SaleStore
	SubscriptionStore

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
