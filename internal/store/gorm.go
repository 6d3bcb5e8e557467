package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"snacktrack-backend/internal/model"
)

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- machines ---

func (s *gormStore) CreateMachine(ctx context.Context, m *model.Machine) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create machine: %w", err)
	}
	return nil
}

func (s *gormStore) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	var m model.Machine
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}

// SaveMachine writes every mutable column of m. It never inserts, so a
// machine deleted concurrently stays deleted.
func (s *gormStore) SaveMachine(ctx context.Context, m *model.Machine) error {
	m.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(m).
		Select("name", "location", "rows", "cols", "slots", "status", "fullness", "updated_at").
		Updates(m)
	if res.Error != nil {
		return fmt.Errorf("failed to save machine %s: %w", m.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) DeleteMachine(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.Machine{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete machine %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- products ---

func (s *gormStore) CreateProduct(ctx context.Context, p *model.Product) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (s *gormStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *gormStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := s.db.WithContext(ctx).Order("name, id").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (s *gormStore) ListProductsByID(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []model.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (s *gormStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	p.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(p).
		Select("name", "category", "price", "stock", "updated_at").
		Updates(p)
	if res.Error != nil {
		return fmt.Errorf("failed to update product %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) DeleteProduct(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.Product{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete product %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) IncrementAllocatedCapacity(ctx context.Context, id string, delta int) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ?", id).
		UpdateColumn("allocated_capacity", gorm.Expr("allocated_capacity + ?", delta))
	if res.Error != nil {
		return false, fmt.Errorf("failed to adjust allocated capacity of %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) SetAllocatedCapacity(ctx context.Context, id string, value int) error {
	res := s.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ?", id).
		UpdateColumn("allocated_capacity", value)
	if res.Error != nil {
		return fmt.Errorf("failed to set allocated capacity of %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) DecrementStock(ctx context.Context, id string, qty int) (*model.Product, error) {
	res := s.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ?", id).
		UpdateColumn("stock", gorm.Expr("CASE WHEN stock > ? THEN stock - ? ELSE 0 END", qty, qty))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to decrement stock of %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetProduct(ctx, id)
}

// --- sales ---

func (s *gormStore) CreateSale(ctx context.Context, sale *model.Sale) error {
	if err := s.db.WithContext(ctx).Create(sale).Error; err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}
	return nil
}

func (s *gormStore) ListSales(ctx context.Context, machineID string) ([]model.Sale, error) {
	q := s.db.WithContext(ctx).Order("created_at, id")
	if machineID != "" {
		q = q.Where("machine_id = ?", machineID)
	}
	var sales []model.Sale
	if err := q.Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}

// --- push subscriptions ---

func (s *gormStore) PutSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(sub).Error; err != nil {
			return err
		}

		if err := tx.Where("endpoint = ?", sub.Endpoint).Delete(&model.SubscriptionMachine{}).Error; err != nil {
			return err
		}

		if len(sub.MachineIDs) == 0 {
			return nil
		}
		links := make([]model.SubscriptionMachine, 0, len(sub.MachineIDs))
		for _, id := range sub.MachineIDs {
			links = append(links, model.SubscriptionMachine{Endpoint: sub.Endpoint, MachineID: id})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
	})
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, notFound(err)
	}
	if err := s.db.WithContext(ctx).Model(&model.SubscriptionMachine{}).
		Where("endpoint = ?", endpoint).
		Order("machine_id").
		Pluck("machine_id", &sub.MachineIDs).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("endpoint = ?", endpoint).Delete(&model.SubscriptionMachine{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.PushSubscription{}, "endpoint = ?", endpoint).Error
	})
}

func (s *gormStore) SubscriptionsForMachine(ctx context.Context, machineID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_machines sm ON sm.endpoint = push_subscriptions.endpoint").
		Where("sm.machine_id = ?", machineID).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *gormStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// --- lifecycle ---

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *gormStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
