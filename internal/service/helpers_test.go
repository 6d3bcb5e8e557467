package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/notification"
	"snacktrack-backend/internal/store"
)

// newTestStore opens a private in-memory sqlite database with the schema applied.
func newTestStore(t *testing.T) store.Store {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(model.All()...))
	return store.NewGormStore(gormDB)
}

// recorder collects dispatched alerts.
type recorder struct {
	mu     sync.Mutex
	alerts []notification.Alert
}

func (r *recorder) Dispatch(a notification.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recorder) kinds() []notification.AlertKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []notification.AlertKind
	for _, a := range r.alerts {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

// logContext returns a context carrying a JSON logger that writes to buf.
func logContext(buf *bytes.Buffer) context.Context {
	l := zerolog.New(buf)
	return l.WithContext(context.Background())
}

func createProduct(t *testing.T, s store.Store, name string, stock, allocated int) *model.Product {
	p := &model.Product{
		ID:                uuid.NewString(),
		Name:              name,
		Category:          model.CategoryDrink,
		Price:             decimal.NewFromInt(100),
		Stock:             stock,
		AllocatedCapacity: allocated,
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func allocated(t *testing.T, s store.Store, id string) int {
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.AllocatedCapacity
}

func strPtr(s string) *string {
	return &s
}

var errStoreDown = errors.New("store unavailable")

// failingStore wraps a real store and fails selected writes.
type failingStore struct {
	store.Store
	failDecrement map[string]bool
	failSave      bool
}

func (f *failingStore) DecrementStock(ctx context.Context, id string, qty int) (*model.Product, error) {
	if f.failDecrement[id] {
		return nil, errStoreDown
	}
	return f.Store.DecrementStock(ctx, id, qty)
}

func (f *failingStore) SaveMachine(ctx context.Context, m *model.Machine) error {
	if f.failSave {
		return errStoreDown
	}
	return f.Store.SaveMachine(ctx, m)
}
