package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"snacktrack-backend/config"
	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/store"
)

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

// seed stores two products and a machine whose slots hold 4 of "ok" and
// 6 of "drifted", plus 2 of a product that no longer exists.
func seed(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, p := range []model.Product{
		{ID: "ok", Name: "Cola", Category: model.CategoryDrink, Price: decimal.NewFromInt(1), AllocatedCapacity: 4},
		{ID: "drifted", Name: "Chips", Category: model.CategoryFood, Price: decimal.NewFromInt(1), AllocatedCapacity: 9},
	} {
		p := p
		require.NoError(t, s.CreateProduct(ctx, &p))
	}

	ok, drifted, gone := "ok", "drifted", "gone"
	require.NoError(t, s.CreateMachine(ctx, &model.Machine{
		ID:       "m1",
		Name:     "Lobby",
		Location: "Hall",
		Rows:     1,
		Cols:     4,
		Status:   model.StatusActive,
		Slots: []model.Slot{
			{SlotCode: "A1", Product: &ok, Capacity: 4},
			{SlotCode: "A2", Product: &drifted, Capacity: 2},
			{SlotCode: "A3", Product: &drifted, Capacity: 4},
			{SlotCode: "A4", Product: &gone, Capacity: 2},
		},
	}))
}

func TestAuditOnce_ReportsDrift(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	svc := NewService(config.AuditConfig{}, s)

	report, err := svc.AuditOnce(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.MachinesScanned)
	assert.Equal(t, 2, report.ProductsScanned)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, Drift{ProductID: "drifted", Name: "Chips", Stored: 9, Expected: 6}, report.Drifts[0])
	assert.Equal(t, map[string]int{"gone": 2}, report.DanglingProducts)

	p, err := s.GetProduct(context.Background(), "drifted")
	require.NoError(t, err)
	assert.Equal(t, 9, p.AllocatedCapacity, "report-only mode leaves the value alone")
}

func TestAuditOnce_Apply(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	svc := NewService(config.AuditConfig{}, s)

	report, err := svc.AuditOnce(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	assert.True(t, report.Drifts[0].Fixed)

	p, err := s.GetProduct(context.Background(), "drifted")
	require.NoError(t, err)
	assert.Equal(t, 6, p.AllocatedCapacity)

	again, err := svc.AuditOnce(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, again.Drifts)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := newTestStore(t)
	svc := NewService(config.AuditConfig{Enabled: true, Interval: time.Hour}, s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("auditor did not stop after cancel")
	}
}

func TestRun_Disabled(t *testing.T) {
	svc := NewService(config.AuditConfig{Enabled: false}, newTestStore(t))

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled auditor should return immediately")
	}
}
