package store

import (
	"context"
	"database/sql/driver"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/slotgrid"
)

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

// newSQLiteStore opens a private in-memory database with the schema applied.
func newSQLiteStore(t *testing.T) Store {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(model.All()...))
	return NewGormStore(gormDB)
}

func seedProduct(t *testing.T, s Store, stock, allocated int) *model.Product {
	p := &model.Product{
		ID:                uuid.NewString(),
		Name:              "Cola",
		Category:          model.CategoryDrink,
		Price:             decimal.NewFromInt(150),
		Stock:             stock,
		AllocatedCapacity: allocated,
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func seedMachine(t *testing.T, s Store, rows, cols int) *model.Machine {
	slots, err := slotgrid.Generate(rows, cols)
	require.NoError(t, err)
	m := &model.Machine{
		ID:       uuid.NewString(),
		Name:     "Lobby",
		Location: "47.5,19.05",
		Rows:     rows,
		Cols:     cols,
		Slots:    slots,
		Status:   model.StatusOffline,
	}
	require.NoError(t, s.CreateMachine(context.Background(), m))
	return m
}

func TestGormStore_MachineRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	m := seedMachine(t, s, 2, 3)

	got, err := s.GetMachine(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Name, got.Name)
	require.Len(t, got.Slots, 6)
	assert.Equal(t, "A1", got.Slots[0].SlotCode)
	assert.Nil(t, got.Slots[0].Product)

	productID := "p1"
	got.Slots[4].Product = &productID
	got.Slots[4].Quantity = 2
	got.Slots[4].Capacity = 5
	got.Slots[4].Price = decimal.RequireFromString("199.9")
	got.Fullness = 40
	got.Status = model.StatusActive
	require.NoError(t, s.SaveMachine(ctx, got))

	again, err := s.GetMachine(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, again.Status)
	assert.Equal(t, 40, again.Fullness)
	assert.Equal(t, "p1", again.Slots[4].ProductID())
	assert.True(t, decimal.RequireFromString("199.9").Equal(again.Slots[4].Price))

	list, err := s.ListMachines(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGormStore_MissingRecords(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.GetMachine(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.SaveMachine(ctx, &model.Machine{ID: "nope", Status: model.StatusOffline})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteMachine(ctx, "nope"), ErrNotFound)
	assert.ErrorIs(t, s.DeleteProduct(ctx, "nope"), ErrNotFound)
	assert.ErrorIs(t, s.UpdateProduct(ctx, &model.Product{ID: "nope"}), ErrNotFound)

	found, err := s.IncrementAllocatedCapacity(ctx, "nope", 3)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = s.DecrementStock(ctx, "nope", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_DeletedMachineIsNotResurrected(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	m := seedMachine(t, s, 1, 1)

	require.NoError(t, s.DeleteMachine(ctx, m.ID))
	assert.ErrorIs(t, s.SaveMachine(ctx, m), ErrNotFound)

	_, err := s.GetMachine(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_IncrementAllocatedCapacity(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 10, 5)

	found, err := s.IncrementAllocatedCapacity(ctx, p.ID, 3)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = s.IncrementAllocatedCapacity(ctx, p.ID, -5)
	require.NoError(t, err)
	assert.True(t, found)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AllocatedCapacity)
	assert.Equal(t, 10, got.Stock)
}

func TestGormStore_DecrementStock(t *testing.T) {
	testCases := []struct {
		name  string
		stock int
		qty   int
		want  int
	}{
		{"partial", 10, 3, 7},
		{"exact", 10, 10, 0},
		{"floors at zero", 10, 15, 0},
		{"already empty", 0, 2, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSQLiteStore(t)
			p := seedProduct(t, s, tc.stock, 0)

			got, err := s.DecrementStock(context.Background(), p.ID, tc.qty)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Stock)
		})
	}
}

func TestGormStore_UpdateProductKeepsAllocatedCapacity(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 10, 8)

	update := &model.Product{
		ID:       p.ID,
		Name:     "Cola Zero",
		Category: model.CategoryDrink,
		Price:    decimal.NewFromInt(170),
		Stock:    0,
	}
	require.NoError(t, s.UpdateProduct(ctx, update))

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cola Zero", got.Name)
	assert.Equal(t, 0, got.Stock)
	assert.Equal(t, 8, got.AllocatedCapacity)
	assert.True(t, decimal.NewFromInt(170).Equal(got.Price))
}

// Two writers read the same machine and edit different slots. Whole-document
// saves mean the second save silently drops the first edit.
func TestGormStore_ConcurrentSavesLastWriterWins(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	m := seedMachine(t, s, 1, 2)

	first, err := s.GetMachine(ctx, m.ID)
	require.NoError(t, err)
	second, err := s.GetMachine(ctx, m.ID)
	require.NoError(t, err)

	a, b := "product-a", "product-b"
	first.Slots[0].Product = &a
	first.Slots[0].Capacity = 4
	second.Slots[1].Product = &b
	second.Slots[1].Capacity = 6

	require.NoError(t, s.SaveMachine(ctx, first))
	require.NoError(t, s.SaveMachine(ctx, second))

	got, err := s.GetMachine(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Slots[0].Product, "first writer's edit is lost")
	assert.Equal(t, "product-b", got.Slots[1].ProductID())
}

func TestGormStore_Sales(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	machineID := "m1"

	for i, mid := range []*string{&machineID, nil} {
		sale := &model.Sale{
			ID:        uuid.NewString(),
			MachineID: mid,
			Date:      fmt.Sprintf("2024-05-0%dT10:00:00Z", i+1),
			Products: []model.SaleLine{
				{ProductID: "p1", Quantity: 4, ProductProfit: decimal.NewFromInt(400)},
				{ProductID: model.NoProductPlaceholder, Quantity: 1, ProductProfit: decimal.Zero},
			},
			AllProfit: decimal.NewFromInt(400),
		}
		require.NoError(t, s.CreateSale(ctx, sale))
	}

	all, err := s.ListSales(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2024-05-01T10:00:00Z", all[0].Date)
	require.Len(t, all[0].Products, 2)
	assert.Equal(t, 4, all[0].Products[0].Quantity)
	assert.True(t, decimal.NewFromInt(400).Equal(all[0].AllProfit))

	filtered, err := s.ListSales(ctx, machineID)
	require.NoError(t, err)
	assert.Len(t, filtered, 1)
}

func TestGormStore_Subscriptions(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	sub := &model.PushSubscription{
		Endpoint:   "https://push.example.com/abc",
		P256DH:     "key",
		Auth:       "auth",
		MachineIDs: []string{"m1", "m2"},
	}
	require.NoError(t, s.PutSubscription(ctx, sub))

	got, err := s.GetSubscription(ctx, sub.Endpoint)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, got.MachineIDs)

	sub.MachineIDs = []string{"m2"}
	sub.Auth = "auth2"
	require.NoError(t, s.PutSubscription(ctx, sub))

	forM1, err := s.SubscriptionsForMachine(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, forM1)

	forM2, err := s.SubscriptionsForMachine(ctx, "m2")
	require.NoError(t, err)
	require.Len(t, forM2, 1)
	assert.Equal(t, "auth2", forM2[0].Auth)

	require.NoError(t, s.DeleteSubscription(ctx, sub.Endpoint))
	_, err = s.GetSubscription(ctx, sub.Endpoint)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_CounterStatements(t *testing.T) {
	testCases := []struct {
		name             string
		mockExpectations func(mock sqlmock.Sqlmock)
		run              func(s Store) error
	}{
		{
			name: "allocated capacity uses an in-place increment",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "products" SET "allocated_capacity"=allocated_capacity + $1 WHERE id = $2`)).
					WithArgs(-5, "p1").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			run: func(s Store) error {
				found, err := s.IncrementAllocatedCapacity(context.Background(), "p1", -5)
				if err == nil && !found {
					return fmt.Errorf("expected product to be found")
				}
				return err
			},
		},
		{
			name: "stock decrement floors in the statement",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "products" SET "stock"=CASE WHEN stock > $1 THEN stock - $2 ELSE 0 END WHERE id = $3`)).
					WithArgs(3, 3, "p1").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "products" WHERE id = $1`)).
					WithArgs("p1", Any{}).
					WillReturnRows(sqlmock.NewRows([]string{"id", "name", "category", "price", "stock", "allocated_capacity"}).
						AddRow("p1", "Cola", "Drink", "150", 7, 0))
			},
			run: func(s Store) error {
				p, err := s.DecrementStock(context.Background(), "p1", 3)
				if err == nil && p.Stock != 7 {
					return fmt.Errorf("unexpected stock %d", p.Stock)
				}
				return err
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newMockDB(t)
			s := NewGormStore(gormDB)

			tc.mockExpectations(mock)

			assert.NoError(t, tc.run(s))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}
