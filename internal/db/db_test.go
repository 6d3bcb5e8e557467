package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snacktrack-backend/config"
	"snacktrack-backend/internal/model"
)

func TestInit_SQLiteMigrates(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		DSN:          "file:dbinit?mode=memory&cache=shared",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}

	gormDB, err := Init(cfg)
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	for _, m := range model.All() {
		assert.True(t, gormDB.Migrator().HasTable(m), "missing table for %T", m)
	}
}

func TestInit_UnsupportedDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
}

func TestOpen_SQLiteStore(t *testing.T) {
	s, err := Open(context.Background(), &config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		DSN:          "file:dbopen?mode=memory&cache=shared",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	defer s.Close(context.Background())

	assert.NoError(t, s.Ping(context.Background()))
}
