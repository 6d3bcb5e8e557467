package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"snacktrack-backend/config"
	"snacktrack-backend/internal/log"
	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/store"
)

// Open connects to the configured backend, applies migrations or indexes
// and returns the matching store.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		db, err := OpenMongo(ctx, &cfg.Mongo)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureMongoIndexes(ctx, db); err != nil {
			_ = db.Client().Disconnect(ctx)
			return nil, err
		}
		return store.NewMongoStore(db), nil
	default:
		db, err := Init(cfg)
		if err != nil {
			return nil, err
		}
		return store.NewGormStore(db), nil
	}
}

// Init initializes the SQL database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	logger := log.WithComponent("db")

	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported SQL driver %q", cfg.Driver)
	}

	logMode := gormlogger.Warn
	if cfg.LogSQL {
		logMode = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	logger.Info().Str("driver", cfg.Driver).Msg("running database migrations")
	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	logger.Info().Msg("database initialization complete")
	return db, nil
}

// OpenMongo connects to MongoDB and verifies the connection with a ping.
func OpenMongo(ctx context.Context, cfg *config.MongoConfig) (*mongo.Database, error) {
	timeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetMaxPoolSize(cfg.MaxPoolSize)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger := log.WithComponent("db")
	logger.Info().Str("database", cfg.Database).Msg("connected to MongoDB")
	return client.Database(cfg.Database), nil
}
