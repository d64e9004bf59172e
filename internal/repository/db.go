package repository

import (
	"fmt"
	"time"

	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB opens the configured SQL database and brings its schema up to date.
// Postgres uses the versioned migrations; SQLite is auto-migrated.
func NewDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		if err := Migrate(cfg.DSN); err != nil {
			return nil, err
		}
		db, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.DSN), gcfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 连接池设置
	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	if maxIdle <= 0 {
		maxIdle = 2
	}
	if cfg.Driver == "sqlite" {
		// SQLite allows a single writer.
		maxOpen, maxIdle = 1, 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	if cfg.Driver == "sqlite" {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// AutoMigrate creates the tables from the model structs.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.LendingOrder{},
		&model.InterestPayment{},
		&model.DailySummary{},
		&model.MarketObservation{},
		&model.SyncCursor{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
