// Package datastore persists findings and their attachment references.
//
// A Manager owns the database connection for one backend (SQLite or MySQL)
// and creates the schema. FindingRepository is the only write path for
// finding rows; verification decisions go through its conditional Decide.
package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/sitesafe/hsetrack/internal/conf"
	"github.com/sitesafe/hsetrack/internal/datastore/entities"
	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/logger"
)

// Manager defines the interface for database lifecycle operations.
type Manager interface {
	// Initialize creates or updates the schema.
	Initialize() error
	// DB returns the underlying GORM database.
	DB() *gorm.DB
	// Path returns the database location (file path for SQLite, host:port/db for MySQL).
	Path() string
	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
	// Close closes the database connection.
	Close() error
	// IsMySQL returns true if this is a MySQL manager.
	IsMySQL() bool
}

// GetLogger returns the datastore module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

// NewManager opens the backend selected in settings.
func NewManager(settings *conf.DatabaseSettings) (Manager, error) {
	gormLog := logger.NewGormLoggerAdapter(GetLogger(), settings.SlowQueryThreshold)

	switch settings.Driver {
	case conf.DriverSQLite, "":
		return NewSQLiteManager(&SQLiteConfig{Path: settings.SQLite.Path}, gormLog)
	case conf.DriverMySQL:
		m := settings.MySQL
		return NewMySQLManager(&MySQLConfig{
			Host:            m.Host,
			Port:            m.Port,
			Username:        m.Username,
			Password:        m.Password,
			Database:        m.Database,
			MaxOpenConns:    m.MaxOpenConns,
			MaxIdleConns:    m.MaxIdleConns,
			ConnMaxLifetime: m.ConnMaxLifetime,
		}, gormLog)
	default:
		return nil, errors.Newf("unsupported database driver %q", settings.Driver).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Context("driver", settings.Driver).
			Build()
	}
}

// migrate runs GORM auto-migrations for all entities. Findings must be
// created before attachments so the foreign key can reference them.
func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&entities.Finding{}, &entities.Attachment{}); err != nil {
		return errors.New(fmt.Errorf("failed to migrate schema: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Build()
	}
	return nil
}

// gormConfig enables driver error translation so duplicate and foreign key
// violations surface as gorm sentinel errors on both backends.
func gormConfig(gormLog gorm_logger.Interface) *gorm.Config {
	if gormLog == nil {
		gormLog = gorm_logger.Discard
	}
	return &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}
