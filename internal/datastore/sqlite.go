package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// SQLiteConfig holds configuration for the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" is not supported because every
	// pooled connection would see its own empty database.
	Path string
}

// SQLiteManager handles the finding database for SQLite.
type SQLiteManager struct {
	db     *gorm.DB
	dbPath string
}

// NewSQLiteManager opens (and creates if needed) the SQLite database file.
func NewSQLiteManager(cfg *SQLiteConfig, gormLog gorm_logger.Interface) (*SQLiteManager, error) {
	if cfg.Path == "" {
		return nil, validationError("sqlite path must not be empty", "path", cfg.Path)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// busy_timeout makes concurrent writers wait instead of failing with SQLITE_BUSY
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", cfg.Path)

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(gormLog))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteManager{
		db:     db,
		dbPath: cfg.Path,
	}, nil
}

// Initialize creates the schema.
func (m *SQLiteManager) Initialize() error {
	return migrate(m.db)
}

// DB returns the underlying GORM database.
func (m *SQLiteManager) DB() *gorm.DB {
	return m.db
}

// Path returns the database file path.
func (m *SQLiteManager) Path() string {
	return m.dbPath
}

// Ping verifies the database file is reachable.
func (m *SQLiteManager) Ping(ctx context.Context) error {
	return pingDB(ctx, m.db)
}

// Close closes the database connection.
func (m *SQLiteManager) Close() error {
	return closeDB(m.db)
}

// IsMySQL returns false for SQLite manager.
func (m *SQLiteManager) IsMySQL() bool {
	return false
}
