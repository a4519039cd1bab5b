// Package database provides database connection management for the billtrack
// recurring-bill service.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - Schema initialization for detected bills, bill events and transactions
//   - Typed errors carrying the failing operation
//
// Data Models:
//
//	All row types (DetectedBill, BillEvent, Transaction) are defined in the
//	models_pkg package to avoid circular import dependencies. Repositories
//	live in the bills and transactions sub-packages.
package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "billtrack/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the underlying DB instance.
type Database struct {
	db *gorm.DB
}

// NewDatabase wraps an already opened GORM connection
func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// InitSchema migrates every table the service owns
func (d *Database) InitSchema() error {
	log.Info().Msg("🔄 Starting database schema initialization...")

	err := d.db.AutoMigrate(
		&models.Transaction{},
		&models.DetectedBill{},
		&models.BillEvent{},
	)
	if err != nil {
		return WrapDBError("InitSchema", err)
	}

	log.Info().Msg("✅ Database schema ready")
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
