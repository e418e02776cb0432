package database

import (
	"fmt"

	"github.com/arclight-c2/arclight/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewSQLiteDB(path string) (*gorm.DB, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}

func RunMigrations(db *gorm.DB) error {
	entities := []interface{}{
		&models.Agent{},
		&models.Task{},
		&models.TelemetryRecord{},
	}
	if err := db.AutoMigrate(entities...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
