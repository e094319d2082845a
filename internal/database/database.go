package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"cardlink/backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the postgres database behind dsn and runs migrations.
func Connect(dsn string, log *zap.Logger) (*gorm.DB, error) {
	return Open(postgres.Open(dsn), log)
}

// Open initializes a gorm connection for the given dialector and runs migrations.
func Open(dialector gorm.Dialector, zl *zap.Logger) (*gorm.DB, error) {
	// Configure GORM logger
	customLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             200 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,            // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         customLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	zl.Info("Database connection established", zap.String("dialect", dialector.Name()))

	if err := Migrate(db); err != nil {
		return nil, err
	}

	zl.Info("Database migrated successfully")
	return db, nil
}

// Migrate creates the ledger and graph cache tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.ConnectionRequest{}, &models.UserConnection{}); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}
