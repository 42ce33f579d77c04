package db

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"go-ledger/internal/models"
)

// InitDB connects to Postgres and migrates the schema. Returns nil with no
// error when dsn is empty: persistence is optional and the services run on
// in-memory state alone.
func InitDB(dsn string, logger *logrus.Logger) (*gorm.DB, error) {
	if dsn == "" {
		logger.Info("No database DSN configured, running without persistence")
		return nil, nil
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.StakePosition{},
		&models.LiquidityPool{},
		&models.SwapReceipt{},
		&models.RewardPayout{},
		&models.PolicyChange{},
	); err != nil {
		return nil, fmt.Errorf("AutoMigrate failed: %w", err)
	}

	logger.Info("Database connected and schema migrated")
	return db, nil
}
