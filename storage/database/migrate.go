package database

import (
	"go.uber.org/zap"

	"TripMate/internal/model"
	"TripMate/pkg/errors"
	"TripMate/pkg/logger"
)

// Models 由本服务迁移的全部表，trips/trip_members 等外部表也一并建好便于本地联调
func Models() []interface{} {
	return []interface{}{
		&model.Trip{},
		&model.TripMember{},
		&model.UserPreferences{},
		&model.Place{},
		&model.ItineraryDay{},
		&model.ItineraryItem{},
		&model.GenerationLog{},
	}
}

// Migrate 运行数据库迁移，由 cmd/admin migrate 显式调用
func Migrate() error {
	db := DB()
	if db == nil {
		return errors.ErrDatabaseConnectionNil
	}

	logger.Logger.Info("Starting database migration...")

	if err := db.AutoMigrate(Models()...); err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
