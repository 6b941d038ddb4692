package storage

import (
	"fmt"

	"go.uber.org/zap"

	"TripMate/config"
	"TripMate/pkg/logger"
	"TripMate/storage/database"
	"TripMate/storage/mq"
	"TripMate/storage/redis"
)

// Init 统一初始化存储层。memory 驱动不连数据库，Redis/RabbitMQ 按开关决定是否连接。
func Init() error {
	cfg := config.Cfg

	if cfg.UseMemoryStorage() {
		logger.Logger.Warn("Using in-memory itinerary storage, data is lost on restart")
	} else if err := database.Init(); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}

	if cfg.RedisEnabled {
		if err := redis.Init(); err != nil {
			return fmt.Errorf("failed to init redis: %w", err)
		}
	}

	if cfg.RabbitMQEnabled {
		if err := mq.Init(); err != nil {
			return fmt.Errorf("failed to init rabbitmq: %w", err)
		}
	}

	logger.Logger.Info("Storage initialized",
		zap.String("driver", cfg.StorageDriver),
		zap.Bool("redis", cfg.RedisEnabled),
		zap.Bool("rabbitmq", cfg.RabbitMQEnabled),
	)
	return nil
}
