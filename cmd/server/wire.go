package main

import (
	"time"

	"go.uber.org/zap"

	"TripMate/config"
	"TripMate/internal/cache"
	"TripMate/internal/queue"
	"TripMate/internal/repository"
	"TripMate/internal/service"
	"TripMate/pkg/logger"
	"TripMate/storage/database"
	"TripMate/storage/mq"
	"TripMate/storage/redis"
)

// newItineraryService 按已初始化的存储组件装配服务，未启用的组件退化为空实现
func newItineraryService() (*service.ItineraryService, error) {
	deps := service.Dependencies{}

	if config.Cfg.UseMemoryStorage() {
		store := repository.NewMemoryStore()
		repository.SeedMemory(store, repository.NewDemoData())
		deps.Store = store
		logger.Logger.Info("Seeded in-memory store with demo trip", zap.Int64("trip_id", repository.DemoTripID))
	} else {
		deps.Store = repository.NewGormStore(database.DB())
	}

	if redis.Enabled() {
		ttl := time.Duration(config.Cfg.ItineraryCacheSeconds) * time.Second
		deps.Cache = cache.NewItineraryCache(redis.Client(), ttl)
	}

	if mq.Enabled() {
		deps.Events = queue.NewPublisher()
	}

	return service.NewItineraryService(deps)
}
