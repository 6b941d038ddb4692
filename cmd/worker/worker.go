package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"TripMate/config"
	"TripMate/internal/cache"
	"TripMate/internal/queue"
	"TripMate/pkg/logger"
	pkgmq "TripMate/pkg/mq"
	"TripMate/pkg/otel"
	pkgredis "TripMate/pkg/redis"
	"TripMate/storage/mq"
	"TripMate/storage/redis"
)

// worker 消费行程变更事件，兜底失效各实例共享的行程缓存
func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownOtel, err := otel.InitOpenTelemetry(ctx, otel.Config{
		ServiceName:    config.Cfg.ServiceName + "-worker",
		ServiceVersion: config.Cfg.ServiceVersion,
		Environment:    config.Cfg.Environment,
		OTLPEndpoint:   config.Cfg.OTLPEndpoint,
		SampleRatio:    config.Cfg.TracingSampler,
		Enabled:        config.Cfg.TracingEnabled,
	}, pkgredis.InitRedisMetrics, pkgmq.InitMQMetrics)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
	}
	defer func() { _ = shutdownOtel(context.Background()) }()

	// worker 只依赖 Redis 与 RabbitMQ，两者都是必需的
	if err := redis.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize redis", zap.Error(err))
	}
	if err := mq.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize rabbitmq", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mq.Close(closeCtx)
		_ = redis.Close(closeCtx)
	}()

	ttl := time.Duration(config.Cfg.ItineraryCacheSeconds) * time.Second
	handler := queue.NewCacheSyncHandler(
		cache.NewItineraryCache(redis.Client(), ttl),
		cache.NewMessageDeduper(redis.Client()),
	)

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
		zap.String("queue", queue.CacheSyncQueue),
	)

	if err := queue.StartCacheSyncConsumer(ctx, handler); err != nil {
		logger.Logger.Error("Cache sync consumer stopped", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
