package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"go.uber.org/zap"

	"TripMate/config"
	"TripMate/internal/middleware"
	"TripMate/internal/router"
	"TripMate/internal/service"
	"TripMate/pkg/database"
	"TripMate/pkg/logger"
	"TripMate/pkg/metrics"
	pkgmq "TripMate/pkg/mq"
	"TripMate/pkg/otel"
	pkgredis "TripMate/pkg/redis"
	"TripMate/pkg/snowflake"
	"TripMate/pkg/token"
	"TripMate/storage"
)

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

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	// 指标注册要在 MeterProvider 设置之后，storage 初始化之前
	shutdownOtel, err := otel.InitOpenTelemetry(ctx, otel.Config{
		ServiceName:    config.Cfg.ServiceName,
		ServiceVersion: config.Cfg.ServiceVersion,
		Environment:    config.Cfg.Environment,
		OTLPEndpoint:   config.Cfg.OTLPEndpoint,
		SampleRatio:    config.Cfg.TracingSampler,
		Enabled:        config.Cfg.TracingEnabled,
	},
		middleware.InitMetrics,
		database.InitDatabaseMetrics,
		pkgredis.InitRedisMetrics,
		pkgmq.InitMQMetrics,
	)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
	}
	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Fatal("Failed to initialize itinerary metrics", zap.Error(err))
	}
	defer func() {
		if err := shutdownOtel(context.Background()); err != nil {
			logger.Logger.Warn("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	svc, err := newItineraryService()
	if err != nil {
		logger.Logger.Fatal("Failed to build itinerary service", zap.Error(err))
	}
	service.SetItinerary(svc)

	// middleware 依赖 token
	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	}
	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("environment", config.Cfg.Environment),
		zap.String("storage", config.Cfg.StorageDriver),
	)

	addr := net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)
	opts := []hertzconfig.Option{server.WithHostPorts(addr), server.WithExitWaitTime(3 * time.Second)}

	var tracingMW app.HandlerFunc
	if config.Cfg.TracingEnabled {
		var tracerOpt hertzconfig.Option
		tracerOpt, tracingMW = middleware.NewServerTracerConfig()
		opts = append(opts, tracerOpt)
	}

	h := server.New(opts...)
	if tracingMW != nil {
		h.Use(tracingMW)
	}
	router.Register(h)

	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}
