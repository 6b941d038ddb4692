package middleware

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"TripMate/config"
	"TripMate/pkg/errors"
	"TripMate/pkg/logger"
	"TripMate/pkg/response"
)

// RecoverConfig recover 中间件配置
type RecoverConfig struct {
	EnableStackTrace bool
	// 堆栈追踪级别（full, simple）
	StackTraceLevel string
	// 非生产环境在响应里带上 panic 详情
	ExposeDetails bool
	// 严重错误回调，可用于告警
	OnSevereError func(ctx context.Context, c *app.RequestContext, err interface{}, stack []byte)
}

func NewRecoverConfig() RecoverConfig {
	return RecoverConfig{
		EnableStackTrace: true,
		StackTraceLevel:  "simple",
		ExposeDetails:    !config.Cfg.IsProduction(),
	}
}

var internalServerError = errors.Definition{
	Code:    "INTERNAL_SERVER_ERROR",
	Message: "Internal server error, please retry later",
}

func RecoverMiddleware() app.HandlerFunc {
	return RecoverMiddlewareWithConfig(NewRecoverConfig())
}

func RecoverMiddlewareWithConfig(cfg RecoverConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				handlePanic(ctx, c, err, cfg)
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, err interface{}, cfg RecoverConfig) {
	var stack []byte
	if cfg.EnableStackTrace {
		stack = stackTrace(cfg.StackTraceLevel)
	}

	span := trace.SpanFromContext(ctx)
	span.RecordError(fmt.Errorf("panic: %v", err))
	span.SetStatus(codes.Error, "panic recovered")

	fields := []zap.Field{
		zap.String("panic", fmt.Sprintf("%v", err)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
	}
	if userID, ok := GetUserID(ctx, c); ok {
		fields = append(fields, zap.Int64("user_id", userID))
	}
	if len(stack) > 0 {
		fields = append(fields, zap.ByteString("stack", stack))
	}
	logger.Ctx(ctx).Error("[PANIC RECOVERED]", fields...)

	if cfg.OnSevereError != nil && isSeverePanic(err) {
		cfg.OnSevereError(ctx, c, err, stack)
	}

	c.Abort()
	if !cfg.ExposeDetails {
		response.Error(ctx, c, internalServerError)
		return
	}

	details := map[string]interface{}{
		"panic":     fmt.Sprintf("%v", err),
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if len(stack) > 0 {
		details["stack"] = string(stack)
	}
	response.ErrorWithDetails(ctx, c, internalServerError, details)
}

func stackTrace(level string) []byte {
	if level == "full" {
		return debug.Stack()
	}

	var sb strings.Builder
	// 跳过 runtime 与 recover 自身的栈帧
	for i := 4; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if strings.Contains(file, "/runtime/") {
			continue
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		fmt.Fprintf(&sb, "  %s:%d\n    %s\n", file, line, fn.Name())
	}
	return []byte(sb.String())
}

func isSeverePanic(err interface{}) bool {
	if err == nil {
		return false
	}

	errStr := fmt.Sprintf("%v", err)
	for _, pattern := range []string{
		"out of memory",
		"concurrent map",
		"index out of range",
		"slice bounds out of range",
		"nil pointer dereference",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
