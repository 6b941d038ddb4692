package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"

	"TripMate/pkg/logger"
)

const RequestIDHeader = "X-Request-Id"

// RequestIDMiddleware 沿用上游传入的请求 ID，没有则生成
func RequestIDMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		requestID := string(c.GetHeader(RequestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next(logger.WithRequestID(ctx, requestID))
	}
}
