package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/route"

	"TripMate/internal/handler"
	"TripMate/internal/middleware"
)

func Register(h *server.Hertz) {
	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.RequestIDMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	h.GET("/healthz", handler.Health)

	v1 := h.Group("/v1", middleware.AuthMiddleware())
	RegisterItinerary(v1, middleware.GenerateRateLimitMiddleware())
}

// RegisterItinerary 行程编排路由，调用方身份由外层中间件写入
func RegisterItinerary(v1 *route.RouterGroup, generateLimiter app.HandlerFunc) {
	itinerary := v1.Group("/trips/:trip_id/itinerary")
	{
		itinerary.GET("", handler.GetItinerary)
		itinerary.POST("/items", handler.AddItem)
		itinerary.PATCH("/items/:item_id", handler.UpdateItem)
		itinerary.DELETE("/items/:item_id", handler.DeleteItem)
		itinerary.PUT("/reorder", handler.ReorderItems)
		itinerary.POST("/generate", generateLimiter, handler.GenerateItinerary)
		itinerary.GET("/generations", handler.ListGenerationLogs)
	}
}
