package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"TripMate/internal/middleware"
	"TripMate/internal/model/dto"
	"TripMate/internal/service"
	"TripMate/pkg/errors"
	"TripMate/pkg/logger"
	"TripMate/pkg/response"
	"TripMate/pkg/snowflake"
)

// GetItinerary 查询行程的按天视图。
func GetItinerary(ctx context.Context, c *app.RequestContext) {
	callerID, tripID, ok := tripScope(ctx, c)
	if !ok {
		return
	}

	view, err := service.Itinerary().GetItinerary(ctx, tripID, callerID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, view)
}

// AddItem 添加行程项。
func AddItem(ctx context.Context, c *app.RequestContext) {
	callerID, tripID, ok := tripScope(ctx, c)
	if !ok {
		return
	}

	var req dto.CreateItemRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	item, err := service.Itinerary().AddItem(ctx, tripID, callerID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Created(ctx, c, item)
}

// UpdateItem 合并更新行程项。
func UpdateItem(ctx context.Context, c *app.RequestContext) {
	callerID, tripID, ok := tripScope(ctx, c)
	if !ok {
		return
	}
	itemID, ok := pathID(ctx, c, "item_id", errors.InvalidItemID)
	if !ok {
		return
	}

	var req dto.UpdateItemRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	item, err := service.Itinerary().UpdateItem(ctx, tripID, itemID, callerID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, item)
}

// DeleteItem 删除行程项。
func DeleteItem(ctx context.Context, c *app.RequestContext) {
	callerID, tripID, ok := tripScope(ctx, c)
	if !ok {
		return
	}
	itemID, ok := pathID(ctx, c, "item_id", errors.InvalidItemID)
	if !ok {
		return
	}

	if err := service.Itinerary().DeleteItem(ctx, tripID, itemID, callerID); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.NoContent(ctx, c)
}

// ReorderItems 批量调整行程项所在天与顺序。
func ReorderItems(ctx context.Context, c *app.RequestContext) {
	callerID, tripID, ok := tripScope(ctx, c)
	if !ok {
		return
	}

	var req dto.ReorderRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	if err := service.Itinerary().ReorderItems(ctx, tripID, callerID, req.Items); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.NoContent(ctx, c)
}

// GenerateItinerary 按模板为每天生成行程项。
func GenerateItinerary(ctx context.Context, c *app.RequestContext) {
	callerID, tripID, ok := tripScope(ctx, c)
	if !ok {
		return
	}

	var req dto.GenerateRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	result, err := service.Itinerary().GenerateItinerary(ctx, tripID, callerID, req.Prompt)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Created(ctx, c, result)
}

// ListGenerationLogs 查询生成记录，最新的在前。
func ListGenerationLogs(ctx context.Context, c *app.RequestContext) {
	callerID, tripID, ok := tripScope(ctx, c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Error(ctx, c, errors.Validation("limit", "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	logs, err := service.Itinerary().ListGenerationLogs(ctx, tripID, callerID, limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.SuccessWithMeta(ctx, c, logs, map[string]interface{}{"count": len(logs)})
}

// tripScope 取出调用方与路径中的 trip_id，失败时已写好响应
func tripScope(ctx context.Context, c *app.RequestContext) (callerID, tripID int64, ok bool) {
	callerID, ok = middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return 0, 0, false
	}

	tripID, ok = pathID(ctx, c, "trip_id", errors.InvalidTripID)
	return callerID, tripID, ok
}

func pathID(ctx context.Context, c *app.RequestContext, name string, invalid errors.Definition) (int64, bool) {
	raw := c.Param(name)
	id, err := snowflake.ParseID(raw)
	if err != nil {
		logger.Ctx(ctx).Debug("Invalid path id", zap.String("param", name), zap.String("value", raw))
		response.Error(ctx, c, invalid)
		return 0, false
	}
	return id, true
}
