package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"TripMate/internal/model"
	"TripMate/internal/model/dto"
	"TripMate/internal/repository"
	pkgerrors "TripMate/pkg/errors"
	"TripMate/pkg/logger"
	"TripMate/pkg/snowflake"
	"TripMate/utils"
)

// newItemFromRequest 校验请求并构造行程项，DayID 与 SortOrder 由调用方填写
func newItemFromRequest(req dto.CreateItemRequest) (*model.ItineraryItem, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, pkgerrors.Validation("title", "Title is required")
	}

	start, err := parseOptionalClock("start_time", req.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseOptionalClock("end_time", req.EndTime)
	if err != nil {
		return nil, err
	}
	if err := checkTimeRange(start, end); err != nil {
		return nil, err
	}

	cost, err := costCents(req.CostCents, req.EstimatedCost)
	if err != nil {
		return nil, err
	}

	item := &model.ItineraryItem{
		Type:        model.TypeForCategory(req.Category),
		Category:    normalizeCategory(req.Category),
		Title:       title,
		Description: optionalText(req.Description),
		StartTime:   start,
		EndTime:     end,
		CostCents:   cost,
	}

	if req.Notes != nil && strings.TrimSpace(*req.Notes) != "" {
		payload, err := json.Marshal(model.ItemNotes{Notes: strings.TrimSpace(*req.Notes)})
		if err != nil {
			return nil, fmt.Errorf("failed to encode item notes: %w", err)
		}
		item.Explainability = datatypes.JSON(payload)
	}

	return item, nil
}

// applyItemPatch 合并式更新，返回需要写回的列。两个时间只要改了一个，就按合并后的结果校验。
func applyItemPatch(item *model.ItineraryItem, req dto.UpdateItemRequest) ([]string, error) {
	var columns []string

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, pkgerrors.Validation("title", "Title cannot be empty")
		}
		item.Title = title
		columns = append(columns, repository.ColumnTitle)
	}

	if req.Description != nil {
		item.Description = optionalText(req.Description)
		columns = append(columns, repository.ColumnDescription)
	}

	if req.StartTime != nil {
		start, err := parseOptionalClock("start_time", req.StartTime)
		if err != nil {
			return nil, err
		}
		item.StartTime = start
		columns = append(columns, repository.ColumnStartTime)
	}
	if req.EndTime != nil {
		end, err := parseOptionalClock("end_time", req.EndTime)
		if err != nil {
			return nil, err
		}
		item.EndTime = end
		columns = append(columns, repository.ColumnEndTime)
	}
	if req.StartTime != nil || req.EndTime != nil {
		if err := checkTimeRange(item.StartTime, item.EndTime); err != nil {
			return nil, err
		}
	}

	if req.Category != nil {
		item.Category = normalizeCategory(*req.Category)
		item.Type = model.TypeForCategory(*req.Category)
		columns = append(columns, repository.ColumnCategory, repository.ColumnType)
	}

	if req.CostCents != nil || req.EstimatedCost != nil {
		cost, err := costCents(req.CostCents, req.EstimatedCost)
		if err != nil {
			return nil, err
		}
		item.CostCents = cost
		columns = append(columns, repository.ColumnCostCents)
	}

	if req.Notes != nil {
		merged, err := mergeNotes(item.Explainability, strings.TrimSpace(*req.Notes))
		if err != nil {
			return nil, err
		}
		item.Explainability = merged
		columns = append(columns, repository.ColumnExplainability)
	}

	return columns, nil
}

// attachPlace 按 id 关联已有地点，或按名称+坐标创建/复用地点；信息不全时不关联
func attachPlace(ctx context.Context, tx repository.Store, req dto.CreateItemRequest) (*model.Place, error) {
	if req.PlaceID != nil && strings.TrimSpace(*req.PlaceID) != "" {
		placeID, err := snowflake.ParseID(strings.TrimSpace(*req.PlaceID))
		if err != nil {
			logger.Ctx(ctx).Warn("Ignoring malformed place id", zap.String("place_id", *req.PlaceID))
			return nil, nil
		}

		place, err := tx.GetPlace(ctx, placeID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logger.Ctx(ctx).Warn("Ignoring unknown place id", zap.Int64("place_id", placeID))
				return nil, nil
			}
			return nil, fmt.Errorf("failed to query place: %w", err)
		}
		return place, nil
	}

	if req.PlaceName == nil || strings.TrimSpace(*req.PlaceName) == "" ||
		req.PlaceLatitude == nil || req.PlaceLongitude == nil {
		return nil, nil
	}

	place, err := tx.FindOrCreatePlace(ctx, &model.Place{
		Name:     strings.TrimSpace(*req.PlaceName),
		Category: normalizeCategory(req.Category),
		Address:  optionalText(req.PlaceAddress),
		Lat:      *req.PlaceLatitude,
		Lng:      *req.PlaceLongitude,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create place: %w", err)
	}
	return place, nil
}

// appendItem 追加到当天末尾
func appendItem(ctx context.Context, tx repository.Store, day *model.ItineraryDay, item *model.ItineraryItem) error {
	order, err := NextSortOrder(ctx, tx, day.ID)
	if err != nil {
		return err
	}

	item.DayID = day.ID
	item.SortOrder = order
	if err := tx.CreateItem(ctx, item); err != nil {
		return fmt.Errorf("failed to create itinerary item: %w", err)
	}
	return nil
}

// loadTripItem 行程项不存在或属于其他行程时都按不存在处理
func loadTripItem(ctx context.Context, store repository.Store, tripID, itemID int64) (*model.ItineraryItem, error) {
	item, err := store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ItemNotFound
		}
		return nil, fmt.Errorf("failed to query itinerary item: %w", err)
	}

	day, err := store.GetDay(ctx, item.DayID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ItemNotFound
		}
		return nil, fmt.Errorf("failed to query itinerary day: %w", err)
	}
	if day.TripID != tripID {
		return nil, pkgerrors.ItemNotFound
	}
	return item, nil
}

func loadItemPlace(ctx context.Context, store repository.Store, item *model.ItineraryItem) *model.Place {
	if item.PlaceID == nil {
		return nil
	}
	place, err := store.GetPlace(ctx, *item.PlaceID)
	if err != nil {
		logger.Ctx(ctx).Warn("Failed to load item place",
			zap.Int64("item_id", item.ID),
			zap.Int64("place_id", *item.PlaceID),
			zap.Error(err),
		)
		return nil
	}
	return place
}

func parseOptionalClock(field string, value *string) (*datatypes.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	t, err := utils.ParseClock(*value)
	if err != nil {
		return nil, pkgerrors.Validation(field, "Time must be formatted as HH:MM or HH:MM:SS")
	}
	return &t, nil
}

func checkTimeRange(start, end *datatypes.Time) error {
	if start != nil && end != nil && *end < *start {
		return pkgerrors.Validation("end_time", "End time must not be earlier than start time")
	}
	return nil
}

// costCents cost_cents 优先；estimated_cost 以货币单位给出，四舍五入到分
func costCents(cents *int64, estimated *float64) (*int64, error) {
	if cents != nil {
		if *cents < 0 {
			return nil, pkgerrors.Validation("cost_cents", "Cost cannot be negative")
		}
		v := *cents
		return &v, nil
	}
	if estimated != nil {
		if *estimated < 0 || math.IsNaN(*estimated) || math.IsInf(*estimated, 0) {
			return nil, pkgerrors.Validation("estimated_cost", "Cost must be a non-negative number")
		}
		v := int64(math.Round(*estimated * 100))
		return &v, nil
	}
	return nil, nil
}

func normalizeCategory(category string) string {
	c := strings.ToUpper(strings.TrimSpace(category))
	if c == "" {
		return string(model.DefaultItemType)
	}
	return c
}

func optionalText(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// mergeNotes 保留已有的解释字段（例如生成时写入的 reason），只替换 notes
func mergeNotes(existing datatypes.JSON, notes string) (datatypes.JSON, error) {
	fields := map[string]json.RawMessage{}
	if len(existing) > 0 && string(existing) != "null" {
		if err := json.Unmarshal(existing, &fields); err != nil {
			fields = map[string]json.RawMessage{}
		}
	}

	if notes == "" {
		delete(fields, "notes")
	} else {
		raw, err := json.Marshal(notes)
		if err != nil {
			return nil, fmt.Errorf("failed to encode item notes: %w", err)
		}
		fields["notes"] = raw
	}

	if len(fields) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode explainability: %w", err)
	}
	return datatypes.JSON(payload), nil
}

func toPlaceView(place *model.Place) *dto.PlaceView {
	if place == nil {
		return nil
	}
	return &dto.PlaceView{
		ID:       snowflake.FormatID(place.ID),
		Name:     place.Name,
		Category: place.Category,
		Address:  place.Address,
		Lat:      place.Lat,
		Lng:      place.Lng,
	}
}

func toItemView(item *model.ItineraryItem, place *model.Place) dto.ItemView {
	view := dto.ItemView{
		ID:          snowflake.FormatID(item.ID),
		DayID:       snowflake.FormatID(item.DayID),
		Type:        string(item.Type),
		Category:    item.Category,
		Title:       item.Title,
		Description: item.Description,
		StartTime:   utils.FormatClock(item.StartTime),
		EndTime:     utils.FormatClock(item.EndTime),
		SortOrder:   item.SortOrder,
		CostCents:   item.CostCents,
		Place:       toPlaceView(place),
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
	if len(item.Explainability) > 0 {
		view.Explainability = json.RawMessage(item.Explainability)
	}
	return view
}
