package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"TripMate/internal/model"
	"TripMate/internal/repository"
	pkgerrors "TripMate/pkg/errors"
	"TripMate/pkg/logger"
	"TripMate/utils"
)

// ResolveDay 按 (tripID, dayNumber) 取得行程日，不存在则创建。
// 并发创建由唯一索引兜底，重复键视为已存在并重新读取。
func ResolveDay(ctx context.Context, store repository.Store, tripID int64, dayNumber int) (*model.ItineraryDay, error) {
	if dayNumber < 1 {
		return nil, pkgerrors.Validation("day_number", "Day number must be a positive integer")
	}

	var day *model.ItineraryDay
	err := store.Transaction(ctx, func(tx repository.Store) error {
		trip, err := loadTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}

		day, err = resolveTripDay(ctx, tx, trip, dayNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	return day, nil
}

func loadTrip(ctx context.Context, store repository.Store, tripID int64) (*model.Trip, error) {
	trip, err := store.GetTrip(ctx, tripID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.TripNotFound
		}
		return nil, fmt.Errorf("failed to query trip: %w", err)
	}
	return trip, nil
}

// resolveTripDay 必须在事务内调用，trip 已由调用方加载
func resolveTripDay(ctx context.Context, tx repository.Store, trip *model.Trip, dayNumber int) (*model.ItineraryDay, error) {
	if dayNumber < 1 {
		return nil, pkgerrors.Validation("day_number", "Day number must be a positive integer")
	}

	day, err := tx.FindDay(ctx, trip.ID, dayNumber)
	if err == nil {
		return day, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query itinerary day: %w", err)
	}

	if trip.StartDate == nil {
		return nil, pkgerrors.Validation("start_date", "Trip has no start date")
	}

	day = &model.ItineraryDay{
		TripID:    trip.ID,
		DayNumber: dayNumber,
		Date:      utils.DayDate(*trip.StartDate, dayNumber),
	}

	if err := tx.InsertDay(ctx, day); err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("failed to create itinerary day: %w", err)
		}

		// 另一个请求抢先创建
		existing, err := tx.FindDay(ctx, trip.ID, dayNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to reload itinerary day: %w", err)
		}
		return existing, nil
	}

	logger.Ctx(ctx).Info("Itinerary day created",
		zap.Int64("trip_id", trip.ID),
		zap.Int("day_number", dayNumber),
		zap.Int64("day_id", day.ID),
	)
	return day, nil
}
