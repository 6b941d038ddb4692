package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"TripMate/internal/repository"
	pkgerrors "TripMate/pkg/errors"
	"TripMate/pkg/logger"
)

// Move 单个移动：把行程项放到目标天，sortOrder 原样写入
type Move struct {
	ItemID    int64
	DayNumber int
	SortOrder int
}

// NextSortOrder 返回当天下一个排序值（max+1，空天为 1）。
// 先锁住当天记录，同一天的并发追加在事务内串行。
func NextSortOrder(ctx context.Context, tx repository.Store, dayID int64) (int, error) {
	if err := tx.LockDay(ctx, dayID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.DayNotFound
		}
		return 0, fmt.Errorf("failed to lock itinerary day: %w", err)
	}

	maxOrder, err := tx.MaxSortOrder(ctx, dayID)
	if err != nil {
		return 0, fmt.Errorf("failed to query max sort order: %w", err)
	}
	return maxOrder + 1, nil
}

// ValidateMoves 在任何写入之前校验整批移动
func ValidateMoves(moves []Move) error {
	for _, m := range moves {
		if m.ItemID <= 0 {
			return pkgerrors.Validation("id", "Item id is required")
		}
		if m.DayNumber < 1 {
			return pkgerrors.Validation("day_number", "Day number must be a positive integer")
		}
	}
	return nil
}

// ApplyMoves 在同一个事务中执行整批移动，任何一项失败整体回滚。
// 不会重排同一天的其他行程项，排序值允许重复。
func ApplyMoves(ctx context.Context, store repository.Store, tripID int64, moves []Move) error {
	if err := ValidateMoves(moves); err != nil {
		return err
	}
	if len(moves) == 0 {
		return nil
	}

	return store.Transaction(ctx, func(tx repository.Store) error {
		trip, err := loadTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}

		for _, m := range moves {
			if _, err := loadTripItem(ctx, tx, tripID, m.ItemID); err != nil {
				return err
			}

			day, err := resolveTripDay(ctx, tx, trip, m.DayNumber)
			if err != nil {
				return err
			}

			if err := tx.MoveItem(ctx, m.ItemID, day.ID, m.SortOrder); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.ItemNotFound
				}
				return fmt.Errorf("failed to move itinerary item: %w", err)
			}

			logger.Ctx(ctx).Debug("Itinerary item moved",
				zap.Int64("item_id", m.ItemID),
				zap.Int("day_number", m.DayNumber),
				zap.Int("sort_order", m.SortOrder),
			)
		}
		return nil
	})
}
