package repository

import (
	"context"

	"TripMate/internal/model"
)

// 两个实现统一使用 gorm.ErrRecordNotFound / gorm.ErrDuplicatedKey 作为哨兵错误，
// service 层用 errors.Is 判断。

// Store 行程编排需要的全部存储操作。
// Transaction 内传入的 tx 与外层接口一致，所有写入要么全部提交要么全部回滚。
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// 外部模块维护的表，只读
	GetTrip(ctx context.Context, tripID int64) (*model.Trip, error)
	GetMember(ctx context.Context, tripID, userID int64) (*model.TripMember, error)
	GetPreferences(ctx context.Context, userID int64) (*model.UserPreferences, error)

	// 地点按名称+坐标 create-or-fetch
	GetPlace(ctx context.Context, placeID int64) (*model.Place, error)
	GetPlaces(ctx context.Context, placeIDs []int64) (map[int64]*model.Place, error)
	FindOrCreatePlace(ctx context.Context, place *model.Place) (*model.Place, error)

	GetDay(ctx context.Context, dayID int64) (*model.ItineraryDay, error)
	FindDay(ctx context.Context, tripID int64, dayNumber int) (*model.ItineraryDay, error)
	// InsertDay 在 (trip_id, day_number) 已存在时返回 gorm.ErrDuplicatedKey
	InsertDay(ctx context.Context, day *model.ItineraryDay) error
	ListDays(ctx context.Context, tripID int64) ([]*model.ItineraryDay, error)
	// LockDay 锁住 day 行，串行化同一天的追加
	LockDay(ctx context.Context, dayID int64) error

	MaxSortOrder(ctx context.Context, dayID int64) (int, error)
	CreateItem(ctx context.Context, item *model.ItineraryItem) error
	GetItem(ctx context.Context, itemID int64) (*model.ItineraryItem, error)
	// UpdateItem 只写 columns 中列出的列
	UpdateItem(ctx context.Context, item *model.ItineraryItem, columns []string) error
	MoveItem(ctx context.Context, itemID, dayID int64, sortOrder int) error
	DeleteItem(ctx context.Context, itemID int64) error
	// ListItems 按 day_id, sort_order, start_time(空值在后), id 排序
	ListItems(ctx context.Context, dayIDs []int64) ([]*model.ItineraryItem, error)

	CreateGenerationLog(ctx context.Context, log *model.GenerationLog) error
	ListGenerationLogs(ctx context.Context, tripID int64, limit int) ([]*model.GenerationLog, error)
}

// 可更新的行程项列名
const (
	ColumnTitle          = "title"
	ColumnDescription    = "description"
	ColumnStartTime      = "start_time"
	ColumnEndTime        = "end_time"
	ColumnCategory       = "category"
	ColumnType           = "type"
	ColumnCostCents      = "cost_cents"
	ColumnExplainability = "explainability"
)
