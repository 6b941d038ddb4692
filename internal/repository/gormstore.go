package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"TripMate/internal/model"
)

// GormStore 基于 PostgreSQL 的实现
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// primary 行程读取走主库，避免写后立刻读到副本的旧数据
func (s *GormStore) primary(ctx context.Context) *gorm.DB {
	if s.inTx {
		return s.conn(ctx)
	}
	return s.conn(ctx).Clauses(dbresolver.Write)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
}

func (s *GormStore) GetTrip(ctx context.Context, tripID int64) (*model.Trip, error) {
	var trip model.Trip
	if err := s.conn(ctx).Where("id = ?", tripID).Take(&trip).Error; err != nil {
		return nil, err
	}
	return &trip, nil
}

func (s *GormStore) GetMember(ctx context.Context, tripID, userID int64) (*model.TripMember, error) {
	var member model.TripMember
	err := s.conn(ctx).
		Where("trip_id = ? AND user_id = ?", tripID, userID).
		Take(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *GormStore) GetPreferences(ctx context.Context, userID int64) (*model.UserPreferences, error) {
	var prefs model.UserPreferences
	if err := s.conn(ctx).Where("user_id = ?", userID).Take(&prefs).Error; err != nil {
		return nil, err
	}
	return &prefs, nil
}

func (s *GormStore) GetPlace(ctx context.Context, placeID int64) (*model.Place, error) {
	var place model.Place
	if err := s.conn(ctx).Where("id = ?", placeID).Take(&place).Error; err != nil {
		return nil, err
	}
	return &place, nil
}

func (s *GormStore) GetPlaces(ctx context.Context, placeIDs []int64) (map[int64]*model.Place, error) {
	result := make(map[int64]*model.Place, len(placeIDs))
	if len(placeIDs) == 0 {
		return result, nil
	}

	var places []*model.Place
	if err := s.primary(ctx).Where("id IN ?", placeIDs).Find(&places).Error; err != nil {
		return nil, err
	}
	for _, p := range places {
		result[p.ID] = p
	}
	return result, nil
}

// FindOrCreatePlace 按 (name, lat, lng) 唯一，并发插入同一地点时由 ON CONFLICT 兜底后重读
func (s *GormStore) FindOrCreatePlace(ctx context.Context, place *model.Place) (*model.Place, error) {
	existing, err := s.findPlace(ctx, place)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	result := s.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}, {Name: "lat"}, {Name: "lng"}},
			DoNothing: true,
		}).
		Create(place)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return s.findPlace(ctx, place)
	}
	return place, nil
}

func (s *GormStore) findPlace(ctx context.Context, place *model.Place) (*model.Place, error) {
	var existing model.Place
	err := s.primary(ctx).
		Where("name = ? AND lat = ? AND lng = ?", place.Name, place.Lat, place.Lng).
		Take(&existing).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func (s *GormStore) GetDay(ctx context.Context, dayID int64) (*model.ItineraryDay, error) {
	var day model.ItineraryDay
	if err := s.primary(ctx).Where("id = ?", dayID).Take(&day).Error; err != nil {
		return nil, err
	}
	return &day, nil
}

func (s *GormStore) FindDay(ctx context.Context, tripID int64, dayNumber int) (*model.ItineraryDay, error) {
	var day model.ItineraryDay
	err := s.primary(ctx).
		Where("trip_id = ? AND day_number = ?", tripID, dayNumber).
		Take(&day).Error
	if err != nil {
		return nil, err
	}
	return &day, nil
}

// InsertDay 使用 ON CONFLICT DO NOTHING，冲突不会让外层事务进入 aborted 状态
func (s *GormStore) InsertDay(ctx context.Context, day *model.ItineraryDay) error {
	result := s.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trip_id"}, {Name: "day_number"}},
			DoNothing: true,
		}).
		Create(day)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrDuplicatedKey
	}
	return nil
}

func (s *GormStore) ListDays(ctx context.Context, tripID int64) ([]*model.ItineraryDay, error) {
	var days []*model.ItineraryDay
	err := s.primary(ctx).
		Where("trip_id = ?", tripID).
		Order("day_number ASC").
		Find(&days).Error
	if err != nil {
		return nil, err
	}
	return days, nil
}

func (s *GormStore) LockDay(ctx context.Context, dayID int64) error {
	var day model.ItineraryDay
	return s.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", dayID).
		Take(&day).Error
}

func (s *GormStore) MaxSortOrder(ctx context.Context, dayID int64) (int, error) {
	var maxOrder int
	err := s.primary(ctx).
		Model(&model.ItineraryItem{}).
		Select("COALESCE(MAX(sort_order), 0)").
		Where("day_id = ?", dayID).
		Scan(&maxOrder).Error
	if err != nil {
		return 0, err
	}
	return maxOrder, nil
}

func (s *GormStore) CreateItem(ctx context.Context, item *model.ItineraryItem) error {
	return s.conn(ctx).Create(item).Error
}

func (s *GormStore) GetItem(ctx context.Context, itemID int64) (*model.ItineraryItem, error) {
	var item model.ItineraryItem
	if err := s.primary(ctx).Where("id = ?", itemID).Take(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *GormStore) UpdateItem(ctx context.Context, item *model.ItineraryItem, columns []string) error {
	if len(columns) == 0 {
		return nil
	}

	item.UpdatedAt = time.Now()
	selected := append([]string{"updated_at"}, columns...)

	result := s.conn(ctx).
		Model(item).
		Select(selected).
		Updates(item)
	if result.Error != nil {
		return fmt.Errorf("failed to update itinerary item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) MoveItem(ctx context.Context, itemID, dayID int64, sortOrder int) error {
	result := s.conn(ctx).
		Model(&model.ItineraryItem{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{
			"day_id":     dayID,
			"sort_order": sortOrder,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) DeleteItem(ctx context.Context, itemID int64) error {
	result := s.conn(ctx).Where("id = ?", itemID).Delete(&model.ItineraryItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) ListItems(ctx context.Context, dayIDs []int64) ([]*model.ItineraryItem, error) {
	if len(dayIDs) == 0 {
		return nil, nil
	}

	var items []*model.ItineraryItem
	err := s.primary(ctx).
		Where("day_id IN ?", dayIDs).
		Order("day_id ASC, sort_order ASC, start_time ASC NULLS LAST, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *GormStore) CreateGenerationLog(ctx context.Context, log *model.GenerationLog) error {
	return s.conn(ctx).Create(log).Error
}

// ListGenerationLogs 审计记录允许读副本
func (s *GormStore) ListGenerationLogs(ctx context.Context, tripID int64, limit int) ([]*model.GenerationLog, error) {
	var logs []*model.GenerationLog
	query := s.conn(ctx).
		Where("trip_id = ?", tripID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
