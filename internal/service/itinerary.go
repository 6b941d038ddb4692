package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"TripMate/internal/cache"
	"TripMate/internal/model"
	"TripMate/internal/model/dto"
	"TripMate/internal/queue"
	"TripMate/internal/repository"
	pkgerrors "TripMate/pkg/errors"
	"TripMate/pkg/logger"
	"TripMate/pkg/metrics"
	"TripMate/pkg/snowflake"
	"TripMate/utils"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 100
)

// ItineraryCache 行程视图缓存。Get 返回的版本号在加载数据之前读取，
// Set 只对该版本生效，Invalidate 之后旧版本的回填不可见
type ItineraryCache interface {
	Get(ctx context.Context, tripID int64) (*dto.ItineraryView, int64, bool, error)
	Set(ctx context.Context, tripID, version int64, view *dto.ItineraryView) error
	Invalidate(ctx context.Context, tripID int64) error
}

// EventPublisher 行程变更事件发布
type EventPublisher interface {
	PublishItineraryEvent(ctx context.Context, msg queue.ItineraryEventMessage) error
}

// Dependencies 构造 ItineraryService 所需的依赖，Cache/Events 为空时不缓存、不发事件
type Dependencies struct {
	Store  repository.Store
	Cache  ItineraryCache
	Events EventPublisher
	Slots  []SlotTemplate
}

// ItineraryService 行程编排入口：鉴权、事务、缓存失效与事件发布
type ItineraryService struct {
	store     repository.Store
	cache     ItineraryCache
	events    EventPublisher
	generator *Generator
}

var (
	itineraryService *ItineraryService
	itineraryMu      sync.RWMutex
)

// Itinerary 返回进程内共享的实例，需先 SetItinerary
func Itinerary() *ItineraryService {
	itineraryMu.RLock()
	defer itineraryMu.RUnlock()

	if itineraryService == nil {
		panic("itinerary service not initialized, call SetItinerary first")
	}
	return itineraryService
}

func SetItinerary(s *ItineraryService) {
	itineraryMu.Lock()
	defer itineraryMu.Unlock()
	itineraryService = s
}

func NewItineraryService(deps Dependencies) (*ItineraryService, error) {
	if deps.Store == nil {
		return nil, errors.New("itinerary store is required")
	}

	slots := deps.Slots
	if len(slots) == 0 {
		var err error
		if slots, err = DefaultSlots(); err != nil {
			return nil, err
		}
	}

	s := &ItineraryService{
		store:     deps.Store,
		cache:     deps.Cache,
		events:    deps.Events,
		generator: NewGenerator(slots),
	}
	if s.cache == nil {
		s.cache = cache.NopItineraryCache{}
	}
	if s.events == nil {
		s.events = queue.NopPublisher{}
	}
	return s, nil
}

// GetItinerary 返回按天排列的行程，任意角色的成员都可查看
func (s *ItineraryService) GetItinerary(ctx context.Context, tripID, callerID int64) (view *dto.ItineraryView, err error) {
	done := metrics.ObserveOperation(ctx, "get_itinerary")
	defer func() { done(err) }()

	if _, err := s.authorize(ctx, tripID, callerID, false); err != nil {
		return nil, err
	}

	cached, version, hit, err := s.cache.Get(ctx, tripID)
	cacheable := err == nil
	if err != nil {
		logger.Ctx(ctx).Warn("Failed to read itinerary cache", zap.Int64("trip_id", tripID), zap.Error(err))
	}
	metrics.RecordCacheLookup(ctx, hit)
	if hit {
		return cached, nil
	}

	trip, err := loadTrip(ctx, s.store, tripID)
	if err != nil {
		return nil, s.fail(ctx, "get_itinerary", tripID, err)
	}

	view, err = s.buildItinerary(ctx, trip)
	if err != nil {
		return nil, s.fail(ctx, "get_itinerary", tripID, err)
	}

	if !cacheable {
		return view, nil
	}
	if err := s.cache.Set(ctx, tripID, version, view); err != nil {
		logger.Ctx(ctx).Warn("Failed to write itinerary cache", zap.Int64("trip_id", tripID), zap.Error(err))
	}
	return view, nil
}

// AddItem 解析目标天（不存在则创建），追加到当天末尾
func (s *ItineraryService) AddItem(ctx context.Context, tripID, callerID int64, req dto.CreateItemRequest) (result *dto.ItemView, err error) {
	done := metrics.ObserveOperation(ctx, "add_item")
	defer func() { done(err) }()

	if req.DayNumber < 1 {
		return nil, pkgerrors.Validation("day_number", "Day number must be a positive integer")
	}
	item, err := newItemFromRequest(req)
	if err != nil {
		return nil, err
	}

	if _, err := s.authorize(ctx, tripID, callerID, true); err != nil {
		return nil, err
	}

	var place *model.Place
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		trip, err := loadTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}

		day, err := resolveTripDay(ctx, tx, trip, req.DayNumber)
		if err != nil {
			return err
		}

		place, err = attachPlace(ctx, tx, req)
		if err != nil {
			return err
		}
		if place != nil {
			item.PlaceID = &place.ID
		}

		return appendItem(ctx, tx, day, item)
	})
	if err != nil {
		return nil, s.fail(ctx, "add_item", tripID, err)
	}

	logger.Ctx(ctx).Info("Itinerary item created",
		zap.Int64("trip_id", tripID),
		zap.Int64("item_id", item.ID),
		zap.Int("day_number", req.DayNumber),
		zap.Int("sort_order", item.SortOrder),
	)
	metrics.RecordItemsCreated(ctx, "manual", 1)
	s.afterCommit(ctx, tripID, callerID, queue.ItineraryEventMessage{
		EventType: queue.EventItemCreated,
		ItemIDs:   []string{snowflake.FormatID(item.ID)},
	})

	view := toItemView(item, place)
	return &view, nil
}

// UpdateItem 合并式更新，未提供的字段保持不变
func (s *ItineraryService) UpdateItem(ctx context.Context, tripID, itemID, callerID int64, req dto.UpdateItemRequest) (result *dto.ItemView, err error) {
	done := metrics.ObserveOperation(ctx, "update_item")
	defer func() { done(err) }()

	// 先对请求本身做校验，合并后的时间范围在事务内再校验一次
	if _, err := applyItemPatch(&model.ItineraryItem{}, req); err != nil {
		return nil, err
	}

	if _, err := s.authorize(ctx, tripID, callerID, true); err != nil {
		return nil, err
	}

	var (
		item    *model.ItineraryItem
		changed bool
	)
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		item, err = loadTripItem(ctx, tx, tripID, itemID)
		if err != nil {
			return err
		}

		columns, err := applyItemPatch(item, req)
		if err != nil {
			return err
		}
		if len(columns) == 0 {
			return nil
		}

		if err := tx.UpdateItem(ctx, item, columns); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.ItemNotFound
			}
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "update_item", tripID, err)
	}

	if changed {
		logger.Ctx(ctx).Info("Itinerary item updated",
			zap.Int64("trip_id", tripID),
			zap.Int64("item_id", itemID),
		)
		s.afterCommit(ctx, tripID, callerID, queue.ItineraryEventMessage{
			EventType: queue.EventItemUpdated,
			ItemIDs:   []string{snowflake.FormatID(itemID)},
		})
	}

	view := toItemView(item, loadItemPlace(ctx, s.store, item))
	return &view, nil
}

// DeleteItem 硬删除
func (s *ItineraryService) DeleteItem(ctx context.Context, tripID, itemID, callerID int64) (err error) {
	done := metrics.ObserveOperation(ctx, "delete_item")
	defer func() { done(err) }()

	if _, err := s.authorize(ctx, tripID, callerID, true); err != nil {
		return err
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := loadTripItem(ctx, tx, tripID, itemID); err != nil {
			return err
		}
		if err := tx.DeleteItem(ctx, itemID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.ItemNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, "delete_item", tripID, err)
	}

	logger.Ctx(ctx).Info("Itinerary item deleted",
		zap.Int64("trip_id", tripID),
		zap.Int64("item_id", itemID),
	)
	s.afterCommit(ctx, tripID, callerID, queue.ItineraryEventMessage{
		EventType: queue.EventItemDeleted,
		ItemIDs:   []string{snowflake.FormatID(itemID)},
	})
	return nil
}

// ReorderItems 整批移动，全部成功或全部不生效
func (s *ItineraryService) ReorderItems(ctx context.Context, tripID, callerID int64, req []dto.ReorderMove) (err error) {
	done := metrics.ObserveOperation(ctx, "reorder_items")
	defer func() { done(err) }()

	moves := make([]Move, 0, len(req))
	for _, m := range req {
		itemID, err := snowflake.ParseID(strings.TrimSpace(m.ItemID))
		if err != nil {
			return pkgerrors.Validation("id", "Item id is invalid")
		}
		moves = append(moves, Move{ItemID: itemID, DayNumber: m.DayNumber, SortOrder: m.SortOrder})
	}
	if err := ValidateMoves(moves); err != nil {
		return err
	}

	if _, err := s.authorize(ctx, tripID, callerID, true); err != nil {
		return err
	}
	if len(moves) == 0 {
		return nil
	}

	if err := ApplyMoves(ctx, s.store, tripID, moves); err != nil {
		return s.fail(ctx, "reorder_items", tripID, err)
	}

	itemIDs := make([]string, 0, len(moves))
	for _, m := range moves {
		itemIDs = append(itemIDs, snowflake.FormatID(m.ItemID))
	}

	logger.Ctx(ctx).Info("Itinerary items reordered",
		zap.Int64("trip_id", tripID),
		zap.Int("moves", len(moves)),
	)
	metrics.RecordMoves(ctx, len(moves))
	s.afterCommit(ctx, tripID, callerID, queue.ItineraryEventMessage{
		EventType: queue.EventItemsReordered,
		ItemIDs:   itemIDs,
	})
	return nil
}

// GenerateItinerary 生成多日骨架并写入一条生成日志，重复调用会再追加一套
func (s *ItineraryService) GenerateItinerary(ctx context.Context, tripID, callerID int64, prompt string) (result *dto.GenerateResult, err error) {
	done := metrics.ObserveOperation(ctx, "generate_itinerary")
	defer func() { done(err) }()

	if strings.TrimSpace(prompt) == "" {
		return nil, pkgerrors.Validation("prompt", "Prompt is required")
	}

	if _, err := s.authorize(ctx, tripID, callerID, true); err != nil {
		return nil, err
	}

	outcome, err := s.generator.Generate(ctx, s.store, tripID, callerID, prompt)
	if err != nil {
		return nil, s.fail(ctx, "generate_itinerary", tripID, err)
	}

	result = &dto.GenerateResult{
		Items: make([]dto.ItemView, 0, len(outcome.Items)),
		LogID: snowflake.FormatID(outcome.Log.ID),
	}
	itemIDs := make([]string, 0, len(outcome.Items))
	for _, item := range outcome.Items {
		result.Items = append(result.Items, toItemView(item, nil))
		itemIDs = append(itemIDs, snowflake.FormatID(item.ID))
	}

	metrics.RecordItemsCreated(ctx, "generated", len(outcome.Items))
	s.afterCommit(ctx, tripID, callerID, queue.ItineraryEventMessage{
		EventType: queue.EventItineraryGenerated,
		ItemIDs:   itemIDs,
		LogID:     result.LogID,
	})
	return result, nil
}

// ListGenerationLogs 最近的生成记录，新的在前
func (s *ItineraryService) ListGenerationLogs(ctx context.Context, tripID, callerID int64, limit int) (result []*dto.GenerationLogView, err error) {
	done := metrics.ObserveOperation(ctx, "list_generation_logs")
	defer func() { done(err) }()

	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	if _, err := s.authorize(ctx, tripID, callerID, false); err != nil {
		return nil, err
	}

	logs, err := s.store.ListGenerationLogs(ctx, tripID, limit)
	if err != nil {
		return nil, s.fail(ctx, "list_generation_logs", tripID, err)
	}

	result = make([]*dto.GenerationLogView, 0, len(logs))
	for _, l := range logs {
		result = append(result, &dto.GenerationLogView{
			ID:           snowflake.FormatID(l.ID),
			UserID:       snowflake.FormatID(l.UserID),
			TripID:       snowflake.FormatID(l.TripID),
			Context:      []byte(l.Context),
			Explanations: []byte(l.Explanations),
			CreatedAt:    l.CreatedAt,
		})
	}
	return result, nil
}

// authorize 非成员与行程不存在一样返回 ACCESS_DENIED，不泄露行程是否存在
func (s *ItineraryService) authorize(ctx context.Context, tripID, callerID int64, write bool) (*model.TripMember, error) {
	member, err := s.store.GetMember(ctx, tripID, callerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Ctx(ctx).Warn("Itinerary access denied for non-member",
				zap.Int64("trip_id", tripID),
				zap.Int64("user_id", callerID),
			)
			return nil, pkgerrors.AccessDenied
		}
		return nil, s.fail(ctx, "authorize", tripID, err)
	}

	if write && !member.Role.CanWrite() {
		logger.Ctx(ctx).Warn("Itinerary write denied for role",
			zap.Int64("trip_id", tripID),
			zap.Int64("user_id", callerID),
			zap.String("role", string(member.Role)),
		)
		return nil, pkgerrors.AccessDenied
	}
	return member, nil
}

func (s *ItineraryService) buildItinerary(ctx context.Context, trip *model.Trip) (*dto.ItineraryView, error) {
	days, err := s.store.ListDays(ctx, trip.ID)
	if err != nil {
		return nil, err
	}

	dayIDs := make([]int64, 0, len(days))
	for _, d := range days {
		dayIDs = append(dayIDs, d.ID)
	}

	items, err := s.store.ListItems(ctx, dayIDs)
	if err != nil {
		return nil, err
	}

	placeIDs := make([]int64, 0)
	for _, it := range items {
		if it.PlaceID != nil {
			placeIDs = append(placeIDs, *it.PlaceID)
		}
	}
	places, err := s.store.GetPlaces(ctx, placeIDs)
	if err != nil {
		return nil, err
	}

	byDay := make(map[int64][]dto.ItemView, len(days))
	for _, it := range items {
		var place *model.Place
		if it.PlaceID != nil {
			place = places[*it.PlaceID]
		}
		byDay[it.DayID] = append(byDay[it.DayID], toItemView(it, place))
	}

	view := &dto.ItineraryView{
		Trip:      toTripSummary(trip),
		Itinerary: make([]dto.DayView, 0, len(days)),
	}
	for _, d := range days {
		dayItems := byDay[d.ID]
		if dayItems == nil {
			dayItems = []dto.ItemView{}
		}
		view.Itinerary = append(view.Itinerary, dto.DayView{
			ID:        snowflake.FormatID(d.ID),
			DayNumber: d.DayNumber,
			Date:      utils.FormatDate(d.Date),
			Items:     dayItems,
		})
	}
	return view, nil
}

// afterCommit 缓存失效与事件发布都不影响调用结果
func (s *ItineraryService) afterCommit(ctx context.Context, tripID, callerID int64, msg queue.ItineraryEventMessage) {
	if err := s.cache.Invalidate(ctx, tripID); err != nil {
		logger.Ctx(ctx).Warn("Failed to invalidate itinerary cache",
			zap.Int64("trip_id", tripID),
			zap.Error(err),
		)
	}

	msg.TripID = snowflake.FormatID(tripID)
	msg.ActorID = snowflake.FormatID(callerID)
	msg.OccurredAt = time.Now().Format(time.RFC3339)

	err := s.events.PublishItineraryEvent(ctx, msg)
	metrics.RecordEvent(ctx, msg.EventType, err == nil)
	if err != nil {
		logger.Ctx(ctx).Warn("Failed to publish itinerary event",
			zap.Int64("trip_id", tripID),
			zap.String("event_type", msg.EventType),
			zap.Error(err),
		)
	}
}

// fail 业务错误原样返回，存储错误记录日志后统一报 TRANSACTION_FAILED
func (s *ItineraryService) fail(ctx context.Context, operation string, tripID int64, err error) error {
	var def pkgerrors.Definition
	if errors.As(err, &def) {
		return def
	}

	logger.Ctx(ctx).Error("Itinerary operation failed",
		zap.String("operation", operation),
		zap.Int64("trip_id", tripID),
		zap.Error(err),
	)
	return pkgerrors.TransactionFailed
}

func toTripSummary(trip *model.Trip) dto.TripSummary {
	summary := dto.TripSummary{
		ID:          snowflake.FormatID(trip.ID),
		Title:       trip.Title,
		Destination: trip.DestinationCity,
	}
	if trip.StartDate != nil {
		s := utils.FormatDate(*trip.StartDate)
		summary.StartDate = &s
	}
	if trip.EndDate != nil {
		e := utils.FormatDate(*trip.EndDate)
		summary.EndDate = &e
	}
	return summary
}
