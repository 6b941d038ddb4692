package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"TripMate/internal/model"
	"TripMate/pkg/snowflake"
)

type memberKey struct {
	tripID int64
	userID int64
}

type dayKey struct {
	tripID    int64
	dayNumber int
}

type memoryState struct {
	trips       map[int64]model.Trip
	members     map[memberKey]model.TripMember
	preferences map[int64]model.UserPreferences
	places      map[int64]model.Place
	days        map[int64]model.ItineraryDay
	dayIndex    map[dayKey]int64
	items       map[int64]model.ItineraryItem
	logs        map[int64]model.GenerationLog
}

func newMemoryState() *memoryState {
	return &memoryState{
		trips:       make(map[int64]model.Trip),
		members:     make(map[memberKey]model.TripMember),
		preferences: make(map[int64]model.UserPreferences),
		places:      make(map[int64]model.Place),
		days:        make(map[int64]model.ItineraryDay),
		dayIndex:    make(map[dayKey]int64),
		items:       make(map[int64]model.ItineraryItem),
		logs:        make(map[int64]model.GenerationLog),
	}
}

func (st *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range st.trips {
		c.trips[k] = v
	}
	for k, v := range st.members {
		c.members[k] = v
	}
	for k, v := range st.preferences {
		c.preferences[k] = v
	}
	for k, v := range st.places {
		c.places[k] = v
	}
	for k, v := range st.days {
		c.days[k] = v
	}
	for k, v := range st.dayIndex {
		c.dayIndex[k] = v
	}
	for k, v := range st.items {
		c.items[k] = cloneItem(v)
	}
	for k, v := range st.logs {
		c.logs[k] = v
	}
	return c
}

// MemoryStore 进程内实现：事务在状态副本上执行，成功后整体替换，失败直接丢弃。
// 事务之间串行执行，等价于 SERIALIZABLE 隔离级别。用于测试与 STORAGE_DRIVER=memory 的本地联调。
type MemoryStore struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	if err := fn(&memTx{state: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) read(fn func(tx *memTx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{state: s.state})
}

func (s *MemoryStore) write(ctx context.Context, fn func(tx Store) error) error {
	return s.Transaction(ctx, fn)
}

// ========== 外部模块数据的写入口，仅用于初始化与测试 ==========

func (s *MemoryStore) PutTrip(trip model.Trip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.trips[trip.ID] = trip
}

func (s *MemoryStore) PutMember(member model.TripMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.members[memberKey{tripID: member.TripID, userID: member.UserID}] = member
}

func (s *MemoryStore) PutPreferences(prefs model.UserPreferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.preferences[prefs.UserID] = prefs
}

func (s *MemoryStore) PutPlace(place model.Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.places[place.ID] = place
}

// CountDays 统计某个行程的天数记录
func (s *MemoryStore) CountDays(tripID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, d := range s.state.days {
		if d.TripID == tripID {
			n++
		}
	}
	return n
}

// CountItems 统计某个行程下的行程项
func (s *MemoryStore) CountItems(tripID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, it := range s.state.items {
		if d, ok := s.state.days[it.DayID]; ok && d.TripID == tripID {
			n++
		}
	}
	return n
}

// ========== Store 接口 ==========

func (s *MemoryStore) GetTrip(ctx context.Context, tripID int64) (trip *model.Trip, err error) {
	err = s.read(func(tx *memTx) error {
		trip, err = tx.GetTrip(ctx, tripID)
		return err
	})
	return trip, err
}

func (s *MemoryStore) GetMember(ctx context.Context, tripID, userID int64) (member *model.TripMember, err error) {
	err = s.read(func(tx *memTx) error {
		member, err = tx.GetMember(ctx, tripID, userID)
		return err
	})
	return member, err
}

func (s *MemoryStore) GetPreferences(ctx context.Context, userID int64) (prefs *model.UserPreferences, err error) {
	err = s.read(func(tx *memTx) error {
		prefs, err = tx.GetPreferences(ctx, userID)
		return err
	})
	return prefs, err
}

func (s *MemoryStore) GetPlace(ctx context.Context, placeID int64) (place *model.Place, err error) {
	err = s.read(func(tx *memTx) error {
		place, err = tx.GetPlace(ctx, placeID)
		return err
	})
	return place, err
}

func (s *MemoryStore) GetPlaces(ctx context.Context, placeIDs []int64) (places map[int64]*model.Place, err error) {
	err = s.read(func(tx *memTx) error {
		places, err = tx.GetPlaces(ctx, placeIDs)
		return err
	})
	return places, err
}

func (s *MemoryStore) FindOrCreatePlace(ctx context.Context, place *model.Place) (result *model.Place, err error) {
	err = s.write(ctx, func(tx Store) error {
		result, err = tx.FindOrCreatePlace(ctx, place)
		return err
	})
	return result, err
}

func (s *MemoryStore) GetDay(ctx context.Context, dayID int64) (day *model.ItineraryDay, err error) {
	err = s.read(func(tx *memTx) error {
		day, err = tx.GetDay(ctx, dayID)
		return err
	})
	return day, err
}

func (s *MemoryStore) FindDay(ctx context.Context, tripID int64, dayNumber int) (day *model.ItineraryDay, err error) {
	err = s.read(func(tx *memTx) error {
		day, err = tx.FindDay(ctx, tripID, dayNumber)
		return err
	})
	return day, err
}

func (s *MemoryStore) InsertDay(ctx context.Context, day *model.ItineraryDay) error {
	return s.write(ctx, func(tx Store) error {
		return tx.InsertDay(ctx, day)
	})
}

func (s *MemoryStore) ListDays(ctx context.Context, tripID int64) (days []*model.ItineraryDay, err error) {
	err = s.read(func(tx *memTx) error {
		days, err = tx.ListDays(ctx, tripID)
		return err
	})
	return days, err
}

func (s *MemoryStore) LockDay(ctx context.Context, dayID int64) error {
	return s.read(func(tx *memTx) error {
		return tx.LockDay(ctx, dayID)
	})
}

func (s *MemoryStore) MaxSortOrder(ctx context.Context, dayID int64) (max int, err error) {
	err = s.read(func(tx *memTx) error {
		max, err = tx.MaxSortOrder(ctx, dayID)
		return err
	})
	return max, err
}

func (s *MemoryStore) CreateItem(ctx context.Context, item *model.ItineraryItem) error {
	return s.write(ctx, func(tx Store) error {
		return tx.CreateItem(ctx, item)
	})
}

func (s *MemoryStore) GetItem(ctx context.Context, itemID int64) (item *model.ItineraryItem, err error) {
	err = s.read(func(tx *memTx) error {
		item, err = tx.GetItem(ctx, itemID)
		return err
	})
	return item, err
}

func (s *MemoryStore) UpdateItem(ctx context.Context, item *model.ItineraryItem, columns []string) error {
	return s.write(ctx, func(tx Store) error {
		return tx.UpdateItem(ctx, item, columns)
	})
}

func (s *MemoryStore) MoveItem(ctx context.Context, itemID, dayID int64, sortOrder int) error {
	return s.write(ctx, func(tx Store) error {
		return tx.MoveItem(ctx, itemID, dayID, sortOrder)
	})
}

func (s *MemoryStore) DeleteItem(ctx context.Context, itemID int64) error {
	return s.write(ctx, func(tx Store) error {
		return tx.DeleteItem(ctx, itemID)
	})
}

func (s *MemoryStore) ListItems(ctx context.Context, dayIDs []int64) (items []*model.ItineraryItem, err error) {
	err = s.read(func(tx *memTx) error {
		items, err = tx.ListItems(ctx, dayIDs)
		return err
	})
	return items, err
}

func (s *MemoryStore) CreateGenerationLog(ctx context.Context, log *model.GenerationLog) error {
	return s.write(ctx, func(tx Store) error {
		return tx.CreateGenerationLog(ctx, log)
	})
}

func (s *MemoryStore) ListGenerationLogs(ctx context.Context, tripID int64, limit int) (logs []*model.GenerationLog, err error) {
	err = s.read(func(tx *memTx) error {
		logs, err = tx.ListGenerationLogs(ctx, tripID, limit)
		return err
	})
	return logs, err
}

// ========== 事务内视图 ==========

// memTx 直接操作某个状态副本，只在持有 txMu 或 mu 的情况下使用
type memTx struct {
	state *memoryState
}

func (tx *memTx) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return fn(tx)
}

func (tx *memTx) GetTrip(_ context.Context, tripID int64) (*model.Trip, error) {
	trip, ok := tx.state.trips[tripID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &trip, nil
}

func (tx *memTx) GetMember(_ context.Context, tripID, userID int64) (*model.TripMember, error) {
	member, ok := tx.state.members[memberKey{tripID: tripID, userID: userID}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &member, nil
}

func (tx *memTx) GetPreferences(_ context.Context, userID int64) (*model.UserPreferences, error) {
	prefs, ok := tx.state.preferences[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &prefs, nil
}

func (tx *memTx) GetPlace(_ context.Context, placeID int64) (*model.Place, error) {
	place, ok := tx.state.places[placeID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &place, nil
}

func (tx *memTx) GetPlaces(_ context.Context, placeIDs []int64) (map[int64]*model.Place, error) {
	result := make(map[int64]*model.Place, len(placeIDs))
	for _, id := range placeIDs {
		if place, ok := tx.state.places[id]; ok {
			p := place
			result[id] = &p
		}
	}
	return result, nil
}

func (tx *memTx) FindOrCreatePlace(_ context.Context, place *model.Place) (*model.Place, error) {
	var match *model.Place
	for _, p := range tx.state.places {
		if p.Name == place.Name && p.Lat == place.Lat && p.Lng == place.Lng {
			if match == nil || p.ID < match.ID {
				candidate := p
				match = &candidate
			}
		}
	}
	if match != nil {
		return match, nil
	}

	if err := assignID(&place.BaseModel); err != nil {
		return nil, err
	}
	tx.state.places[place.ID] = *place
	return place, nil
}

func (tx *memTx) GetDay(_ context.Context, dayID int64) (*model.ItineraryDay, error) {
	day, ok := tx.state.days[dayID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &day, nil
}

func (tx *memTx) FindDay(_ context.Context, tripID int64, dayNumber int) (*model.ItineraryDay, error) {
	id, ok := tx.state.dayIndex[dayKey{tripID: tripID, dayNumber: dayNumber}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	day := tx.state.days[id]
	return &day, nil
}

func (tx *memTx) InsertDay(_ context.Context, day *model.ItineraryDay) error {
	key := dayKey{tripID: day.TripID, dayNumber: day.DayNumber}
	if _, exists := tx.state.dayIndex[key]; exists {
		return gorm.ErrDuplicatedKey
	}

	if err := assignID(&day.BaseModel); err != nil {
		return err
	}
	tx.state.days[day.ID] = *day
	tx.state.dayIndex[key] = day.ID
	return nil
}

func (tx *memTx) ListDays(_ context.Context, tripID int64) ([]*model.ItineraryDay, error) {
	days := make([]*model.ItineraryDay, 0)
	for _, d := range tx.state.days {
		if d.TripID == tripID {
			day := d
			days = append(days, &day)
		}
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].DayNumber < days[j].DayNumber
	})
	return days, nil
}

// LockDay 事务已串行执行，这里只校验 day 存在
func (tx *memTx) LockDay(_ context.Context, dayID int64) error {
	if _, ok := tx.state.days[dayID]; !ok {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (tx *memTx) MaxSortOrder(_ context.Context, dayID int64) (int, error) {
	maxOrder := 0
	for _, it := range tx.state.items {
		if it.DayID == dayID && it.SortOrder > maxOrder {
			maxOrder = it.SortOrder
		}
	}
	return maxOrder, nil
}

func (tx *memTx) CreateItem(_ context.Context, item *model.ItineraryItem) error {
	if _, ok := tx.state.days[item.DayID]; !ok {
		return gorm.ErrForeignKeyViolated
	}
	if err := assignID(&item.BaseModel); err != nil {
		return err
	}
	tx.state.items[item.ID] = cloneItem(*item)
	return nil
}

func (tx *memTx) GetItem(_ context.Context, itemID int64) (*model.ItineraryItem, error) {
	item, ok := tx.state.items[itemID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := cloneItem(item)
	return &c, nil
}

func (tx *memTx) UpdateItem(_ context.Context, item *model.ItineraryItem, columns []string) error {
	if len(columns) == 0 {
		return nil
	}

	stored, ok := tx.state.items[item.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}

	src := cloneItem(*item)
	for _, col := range columns {
		switch col {
		case ColumnTitle:
			stored.Title = src.Title
		case ColumnDescription:
			stored.Description = src.Description
		case ColumnStartTime:
			stored.StartTime = src.StartTime
		case ColumnEndTime:
			stored.EndTime = src.EndTime
		case ColumnCategory:
			stored.Category = src.Category
		case ColumnType:
			stored.Type = src.Type
		case ColumnCostCents:
			stored.CostCents = src.CostCents
		case ColumnExplainability:
			stored.Explainability = src.Explainability
		}
	}

	stored.UpdatedAt = time.Now()
	item.UpdatedAt = stored.UpdatedAt
	tx.state.items[item.ID] = stored
	return nil
}

func (tx *memTx) MoveItem(_ context.Context, itemID, dayID int64, sortOrder int) error {
	stored, ok := tx.state.items[itemID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if _, ok := tx.state.days[dayID]; !ok {
		return gorm.ErrForeignKeyViolated
	}

	stored.DayID = dayID
	stored.SortOrder = sortOrder
	stored.UpdatedAt = time.Now()
	tx.state.items[itemID] = stored
	return nil
}

func (tx *memTx) DeleteItem(_ context.Context, itemID int64) error {
	if _, ok := tx.state.items[itemID]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(tx.state.items, itemID)
	return nil
}

func (tx *memTx) ListItems(_ context.Context, dayIDs []int64) ([]*model.ItineraryItem, error) {
	wanted := make(map[int64]struct{}, len(dayIDs))
	for _, id := range dayIDs {
		wanted[id] = struct{}{}
	}

	items := make([]*model.ItineraryItem, 0)
	for _, it := range tx.state.items {
		if _, ok := wanted[it.DayID]; ok {
			c := cloneItem(it)
			items = append(items, &c)
		}
	}

	sort.Slice(items, func(i, j int) bool {
		return itemLess(items[i], items[j])
	})
	return items, nil
}

func (tx *memTx) CreateGenerationLog(_ context.Context, log *model.GenerationLog) error {
	if err := assignID(&log.BaseModel); err != nil {
		return err
	}
	tx.state.logs[log.ID] = *log
	return nil
}

func (tx *memTx) ListGenerationLogs(_ context.Context, tripID int64, limit int) ([]*model.GenerationLog, error) {
	logs := make([]*model.GenerationLog, 0)
	for _, l := range tx.state.logs {
		if l.TripID == tripID {
			entry := l
			logs = append(logs, &entry)
		}
	}

	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].CreatedAt.Equal(logs[j].CreatedAt) {
			return logs[i].CreatedAt.After(logs[j].CreatedAt)
		}
		return logs[i].ID > logs[j].ID
	})

	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// itemLess 与 SQL 的 ORDER BY day_id, sort_order, start_time NULLS LAST, id 一致
func itemLess(a, b *model.ItineraryItem) bool {
	if a.DayID != b.DayID {
		return a.DayID < b.DayID
	}
	if a.SortOrder != b.SortOrder {
		return a.SortOrder < b.SortOrder
	}
	switch {
	case a.StartTime != nil && b.StartTime != nil && *a.StartTime != *b.StartTime:
		return *a.StartTime < *b.StartTime
	case a.StartTime != nil && b.StartTime == nil:
		return true
	case a.StartTime == nil && b.StartTime != nil:
		return false
	}
	return a.ID < b.ID
}

func assignID(base *model.BaseModel) error {
	if base.ID == 0 {
		id, err := snowflake.NextID()
		if err != nil {
			return err
		}
		base.ID = id
	}

	now := time.Now()
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}
	if base.UpdatedAt.IsZero() {
		base.UpdatedAt = now
	}
	return nil
}

func cloneItem(it model.ItineraryItem) model.ItineraryItem {
	c := it
	if it.Description != nil {
		v := *it.Description
		c.Description = &v
	}
	if it.StartTime != nil {
		v := *it.StartTime
		c.StartTime = &v
	}
	if it.EndTime != nil {
		v := *it.EndTime
		c.EndTime = &v
	}
	if it.PlaceID != nil {
		v := *it.PlaceID
		c.PlaceID = &v
	}
	if it.CostCents != nil {
		v := *it.CostCents
		c.CostCents = &v
	}
	if it.Explainability != nil {
		c.Explainability = append(datatypes.JSON(nil), it.Explainability...)
	}
	return c
}
