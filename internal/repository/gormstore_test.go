package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"TripMate/internal/model"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return NewGormStore(db), mock
}

func TestGormStore_GetTripNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "trips" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetTrip(context.Background(), 42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_GetMember(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM "trip_members" WHERE trip_id = \$1 AND user_id = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "trip_id", "user_id", "role"}).
			AddRow(9, now, now, 100, 7, "EDITOR"))

	member, err := store.GetMember(context.Background(), 100, 7)
	require.NoError(t, err)
	assert.Equal(t, model.TripRoleEditor, member.Role)
	assert.Equal(t, int64(100), member.TripID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ListItemsOrdering(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "itinerary_items" WHERE day_id IN \(\$1,\$2\) ORDER BY day_id ASC, sort_order ASC, start_time ASC NULLS LAST, id ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "day_id", "title", "sort_order"}).
			AddRow(1, 10, "a", 1).
			AddRow(2, 10, "b", 2))

	items, err := store.ListItems(context.Background(), []int64{10, 11})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ListItemsWithoutDaysSkipsQuery(t *testing.T) {
	store, mock := newMockStore(t)

	items, err := store.ListItems(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_MaxSortOrder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(sort_order\), 0\) FROM "itinerary_items" WHERE day_id = \$1`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(7))

	maxOrder, err := store.MaxSortOrder(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 7, maxOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_LockDayUsesRowLock(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT "id" FROM "itinerary_days" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))

	require.NoError(t, store.LockDay(context.Background(), 10))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_MoveItemMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "itinerary_items" SET .* WHERE id = \$\d`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MoveItem(context.Background(), 99, 10, 3)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_DeleteItem(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM "itinerary_items" WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "itinerary_items" WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DeleteItem(context.Background(), 5))
	assert.ErrorIs(t, store.DeleteItem(context.Background(), 5), gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ListGenerationLogsNewestFirst(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "generation_logs" WHERE trip_id = \$1 ORDER BY created_at DESC, id DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "trip_id", "user_id"}).AddRow(3, 1, 1))

	logs, err := store.ListGenerationLogs(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_TransactionRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "itinerary_items" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "itinerary_items" SET`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.Transaction(context.Background(), func(tx Store) error {
		if err := tx.MoveItem(context.Background(), 1, 10, 1); err != nil {
			return err
		}
		return tx.MoveItem(context.Background(), 2, 10, 2)
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_NestedTransactionReusesOuter(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "itinerary_items"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Transaction(context.Background(), func(tx Store) error {
		return tx.Transaction(context.Background(), func(inner Store) error {
			return inner.DeleteItem(context.Background(), 1)
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_InsertDayConflictIsDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	insert := `INSERT INTO "itinerary_days" .* ON CONFLICT \("trip_id","day_number"\) DO NOTHING RETURNING`
	mock.ExpectQuery(insert).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery(insert).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}))

	first := &model.ItineraryDay{TripID: 1, DayNumber: 1, Date: now}
	require.NoError(t, store.InsertDay(context.Background(), first))
	assert.NotZero(t, first.ID)

	err := store.InsertDay(context.Background(), &model.ItineraryDay{TripID: 1, DayNumber: 1, Date: now})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpdateItemWritesOnlySelectedColumns(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "itinerary_items" SET "updated_at"=\$1,"title"=\$2,"description"=\$3 WHERE "id" = \$4`).
		WithArgs(sqlmock.AnyArg(), "Museum", nil, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// 未选中的列即使有值也不会写入
	item := &model.ItineraryItem{
		BaseModel: model.BaseModel{ID: 5},
		DayID:     10,
		Title:     "Museum",
		SortOrder: 9,
	}
	require.NoError(t, store.UpdateItem(context.Background(), item, []string{ColumnTitle, ColumnDescription}))
	assert.False(t, item.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpdateItemMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "itinerary_items" SET "updated_at"=\$1,"title"=\$2 WHERE "id" = \$3`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	item := &model.ItineraryItem{BaseModel: model.BaseModel{ID: 404}, Title: "gone"}
	err := store.UpdateItem(context.Background(), item, []string{ColumnTitle})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// 没有列时不发 SQL
	require.NoError(t, store.UpdateItem(context.Background(), item, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

var placeColumns = []string{"id", "created_at", "updated_at", "name", "category", "lat", "lng"}

const (
	selectPlace = `SELECT \* FROM "places" WHERE name = \$1 AND lat = \$2 AND lng = \$3`
	insertPlace = `INSERT INTO "places" .* ON CONFLICT \("name","lat","lng"\) DO NOTHING RETURNING`
)

func TestGormStore_FindOrCreatePlaceReturnsExisting(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(selectPlace).
		WithArgs("Kinkaku-ji", 35.0394, 135.7292, 1).
		WillReturnRows(sqlmock.NewRows(placeColumns).AddRow(77, now, now, "Kinkaku-ji", "ACTIVITY", 35.0394, 135.7292))

	place, err := store.FindOrCreatePlace(context.Background(), &model.Place{Name: "Kinkaku-ji", Category: "ACTIVITY", Lat: 35.0394, Lng: 135.7292})
	require.NoError(t, err)
	assert.Equal(t, int64(77), place.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FindOrCreatePlaceCreates(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(selectPlace).WillReturnRows(sqlmock.NewRows(placeColumns))
	mock.ExpectQuery(insertPlace).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	input := &model.Place{Name: "Nishiki Market", Category: "RESTAURANT", Lat: 35.005, Lng: 135.7648}
	place, err := store.FindOrCreatePlace(context.Background(), input)
	require.NoError(t, err)
	assert.Same(t, input, place)
	assert.NotZero(t, place.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FindOrCreatePlaceRereadsAfterConflict(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(selectPlace).WillReturnRows(sqlmock.NewRows(placeColumns))
	mock.ExpectQuery(insertPlace).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}))
	mock.ExpectQuery(selectPlace).
		WillReturnRows(sqlmock.NewRows(placeColumns).AddRow(88, now, now, "Nishiki Market", "RESTAURANT", 35.005, 135.7648))

	place, err := store.FindOrCreatePlace(context.Background(), &model.Place{Name: "Nishiki Market", Category: "RESTAURANT", Lat: 35.005, Lng: 135.7648})
	require.NoError(t, err)
	assert.Equal(t, int64(88), place.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
