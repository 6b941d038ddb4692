package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"TripMate/internal/model"
	"TripMate/internal/repository"
	pkgerrors "TripMate/pkg/errors"
)

func TestResolveDay_DistinctDaysCarryOffsetDates(t *testing.T) {
	store := seedStore()
	ctx := context.Background()

	day1, err := ResolveDay(ctx, store, testTripID, 1)
	require.NoError(t, err)
	day3, err := ResolveDay(ctx, store, testTripID, 3)
	require.NoError(t, err)

	assert.NotEqual(t, day1.ID, day3.ID)
	assert.Equal(t, 1, day1.DayNumber)
	assert.Equal(t, 3, day3.DayNumber)
	assert.Equal(t, "2024-06-01", day1.Date.Format("2006-01-02"))
	assert.Equal(t, "2024-06-03", day3.Date.Format("2006-01-02"))
}

func TestResolveDay_BeyondEndDateStillResolves(t *testing.T) {
	store := seedStore()

	day, err := ResolveDay(context.Background(), store, testTripID, 10)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC), day.Date)
}

func TestResolveDay_IsIdempotent(t *testing.T) {
	store := seedStore()
	ctx := context.Background()

	first, err := ResolveDay(ctx, store, testTripID, 2)
	require.NoError(t, err)
	second, err := ResolveDay(ctx, store, testTripID, 2)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.CountDays(testTripID))
}

func TestResolveDay_ConcurrentCallersShareOneRow(t *testing.T) {
	store := seedStore()
	ctx := context.Background()

	const callers = 32
	ids := make([]int64, callers)

	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			day, err := ResolveDay(ctx, store, testTripID, 2)
			if err != nil {
				return err
			}
			ids[i] = day.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, store.CountDays(testTripID))
}

func TestResolveDay_RejectsNonPositiveDayBeforeWriting(t *testing.T) {
	store := seedStore()

	for _, n := range []int{0, -1} {
		_, err := ResolveDay(context.Background(), store, testTripID, n)
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ValidationFailed)

		var def pkgerrors.Definition
		require.ErrorAs(t, err, &def)
		assert.Equal(t, "day_number", def.Field)
	}
	assert.Equal(t, 0, store.CountDays(testTripID))
}

func TestResolveDay_MissingTrip(t *testing.T) {
	store := seedStore()

	_, err := ResolveDay(context.Background(), store, missingTrip, 1)
	assert.ErrorIs(t, err, pkgerrors.TripNotFound)
}

func TestResolveDay_TripWithoutStartDate(t *testing.T) {
	store := seedStore()

	_, err := ResolveDay(context.Background(), store, noStartTrip, 1)
	require.Error(t, err)

	var def pkgerrors.Definition
	require.ErrorAs(t, err, &def)
	assert.Equal(t, pkgerrors.ValidationFailed.Code, def.Code)
	assert.Equal(t, "start_date", def.Field)
	assert.Equal(t, 0, store.CountDays(noStartTrip))
}

// staleFindTx 第一次 FindDay 报告不存在，模拟并发请求在读取之后抢先插入
type staleFindTx struct {
	repository.Store
	stale bool
}

func (tx *staleFindTx) FindDay(ctx context.Context, tripID int64, dayNumber int) (*model.ItineraryDay, error) {
	if !tx.stale {
		tx.stale = true
		return nil, gorm.ErrRecordNotFound
	}
	return tx.Store.FindDay(ctx, tripID, dayNumber)
}

func TestResolveDay_DuplicateInsertFallsBackToExisting(t *testing.T) {
	store := seedStore()
	ctx := context.Background()

	existing, err := ResolveDay(ctx, store, testTripID, 1)
	require.NoError(t, err)

	err = store.Transaction(ctx, func(tx repository.Store) error {
		trip, err := loadTrip(ctx, tx, testTripID)
		require.NoError(t, err)

		day, err := resolveTripDay(ctx, &staleFindTx{Store: tx}, trip, 1)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, day.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.CountDays(testTripID))
}
