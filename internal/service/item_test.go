package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"TripMate/internal/model/dto"
	"TripMate/internal/queue"
	pkgerrors "TripMate/pkg/errors"
	"TripMate/pkg/snowflake"
)

func int64Ptr(v int64) *int64       { return &v }
func float64Ptr(v float64) *float64 { return &v }

func TestCostCents(t *testing.T) {
	tests := []struct {
		name      string
		cents     *int64
		estimated *float64
		want      *int64
		field     string
	}{
		{name: "neither", want: nil},
		{name: "cents only", cents: int64Ptr(1250), want: int64Ptr(1250)},
		{name: "estimated rounds to cents", estimated: float64Ptr(19.99), want: int64Ptr(1999)},
		{name: "cents wins over estimated", cents: int64Ptr(100), estimated: float64Ptr(99), want: int64Ptr(100)},
		{name: "zero is allowed", cents: int64Ptr(0), want: int64Ptr(0)},
		{name: "negative cents", cents: int64Ptr(-1), field: "cost_cents"},
		{name: "negative estimated", estimated: float64Ptr(-0.5), field: "estimated_cost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := costCents(tt.cents, tt.estimated)
			if tt.field != "" {
				var def pkgerrors.Definition
				require.ErrorAs(t, err, &def)
				assert.Equal(t, tt.field, def.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeNotes(t *testing.T) {
	t.Run("keeps generated reason", func(t *testing.T) {
		existing := datatypes.JSON(`{"reason":"Selected ACTIVITY","prompt":"temples"}`)
		merged, err := mergeNotes(existing, "bring cash")
		require.NoError(t, err)
		assert.JSONEq(t, `{"reason":"Selected ACTIVITY","prompt":"temples","notes":"bring cash"}`, string(merged))
	})

	t.Run("empty notes removes key", func(t *testing.T) {
		merged, err := mergeNotes(datatypes.JSON(`{"notes":"old","reason":"r"}`), "")
		require.NoError(t, err)
		assert.JSONEq(t, `{"reason":"r"}`, string(merged))
	})

	t.Run("nothing left becomes null", func(t *testing.T) {
		merged, err := mergeNotes(datatypes.JSON(`{"notes":"old"}`), "")
		require.NoError(t, err)
		assert.Nil(t, merged)
	})

	t.Run("garbage is replaced", func(t *testing.T) {
		merged, err := mergeNotes(datatypes.JSON(`not json`), "fresh")
		require.NoError(t, err)
		assert.JSONEq(t, `{"notes":"fresh"}`, string(merged))
	})
}

func TestAddItem_FullRequest(t *testing.T) {
	svc := newTestService(t, seedStore())

	item, err := svc.AddItem(context.Background(), testTripID, editorID, dto.CreateItemRequest{
		DayNumber:     2,
		Title:         "  Nishiki Market  ",
		Description:   strPtr("street food"),
		StartTime:     strPtr("11:30"),
		EndTime:       strPtr("12:45:00"),
		Category:      "restaurant",
		EstimatedCost: float64Ptr(25.5),
		Notes:         strPtr("try the tamagoyaki"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Nishiki Market", item.Title)
	assert.Equal(t, "RESTAURANT", item.Category)
	assert.Equal(t, "RESTAURANT", item.Type)
	require.NotNil(t, item.StartTime)
	assert.Equal(t, "11:30:00", *item.StartTime)
	require.NotNil(t, item.EndTime)
	assert.Equal(t, "12:45:00", *item.EndTime)
	require.NotNil(t, item.CostCents)
	assert.Equal(t, int64(2550), *item.CostCents)
	assert.Equal(t, 1, item.SortOrder)
	assert.JSONEq(t, `{"notes":"try the tamagoyaki"}`, string(item.Explainability))
	assert.Nil(t, item.Place)
}

func TestAddItem_CategoryMapping(t *testing.T) {
	svc := newTestService(t, seedStore())

	tests := []struct {
		category string
		wantType string
		wantCat  string
	}{
		{"ACCOMMODATION", "HOTEL", "ACCOMMODATION"},
		{"transportation", "TRANSPORT", "TRANSPORTATION"},
		{"SHOPPING", "ACTIVITY", "SHOPPING"},
		{"OTHER", "FREE_TIME", "OTHER"},
		{"karaoke", "ACTIVITY", "KARAOKE"},
		{"", "ACTIVITY", "ACTIVITY"},
	}
	for _, tt := range tests {
		item, err := svc.AddItem(context.Background(), testTripID, ownerID, dto.CreateItemRequest{
			DayNumber: 1,
			Title:     "x",
			Category:  tt.category,
		})
		require.NoError(t, err)
		assert.Equal(t, tt.wantType, item.Type, tt.category)
		assert.Equal(t, tt.wantCat, item.Category, tt.category)
	}
}

func TestAddItem_ValidationWritesNothing(t *testing.T) {
	store := seedStore()
	svc := newTestService(t, store)

	tests := []struct {
		name  string
		req   dto.CreateItemRequest
		field string
	}{
		{"missing title", dto.CreateItemRequest{DayNumber: 1, Title: "   "}, "title"},
		{"zero day", dto.CreateItemRequest{DayNumber: 0, Title: "a"}, "day_number"},
		{"bad start", dto.CreateItemRequest{DayNumber: 1, Title: "a", StartTime: strPtr("25:99")}, "start_time"},
		{"end before start", dto.CreateItemRequest{DayNumber: 1, Title: "a", StartTime: strPtr("10:00"), EndTime: strPtr("09:00")}, "end_time"},
		{"negative cost", dto.CreateItemRequest{DayNumber: 1, Title: "a", CostCents: int64Ptr(-5)}, "cost_cents"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddItem(context.Background(), testTripID, ownerID, tt.req)
			var def pkgerrors.Definition
			require.ErrorAs(t, err, &def)
			assert.Equal(t, pkgerrors.ValidationFailed.Code, def.Code)
			assert.Equal(t, tt.field, def.Field)
		})
	}

	assert.Equal(t, 0, store.CountDays(testTripID))
	assert.Equal(t, 0, store.CountItems(testTripID))
}

func TestAddItem_LinksExistingPlace(t *testing.T) {
	svc := newTestService(t, seedStore())

	item, err := svc.AddItem(context.Background(), testTripID, ownerID, dto.CreateItemRequest{
		DayNumber: 1,
		Title:     "Shrine walk",
		PlaceID:   strPtr(snowflake.FormatID(testPlaceID)),
	})
	require.NoError(t, err)
	require.NotNil(t, item.Place)
	assert.Equal(t, "Fushimi Inari", item.Place.Name)

	view, err := svc.GetItinerary(context.Background(), testTripID, ownerID)
	require.NoError(t, err)
	require.NotNil(t, view.Itinerary[0].Items[0].Place)
	assert.Equal(t, snowflake.FormatID(testPlaceID), view.Itinerary[0].Items[0].Place.ID)
}

func TestAddItem_UnknownPlaceIDIsIgnored(t *testing.T) {
	svc := newTestService(t, seedStore())

	for _, id := range []string{"424242", "not-an-id"} {
		item, err := svc.AddItem(context.Background(), testTripID, ownerID, dto.CreateItemRequest{
			DayNumber: 1,
			Title:     "Somewhere",
			PlaceID:   strPtr(id),
		})
		require.NoError(t, err, id)
		assert.Nil(t, item.Place, id)
	}
}

func TestAddItem_InlinePlaceIsReused(t *testing.T) {
	svc := newTestService(t, seedStore())
	req := dto.CreateItemRequest{
		DayNumber:      1,
		Title:          "Tea",
		Category:       "restaurant",
		PlaceName:      strPtr("Ippodo"),
		PlaceAddress:   strPtr("Teramachi"),
		PlaceLatitude:  float64Ptr(35.0133),
		PlaceLongitude: float64Ptr(135.7672),
	}

	first, err := svc.AddItem(context.Background(), testTripID, ownerID, req)
	require.NoError(t, err)
	require.NotNil(t, first.Place)
	assert.Equal(t, "RESTAURANT", first.Place.Category)
	require.NotNil(t, first.Place.Address)
	assert.Equal(t, "Teramachi", *first.Place.Address)

	req.DayNumber = 2
	second, err := svc.AddItem(context.Background(), testTripID, ownerID, req)
	require.NoError(t, err)
	require.NotNil(t, second.Place)
	assert.Equal(t, first.Place.ID, second.Place.ID)
}

func TestAddItem_IncompleteInlinePlaceIsIgnored(t *testing.T) {
	svc := newTestService(t, seedStore())

	item, err := svc.AddItem(context.Background(), testTripID, ownerID, dto.CreateItemRequest{
		DayNumber:     1,
		Title:         "Tea",
		PlaceName:     strPtr("Ippodo"),
		PlaceLatitude: float64Ptr(35.0133),
	})
	require.NoError(t, err)
	assert.Nil(t, item.Place)
}

func TestUpdateItem_MergesOnlyProvidedFields(t *testing.T) {
	svc := newTestService(t, seedStore())
	ctx := context.Background()

	created, err := svc.AddItem(ctx, testTripID, ownerID, dto.CreateItemRequest{
		DayNumber: 1,
		Title:     "Museum",
		StartTime: strPtr("09:00"),
		Category:  "ACTIVITY",
	})
	require.NoError(t, err)
	itemID, err := snowflake.ParseID(created.ID)
	require.NoError(t, err)

	updated, err := svc.UpdateItem(ctx, testTripID, itemID, editorID, dto.UpdateItemRequest{
		Description: strPtr("closed on Mondays"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Museum", updated.Title)
	require.NotNil(t, updated.StartTime)
	assert.Equal(t, "09:00:00", *updated.StartTime)
	assert.Equal(t, "ACTIVITY", updated.Category)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "closed on Mondays", *updated.Description)
	assert.Equal(t, created.SortOrder, updated.SortOrder)
}

func TestUpdateItem_CategoryUpdatesType(t *testing.T) {
	svc := newTestService(t, seedStore())
	ctx := context.Background()

	created := addItem(t, svc, 1, "Check in")
	itemID, err := snowflake.ParseID(created.ID)
	require.NoError(t, err)

	updated, err := svc.UpdateItem(ctx, testTripID, itemID, ownerID, dto.UpdateItemRequest{
		Category: strPtr("accommodation"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ACCOMMODATION", updated.Category)
	assert.Equal(t, "HOTEL", updated.Type)
}

func TestUpdateItem_ChecksMergedTimeRange(t *testing.T) {
	svc := newTestService(t, seedStore())
	ctx := context.Background()

	created, err := svc.AddItem(ctx, testTripID, ownerID, dto.CreateItemRequest{
		DayNumber: 1,
		Title:     "Tour",
		StartTime: strPtr("10:00"),
		EndTime:   strPtr("12:00"),
	})
	require.NoError(t, err)
	itemID, err := snowflake.ParseID(created.ID)
	require.NoError(t, err)

	// 只改结束时间，与已有开始时间比较
	_, err = svc.UpdateItem(ctx, testTripID, itemID, ownerID, dto.UpdateItemRequest{EndTime: strPtr("09:30")})
	var def pkgerrors.Definition
	require.ErrorAs(t, err, &def)
	assert.Equal(t, "end_time", def.Field)

	view, err := svc.GetItinerary(ctx, testTripID, ownerID)
	require.NoError(t, err)
	require.NotNil(t, view.Itinerary[0].Items[0].EndTime)
	assert.Equal(t, "12:00:00", *view.Itinerary[0].Items[0].EndTime)

	// 清空开始时间后任何结束时间都合法
	updated, err := svc.UpdateItem(ctx, testTripID, itemID, ownerID, dto.UpdateItemRequest{
		StartTime: strPtr(""),
		EndTime:   strPtr("08:00"),
	})
	require.NoError(t, err)
	assert.Nil(t, updated.StartTime)
	require.NotNil(t, updated.EndTime)
	assert.Equal(t, "08:00:00", *updated.EndTime)
}

func TestUpdateItem_NotesKeepGeneratedReason(t *testing.T) {
	svc := newTestService(t, seedStore())
	ctx := context.Background()

	result, err := svc.GenerateItinerary(ctx, testTripID, ownerID, "temples")
	require.NoError(t, err)
	itemID, err := snowflake.ParseID(result.Items[0].ID)
	require.NoError(t, err)

	updated, err := svc.UpdateItem(ctx, testTripID, itemID, ownerID, dto.UpdateItemRequest{Notes: strPtr("arrive early")})
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(updated.Explainability, &fields))
	assert.Contains(t, fields, "reason")
	assert.Contains(t, fields, "prompt")
	assert.JSONEq(t, `"arrive early"`, string(fields["notes"]))
}

func TestUpdateItem_EmptyPatchPublishesNothing(t *testing.T) {
	pub := &recordingPublisher{}
	svc, err := NewItineraryService(Dependencies{Store: seedStore(), Events: pub})
	require.NoError(t, err)

	created := addItem(t, svc, 1, "a")
	itemID, err := snowflake.ParseID(created.ID)
	require.NoError(t, err)

	updated, err := svc.UpdateItem(context.Background(), testTripID, itemID, ownerID, dto.UpdateItemRequest{})
	require.NoError(t, err)
	assert.Equal(t, "a", updated.Title)
	assert.Equal(t, []string{queue.EventItemCreated}, pub.types())
}

func TestUpdateItem_ForeignOrMissingItem(t *testing.T) {
	svc := newTestService(t, seedStore())
	ctx := context.Background()

	foreign, err := svc.AddItem(ctx, otherTripID, ownerID, dto.CreateItemRequest{DayNumber: 1, Title: "Osaka castle"})
	require.NoError(t, err)
	foreignID, err := snowflake.ParseID(foreign.ID)
	require.NoError(t, err)

	_, err = svc.UpdateItem(ctx, testTripID, foreignID, ownerID, dto.UpdateItemRequest{Title: strPtr("hijack")})
	assert.ErrorIs(t, err, pkgerrors.ItemNotFound)

	_, err = svc.UpdateItem(ctx, testTripID, 777, ownerID, dto.UpdateItemRequest{Title: strPtr("ghost")})
	assert.ErrorIs(t, err, pkgerrors.ItemNotFound)

	view, err := svc.GetItinerary(ctx, otherTripID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, "Osaka castle", view.Itinerary[0].Items[0].Title)
}

func TestUpdateItem_EmptyTitleRejected(t *testing.T) {
	svc := newTestService(t, seedStore())
	created := addItem(t, svc, 1, "keep")
	itemID, err := snowflake.ParseID(created.ID)
	require.NoError(t, err)

	_, err = svc.UpdateItem(context.Background(), testTripID, itemID, ownerID, dto.UpdateItemRequest{Title: strPtr("  ")})
	var def pkgerrors.Definition
	require.ErrorAs(t, err, &def)
	assert.Equal(t, "title", def.Field)
}

func TestDeleteItem(t *testing.T) {
	store := seedStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	a := addItem(t, svc, 1, "a")
	b := addItem(t, svc, 1, "b")
	aID, err := snowflake.ParseID(a.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteItem(ctx, testTripID, aID, editorID))
	assert.Equal(t, 1, store.CountItems(testTripID))

	view, err := svc.GetItinerary(ctx, testTripID, ownerID)
	require.NoError(t, err)
	require.Len(t, view.Itinerary[0].Items, 1)
	assert.Equal(t, b.ID, view.Itinerary[0].Items[0].ID)

	// 已删除的再删一次
	assert.ErrorIs(t, svc.DeleteItem(ctx, testTripID, aID, editorID), pkgerrors.ItemNotFound)
}

func TestDeleteItem_ForeignTripItem(t *testing.T) {
	store := seedStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	foreign, err := svc.AddItem(ctx, otherTripID, ownerID, dto.CreateItemRequest{DayNumber: 1, Title: "Dotonbori"})
	require.NoError(t, err)
	foreignID, err := snowflake.ParseID(foreign.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteItem(ctx, testTripID, foreignID, ownerID), pkgerrors.ItemNotFound)
	assert.Equal(t, 1, store.CountItems(otherTripID))
}
