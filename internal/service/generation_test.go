package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"TripMate/internal/model"
	"TripMate/internal/model/dto"
	"TripMate/internal/queue"
	pkgerrors "TripMate/pkg/errors"
)

func TestGenerate_FourItemsPerDay(t *testing.T) {
	store := seedStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	result, err := svc.GenerateItinerary(ctx, testTripID, ownerID, "temples and food")
	require.NoError(t, err)
	require.Len(t, result.Items, 12)
	assert.NotEmpty(t, result.LogID)

	assert.Equal(t, 3, store.CountDays(testTripID))
	assert.Equal(t, 12, store.CountItems(testTripID))

	view, err := svc.GetItinerary(ctx, testTripID, ownerID)
	require.NoError(t, err)
	require.Len(t, view.Itinerary, 3)
	for i, day := range view.Itinerary {
		assert.Equal(t, i+1, day.DayNumber)
		require.Len(t, day.Items, 4)

		assert.Equal(t, "Morning activity in Kyoto", day.Items[0].Title)
		assert.Equal(t, "ACTIVITY", day.Items[0].Type)
		assert.Equal(t, "RESTAURANT", day.Items[1].Type)
		assert.Equal(t, "ACTIVITY", day.Items[2].Type)
		assert.Equal(t, "RESTAURANT", day.Items[3].Type)
		for j, it := range day.Items {
			assert.Equal(t, j+1, it.SortOrder)
		}
	}

	logs, err := svc.ListGenerationLogs(ctx, testTripID, ownerID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, result.LogID, logs[0].ID)

	var explanations []model.Explanation
	require.NoError(t, json.Unmarshal(logs[0].Explanations, &explanations))
	assert.Len(t, explanations, 12)

	var genCtx model.GenerationContext
	require.NoError(t, json.Unmarshal(logs[0].Context, &genCtx))
	assert.Equal(t, "temples and food", genCtx.Prompt)
	assert.Equal(t, 3, genCtx.Days)
	assert.JSONEq(t, "null", string(genCtx.Preferences))
}

func TestGenerate_RepeatedCallsAppend(t *testing.T) {
	store := seedStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.GenerateItinerary(ctx, otherTripID, ownerID, "castle")
	require.NoError(t, err)
	_, err = svc.GenerateItinerary(ctx, otherTripID, ownerID, "street food")
	require.NoError(t, err)

	assert.Equal(t, 2, store.CountDays(otherTripID))
	assert.Equal(t, 16, store.CountItems(otherTripID))

	logs, err := svc.ListGenerationLogs(ctx, otherTripID, ownerID, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestGenerate_TripWithoutStartDate(t *testing.T) {
	svc := newTestService(t, seedStore())

	// 没有开始日期时无法确定第一天的日期
	_, err := svc.GenerateItinerary(context.Background(), noStartTrip, ownerID, "anything")
	var def pkgerrors.Definition
	require.ErrorAs(t, err, &def)
	assert.Equal(t, "start_date", def.Field)
}

func TestGenerate_LogFailureRollsBackItems(t *testing.T) {
	mem := seedStore()
	svc := newTestService(t, &failingStore{Store: mem, failCreateLog: true})

	_, err := svc.GenerateItinerary(context.Background(), testTripID, ownerID, "temples")
	assert.ErrorIs(t, err, pkgerrors.TransactionFailed)

	assert.Equal(t, 0, mem.CountItems(testTripID))
	assert.Equal(t, 0, mem.CountDays(testTripID))
}

func TestGenerate_ItemFailureMidwayRollsBack(t *testing.T) {
	mem := seedStore()
	svc := newTestService(t, &failingStore{Store: mem, failCreateItem: 6})

	_, err := svc.GenerateItinerary(context.Background(), testTripID, ownerID, "temples")
	assert.ErrorIs(t, err, pkgerrors.TransactionFailed)
	assert.Equal(t, 0, mem.CountItems(testTripID))

	logs, err := newTestService(t, mem).ListGenerationLogs(context.Background(), testTripID, ownerID, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestGenerate_EmptyPromptRejected(t *testing.T) {
	store := seedStore()
	svc := newTestService(t, store)

	for _, prompt := range []string{"", "   "} {
		_, err := svc.GenerateItinerary(context.Background(), testTripID, ownerID, prompt)
		var def pkgerrors.Definition
		require.ErrorAs(t, err, &def)
		assert.Equal(t, "prompt", def.Field)
	}
	assert.Equal(t, 0, store.CountItems(testTripID))
}

func TestGenerate_ExplanationCarriesPreferences(t *testing.T) {
	store := seedStore()
	airport := "KIX"
	store.PutPreferences(model.UserPreferences{
		BaseModel:    model.BaseModel{ID: 8001},
		UserID:       editorID,
		TravelStyles: datatypes.JSON(`["slow"]`),
		Interests:    datatypes.JSON(`["food","temples"]`),
		HomeAirport:  &airport,
	})
	svc := newTestService(t, store)

	result, err := svc.GenerateItinerary(context.Background(), testTripID, editorID, "relaxed")
	require.NoError(t, err)
	require.NotEmpty(t, result.Items)

	var explanation model.Explanation
	require.NoError(t, json.Unmarshal(result.Items[0].Explainability, &explanation))
	assert.Equal(t, "relaxed", explanation.Prompt)
	assert.Equal(t, "Selected ACTIVITY based on prompt and preferences (interests: food, temples; travel styles: slow)", explanation.Reason)

	var prefs map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(explanation.Preferences, &prefs))
	assert.JSONEq(t, `["food","temples"]`, string(prefs["interests"]))
	assert.JSONEq(t, `"KIX"`, string(prefs["home_airport"]))
	// 空的 JSON 列表示为 []
	assert.JSONEq(t, `[]`, string(prefs["languages"]))
}

func TestGenerationReason(t *testing.T) {
	assert.Equal(t, "Selected RESTAURANT based on prompt and preferences",
		generationReason(model.ItemTypeRestaurant, json.RawMessage("null")))
	assert.Equal(t, "Selected ACTIVITY based on prompt and preferences (travel styles: luxury)",
		generationReason(model.ItemTypeActivity, json.RawMessage(`{"interests":[],"travel_styles":["luxury"]}`)))
}

func TestGenerate_ViewerCannotGenerate(t *testing.T) {
	store := seedStore()
	svc := newTestService(t, store)

	_, err := svc.GenerateItinerary(context.Background(), testTripID, viewerID, "temples")
	assert.ErrorIs(t, err, pkgerrors.AccessDenied)
	assert.Equal(t, 0, store.CountItems(testTripID))
}

// 手动添加后再生成，生成的行程项接在已有项后面
func TestGenerate_AfterManualItemsScenario(t *testing.T) {
	store := seedStore()
	pub := &recordingPublisher{}
	svc, err := NewItineraryService(Dependencies{Store: store, Events: pub})
	require.NoError(t, err)
	ctx := context.Background()

	museum, err := svc.AddItem(ctx, testTripID, ownerID, dto.CreateItemRequest{DayNumber: 2, Title: "Museum", StartTime: strPtr("10:00")})
	require.NoError(t, err)
	assert.Equal(t, 1, museum.SortOrder)

	lunch, err := svc.AddItem(ctx, testTripID, ownerID, dto.CreateItemRequest{DayNumber: 2, Title: "Lunch", Category: "RESTAURANT"})
	require.NoError(t, err)
	assert.Equal(t, 2, lunch.SortOrder)
	assert.Equal(t, museum.DayID, lunch.DayID)

	view, err := svc.GetItinerary(ctx, testTripID, ownerID)
	require.NoError(t, err)
	require.Len(t, view.Itinerary, 1)
	assert.Equal(t, 2, view.Itinerary[0].DayNumber)
	assert.Equal(t, "2024-06-02", view.Itinerary[0].Date)

	result, err := svc.GenerateItinerary(ctx, testTripID, ownerID, "art and food")
	require.NoError(t, err)
	assert.Len(t, result.Items, 12)

	logs, err := svc.ListGenerationLogs(ctx, testTripID, ownerID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	var explanations []json.RawMessage
	require.NoError(t, json.Unmarshal(logs[0].Explanations, &explanations))
	assert.Len(t, explanations, 12)

	view, err = svc.GetItinerary(ctx, testTripID, ownerID)
	require.NoError(t, err)
	require.Len(t, view.Itinerary, 3)

	day2 := view.Itinerary[1]
	assert.Equal(t, 2, day2.DayNumber)
	require.Len(t, day2.Items, 6)
	assert.Equal(t, "Museum", day2.Items[0].Title)
	assert.Equal(t, "Lunch", day2.Items[1].Title)
	for i, it := range day2.Items {
		assert.Equal(t, i+1, it.SortOrder)
	}
	assert.Equal(t, 14, store.CountItems(testTripID))

	assert.Equal(t, []string{
		queue.EventItemCreated,
		queue.EventItemCreated,
		queue.EventItineraryGenerated,
	}, pub.types())
}
